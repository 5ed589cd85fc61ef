package fees

import (
	"testing"
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Published fee table: price -> (fee for 1 contract, fee for 100 contracts).
var generalTable = map[string][2]string{
	"0.01": {"0.01", "0.07"}, "0.05": {"0.01", "0.34"}, "0.10": {"0.01", "0.63"},
	"0.15": {"0.01", "0.90"}, "0.20": {"0.02", "1.12"}, "0.25": {"0.02", "1.32"},
	"0.30": {"0.02", "1.47"}, "0.35": {"0.02", "1.60"}, "0.40": {"0.02", "1.68"},
	"0.45": {"0.02", "1.74"}, "0.50": {"0.02", "1.75"}, "0.55": {"0.02", "1.74"},
	"0.60": {"0.02", "1.68"}, "0.65": {"0.02", "1.60"}, "0.70": {"0.02", "1.47"},
	"0.75": {"0.02", "1.32"}, "0.80": {"0.02", "1.12"}, "0.85": {"0.01", "0.90"},
	"0.90": {"0.01", "0.63"}, "0.95": {"0.01", "0.34"}, "0.99": {"0.01", "0.07"},
}

var indexTable = map[string][2]string{
	"0.01": {"0.01", "0.04"}, "0.05": {"0.01", "0.17"}, "0.10": {"0.01", "0.32"},
	"0.15": {"0.01", "0.45"}, "0.20": {"0.01", "0.56"}, "0.25": {"0.01", "0.66"},
	"0.30": {"0.01", "0.74"}, "0.35": {"0.01", "0.80"}, "0.40": {"0.01", "0.84"},
	"0.45": {"0.01", "0.87"}, "0.50": {"0.01", "0.88"}, "0.55": {"0.01", "0.87"},
	"0.60": {"0.01", "0.84"}, "0.65": {"0.01", "0.80"}, "0.70": {"0.01", "0.74"},
	"0.75": {"0.01", "0.66"}, "0.80": {"0.01", "0.56"}, "0.85": {"0.01", "0.45"},
	"0.90": {"0.01", "0.32"}, "0.95": {"0.01", "0.17"}, "0.99": {"0.01", "0.04"},
}

func TestTakerFeeTables(t *testing.T) {
	c := NewCalculator(DefaultSchedule())
	check := func(tk string, table map[string][2]string) {
		for price, want := range table {
			if got := c.TradingFee(d(price), 1, tk, false); !got.Equal(d(want[0])) {
				t.Errorf("%s @%s x1 = %s, want %s", tk, price, got, want[0])
			}
			if got := c.TradingFee(d(price), 100, tk, false); !got.Equal(d(want[1])) {
				t.Errorf("%s @%s x100 = %s, want %s", tk, price, got, want[1])
			}
		}
	}
	check("HIGHNY-22DEC23-T53.5", generalTable)
	check("INX-24JAN05-T4800", indexTable)
	check("NASDAQ100-24JAN05-T16000", indexTable)
}

func TestFeeExamples(t *testing.T) {
	c := NewCalculator(DefaultSchedule())
	tests := []struct {
		name string
		leg  domain.TradeLeg
		want string
	}{
		{"one contract at 0.50", domain.TradeLeg{Ticker: "HIGHNY-22DEC23-T53.5", Price: d("0.50"), Quantity: 1}, "0.02"},
		{"hundred at 0.01", domain.TradeLeg{Ticker: "HIGHNY-22DEC23-T53.5", Price: d("0.01"), Quantity: 100}, "0.07"},
		{"zero contracts", domain.TradeLeg{Ticker: "HIGHNY-22DEC23-T53.5", Price: d("0.50"), Quantity: 0}, "0"},
		{"maker in maker-fee series", domain.TradeLeg{Ticker: "KXFED-23DEC-T3.00", Price: d("0.50"), Quantity: 1, Maker: true}, "0.01"},
		{"maker 100 in maker-fee series", domain.TradeLeg{Ticker: "KXFED-23DEC-T3.00", Price: d("0.50"), Quantity: 100, Maker: true}, "0.25"},
		{"maker 3 in maker-fee series", domain.TradeLeg{Ticker: "KXGDP-24Q1-T2.0", Price: d("0.30"), Quantity: 3, Maker: true}, "0.01"},
		{"maker elsewhere", domain.TradeLeg{Ticker: "HIGHNY-22DEC23-T53.5", Price: d("0.50"), Quantity: 100, Maker: true}, "0"},
		{"taker in maker-fee series", domain.TradeLeg{Ticker: "KXFED-23DEC-T3.00", Price: d("0.50"), Quantity: 100}, "1.75"},
		{"series prefix is not a maker series", domain.TradeLeg{Ticker: "KXFEDX-23DEC-T3.00", Price: d("0.50"), Quantity: 1, Maker: true}, "0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Fee(tc.leg); !got.Equal(d(tc.want)) {
				t.Errorf("Fee = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestTotal(t *testing.T) {
	c := NewCalculator(DefaultSchedule())
	legs := []domain.TradeLeg{
		{Ticker: "HIGHNY-22DEC23-T53.5", Price: d("0.50"), Quantity: 100},
		{Ticker: "INX-24JAN05-T4800", Price: d("0.50"), Quantity: 100},
		{Ticker: "KXFED-23DEC-T3.00", Price: d("0.40"), Quantity: 100, Maker: true},
	}
	if got := c.Total(legs); !got.Equal(d("2.88")) {
		t.Errorf("Total = %s, want 2.88", got)
	}
	if got := c.Total(nil); !got.IsZero() {
		t.Errorf("Total(nil) = %s", got)
	}
}

func TestCeilToCent(t *testing.T) {
	tests := map[string]string{
		"0.0175":       "0.02",
		"0.0693":       "0.07",
		"0.01":         "0.01",
		"0.0100000001": "0.02",
		"0":            "0",
		"1.75":         "1.75",
	}
	for in, want := range tests {
		if got := CeilToCent(d(in)); !got.Equal(d(want)) {
			t.Errorf("CeilToCent(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestMakerRebate(t *testing.T) {
	c := NewCalculator(DefaultSchedule())

	// Each single-contract fill over-charges 0.0075.
	fills := make([]int64, 1333)
	for i := range fills {
		fills[i] = 1
	}
	if got := c.MakerRebate(fills); !got.IsZero() {
		t.Errorf("rebate below threshold = %s, want 0", got)
	}
	fills = append(fills, 1)
	if got := c.MakerRebate(fills); !got.Equal(d("10.005")) {
		t.Errorf("rebate above threshold = %s, want 10.005", got)
	}
	// 100 contracts round exactly; no rebate accrues.
	if got := c.MakerRebate([]int64{100, 100}); !got.IsZero() {
		t.Errorf("exact fills rebate = %s", got)
	}
}

func TestMonthlyMakerRebates(t *testing.T) {
	c := NewCalculator(DefaultSchedule())
	jan := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)

	var fills []MakerFill
	for i := 0; i < 1400; i++ {
		fills = append(fills, MakerFill{Contracts: 1, FilledAt: jan})
	}
	fills = append(fills, MakerFill{Contracts: 1, FilledAt: feb})

	got := c.MonthlyMakerRebates(fills)
	if len(got) != 2 {
		t.Fatalf("months = %d, want 2", len(got))
	}
	if !got["2025-01"].Equal(d("10.5")) {
		t.Errorf("january = %s, want 10.5", got["2025-01"])
	}
	if !got["2025-02"].IsZero() {
		t.Errorf("february = %s, want 0", got["2025-02"])
	}
}

func TestScheduleRate(t *testing.T) {
	s := DefaultSchedule()
	if !s.Rate("INXD-24JAN05").Equal(d("0.035")) {
		t.Errorf("INXD prefix should take reduced rate")
	}
	if !s.Rate("KXFED-23DEC").Equal(d("0.07")) {
		t.Errorf("KXFED should take general rate")
	}
	if !s.HasMakerFees("KXNBA") || s.HasMakerFees("HIGHNY") {
		t.Errorf("HasMakerFees mismatch")
	}
}
