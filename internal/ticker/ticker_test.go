package ticker

import (
	"errors"
	"testing"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	tests := []struct {
		ticker string
		series string
		date   string
		kind   domain.ThresholdKind
		value  string // empty means unset
	}{
		{"KXFED-23DEC-T3.00", "KXFED", "23DEC", domain.ThresholdAbove, "3"},
		{"HIGHNY-22DEC23-B53.5", "HIGHNY", "22DEC23", domain.ThresholdBelow, "53.5"},
		{"KXFED-23DEC-E2", "KXFED", "23DEC", domain.ThresholdExactly, "2"},
		{"INX-24JAN05-R4800", "INX", "24JAN05", domain.ThresholdRange, "4800"},
		{"INX-24JAN05-R4800to4825", "INX", "24JAN05", domain.ThresholdRange, ""},
		{"INX-24JAN05-X4800", "INX", "24JAN05", domain.ThresholdNone, ""},
		{"KXFED-23DEC", "KXFED", "23DEC", domain.ThresholdNone, ""},
		{"KXFED", "KXFED", "", domain.ThresholdNone, ""},
		{"", "", "", domain.ThresholdNone, ""},
		{"KXFED-23DEC-", "KXFED", "23DEC", domain.ThresholdNone, ""},
	}
	for _, tc := range tests {
		t.Run(tc.ticker, func(t *testing.T) {
			d, err := Parse(tc.ticker, "title")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Ticker != tc.ticker || d.Title != "title" {
				t.Errorf("ticker/title = %q/%q", d.Ticker, d.Title)
			}
			if d.Series != tc.series {
				t.Errorf("series = %q, want %q", d.Series, tc.series)
			}
			if d.Date != tc.date {
				t.Errorf("date = %q, want %q", d.Date, tc.date)
			}
			if d.Kind != tc.kind {
				t.Errorf("kind = %q, want %q", d.Kind, tc.kind)
			}
			if tc.value == "" {
				if d.Value.Valid {
					t.Errorf("value = %s, want unset", d.Value.Decimal)
				}
				return
			}
			want := decimal.RequireFromString(tc.value)
			if !d.Value.Valid || !d.Value.Decimal.Equal(want) {
				t.Errorf("value = %v, want %s", d.Value, want)
			}
		})
	}
}

func TestParseMalformedValue(t *testing.T) {
	for _, tk := range []string{"KXFED-23DEC-T", "KXFED-23DEC-Tabc", "KXFED-23DEC-E3.0.1"} {
		d, err := Parse(tk, "")
		var ve *ValueError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: error = %v, want *ValueError", tk, err)
		}
		if d.Series != "KXFED" || d.Date != "23DEC" {
			t.Errorf("%s: descriptor fields lost: %+v", tk, d)
		}
		if d.Value.Valid {
			t.Errorf("%s: value should be unset", tk)
		}
		if d.HasThreshold() {
			t.Errorf("%s: HasThreshold = true", tk)
		}
	}
}

func TestSeries(t *testing.T) {
	if got := Series("INX-24JAN05-T4800"); got != "INX" {
		t.Errorf("Series = %q", got)
	}
	if got := Series("KXGDP"); got != "KXGDP" {
		t.Errorf("Series = %q", got)
	}
}
