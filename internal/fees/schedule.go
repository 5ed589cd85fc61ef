// Package fees computes exchange trading fees exactly, in dollars rounded up
// to the cent.
package fees

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Schedule is the static fee configuration. The zero value charges nothing;
// use DefaultSchedule for the exchange's published rates.
type Schedule struct {
	GeneralRate         decimal.Decimal
	ReducedRate         decimal.Decimal
	MakerFeePerContract decimal.Decimal
	RebateThreshold     decimal.Decimal
	ReducedRatePrefixes []string
	MakerFeeSeries      map[string]struct{}
}

// DefaultReducedRatePrefixes are the ticker prefixes billed at the reduced
// index rate.
var DefaultReducedRatePrefixes = []string{"INX", "NASDAQ100"}

// DefaultMakerFeeSeries lists the series in which resting orders pay a fee.
var DefaultMakerFeeSeries = []string{
	"KXAAAGASM", "KXGDP", "KXPAYROLLS", "KXU3", "KXEGGS", "KXCPI", "KXCPIYOY",
	"KXFEDDECISION", "KXFED", "KXNBA", "KXNBAEAST", "KXNBAWEST", "KXNBASERIES",
	"KXNBAGAME", "KXNHL", "KXNHLEAST", "KXNHLWEST", "KXNHLSERIES", "KXNHLGAME",
	"KXINDY500", "KXPGA", "KXUSOPEN", "KXPGARYDER", "KXTHEOPEN", "KXPGASOLHEIM",
	"KXFOMENSINGLES", "KXFOWOMENSINGLES", "KXWMENSINGLES", "KXWWOMENSINGLES",
	"KXUSOMENSINGLES", "KXUSOWOMENSINGLES", "KXAOMENSINGLES", "KXAOWOMENSINGLES",
	"KXNFLGAME", "KXUEFACL", "KXNBAFINALSMVP", "KXCONNSMYTHE", "KXFOMEN",
	"KXFOWOMEN", "KXNATHANSHD", "KXNATHANDOGS", "KXCLUBWC", "KXTOURDEFRANCE",
	"KXNASCARRACE",
}

// DefaultSchedule returns the published fee schedule.
func DefaultSchedule() Schedule {
	return NewSchedule(
		decimal.RequireFromString("0.07"),
		decimal.RequireFromString("0.035"),
		decimal.RequireFromString("0.0025"),
		decimal.NewFromInt(10),
		DefaultReducedRatePrefixes,
		DefaultMakerFeeSeries,
	)
}

// NewSchedule builds a Schedule from explicit rates and lists.
func NewSchedule(general, reduced, makerPerContract, rebateThreshold decimal.Decimal, reducedPrefixes, makerSeries []string) Schedule {
	set := make(map[string]struct{}, len(makerSeries))
	for _, s := range makerSeries {
		set[s] = struct{}{}
	}
	return Schedule{
		GeneralRate:         general,
		ReducedRate:         reduced,
		MakerFeePerContract: makerPerContract,
		RebateThreshold:     rebateThreshold,
		ReducedRatePrefixes: append([]string(nil), reducedPrefixes...),
		MakerFeeSeries:      set,
	}
}

// Rate returns the taker rate that applies to ticker.
func (s Schedule) Rate(ticker string) decimal.Decimal {
	for _, p := range s.ReducedRatePrefixes {
		if strings.HasPrefix(ticker, p) {
			return s.ReducedRate
		}
	}
	return s.GeneralRate
}

// HasMakerFees reports whether resting orders in series are charged.
func (s Schedule) HasMakerFees(series string) bool {
	_, ok := s.MakerFeeSeries[series]
	return ok
}

// CeilToCent rounds x up to the next whole cent.
func CeilToCent(x decimal.Decimal) decimal.Decimal {
	return x.RoundUp(2)
}
