package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

// FormatOpportunity renders opp as a plain-text title and body.
func FormatOpportunity(opp domain.ArbitrageOpportunity) (title, body string) {
	title = fmt.Sprintf("Arbitrage %s: +%s", opp.Strategy, dollars(opp.NetProfit))

	var b strings.Builder
	fmt.Fprintf(&b, "Markets: %s\n", strings.Join(opp.Markets, ", "))
	fmt.Fprintf(&b, "Size: %s contracts\n", humanize.Comma(opp.Size))
	fmt.Fprintf(&b, "Net profit: %s (gross %s, fees %s)\n",
		dollars(opp.NetProfit), dollars(opp.GrossProfit), dollars(opp.TotalFees))

	roc, infinite := opp.ReturnOnCapital()
	rocText := "n/a"
	if !infinite {
		rocText = roc.Shift(2).StringFixed(2) + "%"
	}
	fmt.Fprintf(&b, "Capital: %s (return %s)\n", dollars(opp.RequiredCapital), rocText)

	b.WriteString("Legs:\n")
	for _, l := range opp.Legs {
		fmt.Fprintf(&b, "  %s %s %s @ %s x%s\n",
			strings.ToUpper(string(l.Side)), strings.ToUpper(string(l.Position)),
			l.Ticker, l.Price.StringFixed(2), humanize.Comma(l.Quantity))
	}
	if opp.ExpiresAt != nil {
		fmt.Fprintf(&b, "Expires: %s\n", opp.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return title, strings.TrimRight(b.String(), "\n")
}

// dollars formats d as $1,234.56.
func dollars(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	d = d.Round(2)
	whole := d.Truncate(0)
	cents := d.Sub(whole).StringFixed(2)[1:] // ".xx"
	return sign + "$" + humanize.Comma(whole.IntPart()) + cents
}
