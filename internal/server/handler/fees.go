package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kalshiarb/internal/fees"
)

// FeeHandler quotes trading fees.
type FeeHandler struct {
	calc   *fees.Calculator
	logger *slog.Logger
}

func NewFeeHandler(calc *fees.Calculator, logger *slog.Logger) *FeeHandler {
	return &FeeHandler{calc: calc, logger: logHandler(logger, "fees")}
}

// Quote returns the fee for count contracts of ticker at price.
// GET /api/fees/quote?ticker=&price=&count=&maker=
func (h *FeeHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tk := q.Get("ticker")
	if tk == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}
	price, err := parseDecimal("price", q.Get("price"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !price.Valid || !price.Decimal.IsPositive() || price.Decimal.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		writeError(w, http.StatusBadRequest, "price must be between 0 and 1 exclusive")
		return
	}
	count := int64(1)
	if v := q.Get("count"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		count = n
	}
	maker, _ := strconv.ParseBool(q.Get("maker"))

	fee := h.calc.TradingFee(price.Decimal, count, tk, maker)
	writeJSON(w, http.StatusOK, map[string]any{
		"ticker":   tk,
		"price":    price.Decimal.StringFixed(2),
		"count":    count,
		"maker":    maker,
		"rate":     h.calc.Schedule().Rate(tk).String(),
		"fee":      fee.StringFixed(2),
		"notional": price.Decimal.Mul(decimal.NewFromInt(count)).StringFixed(2),
	})
}
