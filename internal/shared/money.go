package shared

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var colombia = language.MustParse("es-CO")

// FormatCOP renders an amount the way Colombian users read it: "$90.000.000".
// Fractional amounts keep two decimals.
func FormatCOP(amount decimal.Decimal) string {
	p := message.NewPrinter(colombia)
	if amount.IsInteger() {
		return p.Sprintf("$%d", amount.IntPart())
	}
	return p.Sprintf("$%.2f", amount.Round(2).InexactFloat64())
}

// Percent returns part/total*100 rounded to two decimals, or zero when total is not positive.
func Percent(part, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return part.Div(total).Mul(decimal.NewFromInt(100)).Round(2)
}
