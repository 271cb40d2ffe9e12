/**
 * @description
 * Pure pricing computation for contract creation. The engine applies at most one
 * promotional discount (the highest active percentage) and then a returning-client
 * reduction computed on the already-discounted price, so the two discounts stack
 * sequentially rather than additively.
 */

package domain

// Pricing is the outcome of pricing a contract at signing time.
type Pricing struct {
	BasePrice  float64
	FinalPrice float64

	DiscountPercentage float64
	DiscountAmount     float64
	Discount           *Discount

	ReturningClientApplied bool
	ReturningClientAmount  float64
}

// ComputePrice prices a contract from the system's upfront price, the support-year
// surcharge, an optional promotional discount and the returning-client flag.
// Amounts are rounded to 2 decimal places only at the end; the intermediate values
// stay unrounded so the sequential discounts compose exactly.
func ComputePrice(upfrontPrice float64, supportYears int, discount *Discount, returningClient bool) Pricing {
	base := upfrontPrice + float64(supportYears-1)*SupportYearSurcharge
	final := base

	p := Pricing{BasePrice: Round2(base)}

	if discount != nil {
		amount := base * discount.PercentageValue / 100
		final -= amount
		p.DiscountPercentage = discount.PercentageValue
		p.DiscountAmount = Round2(amount)
		p.Discount = discount
	}

	if returningClient {
		amount := final * ReturningClientDiscountRate
		final -= amount
		p.ReturningClientApplied = true
		p.ReturningClientAmount = Round2(amount)
	}

	p.FinalPrice = Round2(final)
	return p
}
