package products

import (
	"github.com/shopspring/decimal"

	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/money"
)

// UnitPrice selects the tier price for a buyer: premium roles pay the premium
// price, renewals use the renewal variants. The buyer's personal discount
// percent is applied on top and the result rounded to 2 decimals.
func UnitPrice(product *models.Product, buyer *models.User, renewal bool) decimal.Decimal {
	premium := buyer.Role.IsPremium()

	var base decimal.Decimal
	switch {
	case renewal && premium:
		base = product.PremiumRenewalPrice
	case renewal:
		base = product.RenewalPrice
	case premium:
		base = product.PremiumPrice
	default:
		base = product.Price
	}

	if buyer.DiscountPercent.IsPositive() {
		factor := decimal.NewFromInt(100).Sub(buyer.DiscountPercent).Div(decimal.NewFromInt(100))
		base = base.Mul(factor)
	}
	return money.Round(base)
}
