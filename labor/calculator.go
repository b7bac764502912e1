package labor

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/labor-ledger/ledger"
)

// Calculator prices hours of work.
type Calculator struct {
	comp *Compensation
}

func NewCalculator(comp *Compensation) *Calculator {
	return &Calculator{comp: comp}
}

// LaborCost is HourlyCost(employee) * hours. Hours may be negative, which
// prices a reduction. The result is not rounded.
func (c *Calculator) LaborCost(ctx context.Context, id ledger.EmployeeID, hours decimal.Decimal) (decimal.Decimal, error) {
	rate, err := c.comp.HourlyCost(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return rate.Mul(hours), nil
}
