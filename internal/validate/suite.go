package validate

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sales-etl/internal/model"
	"github.com/sells-group/sales-etl/internal/table"
)

// NamedCheck pairs a check with a label for logging.
type NamedCheck struct {
	Name  string
	Check Check
}

// Suite is the ordered list of checks for one entity.
type Suite struct {
	Entity string
	Checks []NamedCheck
}

// Run executes the checks in order and stops at the first failure.
func (s Suite) Run(t *table.Table) error {
	log := zap.L().With(zap.String("component", "validate"), zap.String("entity", s.Entity))
	for _, c := range s.Checks {
		if err := c.Check(t); err != nil {
			log.Error("validation failed", zap.String("check", c.Name), zap.Error(err))
			return eris.Wrapf(err, "validate: %s %s", s.Entity, c.Name)
		}
	}
	log.Debug("validation passed", zap.Int("checks", len(s.Checks)), zap.Int("rows", t.Len()))
	return nil
}

// ForEntity returns the validation suite for the named entity.
func ForEntity(entity string) (Suite, error) {
	switch entity {
	case model.EntityCustomer:
		return Suite{Entity: entity, Checks: []NamedCheck{
			{"customer_id format", CustomerID("customer_id")},
		}}, nil
	case model.EntityInvoice:
		return Suite{Entity: entity, Checks: []NamedCheck{
			{"order_id format", OrderID("order_id")},
			{"line_no bound", MinBound("line_no", 1)},
			{"order_date type", Date("order_date")},
			{"ship_date type", Date("ship_date")},
			{"customer_id format", CustomerID("customer_id")},
			{"product_id format", ProductID("product_id")},
			{"sale_value numeric", Numeric("sale_value")},
			{"quantity bound", MinBound("quantity", 1)},
			{"profit numeric", Numeric("profit")},
			{"shipping_cost numeric", Numeric("shipping_cost")},
			{"discount range", Range("discount", 0, 1)},
		}}, nil
	case model.EntityProduct:
		return Suite{Entity: entity, Checks: []NamedCheck{
			{"product_id format", ProductID("product_id")},
		}}, nil
	case model.EntityRegion:
		return Suite{Entity: entity, Checks: []NamedCheck{
			{"region_id numeric", Numeric(model.ColRegionID)},
		}}, nil
	case model.EntityShipping:
		return Suite{Entity: entity, Checks: []NamedCheck{
			{"shipping_id numeric", Numeric(model.ColShippingID)},
			{"customer_id format", CustomerID(model.ColCustomerID)},
			{"postal_code numeric", Numeric(model.ColPostalCode)},
			{"effective_start type", Date(model.ColEffectiveStart)},
			{"effective_end type", Date(model.ColEffectiveEnd)},
			{"region_id numeric", Numeric(model.ColRegionID)},
		}}, nil
	default:
		return Suite{}, eris.Errorf("validate: unknown entity %q", entity)
	}
}
