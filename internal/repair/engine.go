package repair

import (
	"go.uber.org/zap"

	"github.com/sells-group/sales-etl/internal/model"
	"github.com/sells-group/sales-etl/internal/table"
)

// Result records how many rows each rule matched, keyed by rule name.
type Result struct {
	Matched map[string]int
	// Order lists rule names in the order they ran.
	Order []string
}

// Total returns the number of rule applications across all rules.
func (r *Result) Total() int {
	n := 0
	for _, c := range r.Matched {
		n += c
	}
	return n
}

// Engine applies an ordered rule list to shipping tables.
type Engine struct {
	rules []Rule
}

// NewEngine creates an Engine with the given rules. With no rules it uses Rules().
func NewEngine(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = Rules()
	}
	return &Engine{rules: rules}
}

// Apply runs every rule over t in order, mutating t in place. Each rule is a batch
// pass: its predicate is evaluated for every row before any matching row is fixed.
// Rows that match no rule are left as they are.
func (e *Engine) Apply(t *table.Table) (*Result, error) {
	if err := model.CheckShippingColumns(t); err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "repair"))
	res := &Result{Matched: make(map[string]int, len(e.rules))}

	for _, rule := range e.rules {
		rows := t.Mask(func(i int) bool {
			return rule.Match(model.ShippingAt(t, i))
		})
		for _, i := range rows {
			model.PutShipping(t, i, rule.Fix(model.ShippingAt(t, i)))
		}

		res.Matched[rule.Name] = len(rows)
		res.Order = append(res.Order, rule.Name)
		if len(rows) > 0 {
			log.Debug("repair rule applied", zap.String("rule", rule.Name), zap.Int("rows", len(rows)))
		}
	}

	log.Info("shipping repair complete", zap.Int("rows", t.Len()), zap.Int("fixes", res.Total()))
	return res, nil
}
