package queryexpr

import (
	"fmt"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/insightpilot/insight-engine/pkg/models"
)

// ValidationError describes a plan that references columns outside the
// schema or carries a hostile literal.
type ValidationError struct {
	Message     string
	Fingerprint string // non-empty when an injection pattern was detected
}

func (e *ValidationError) Error() string { return e.Message }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Validate checks a parsed plan against a dataset schema: every referenced
// column must exist, aggregates other than count must target numeric columns,
// and string literals must pass an injection screen. Literals arrive from a
// language model, so they get the same scrutiny as untrusted user input.
func Validate(plan *Plan, schema *models.SchemaDescriptor) error {
	for _, it := range plan.Select {
		if it.Star || (it.Func == AggCount && it.Column == "") {
			continue
		}
		col := schema.Column(it.Column)
		if col == nil {
			return validationErrorf("unknown column %q", it.Column)
		}
		if it.Func != AggNone && it.Func != AggCount && it.Func != AggMin && it.Func != AggMax {
			if col.Type != models.ColumnTypeNumeric {
				return validationErrorf("%s() requires a numeric column, %q is %s", it.Func, it.Column, col.Type)
			}
		}
	}

	for _, cond := range plan.Where {
		col := schema.Column(cond.Column)
		if col == nil {
			return validationErrorf("unknown column %q in filter", cond.Column)
		}
		if isSQLi, fingerprint := libinjection.IsSQLi(cond.Value); isSQLi {
			return &ValidationError{
				Message:     fmt.Sprintf("rejected literal for column %q", cond.Column),
				Fingerprint: fingerprint,
			}
		}
	}

	for _, g := range plan.GroupBy {
		if schema.Column(g) == nil {
			return validationErrorf("unknown column %q in group by", g)
		}
	}

	if plan.OrderBy != "" && schema.Column(plan.OrderBy) == nil && !isOutputName(plan, plan.OrderBy) {
		return validationErrorf("unknown column %q in order by", plan.OrderBy)
	}

	if len(plan.GroupBy) > 0 {
		for _, it := range plan.Select {
			if it.Func != AggNone || it.Star {
				continue
			}
			if !containsFold(plan.GroupBy, it.Column) {
				return validationErrorf("column %q must be grouped or aggregated", it.Column)
			}
		}
	}

	return nil
}

// isOutputName reports whether name matches an alias or derived aggregate
// name, which ORDER BY may reference.
func isOutputName(plan *Plan, name string) bool {
	for _, it := range plan.Select {
		if strings.EqualFold(it.OutputName(), name) {
			return true
		}
	}
	return false
}

func containsFold(list []string, name string) bool {
	for _, s := range list {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}
