package devops

import (
	"fmt"

	"github.com/hashicorp/go-bexpr"

	"github.com/opsgate/opsgate/internal/errs"
)

// FilterLogs evaluates a boolean filter expression against each log
// entry, e.g. `level == "ERROR" and source == "auth-service"`.
// An empty expression passes everything through; a malformed one is a
// validation error.
func FilterLogs(entries []LogEntry, expression string) ([]LogEntry, error) {
	if expression == "" {
		return entries, nil
	}

	eval, err := bexpr.CreateEvaluator(expression)
	if err != nil {
		return nil, errs.NewValidation("filter", fmt.Sprintf("invalid filter expression: %v", err))
	}

	matched := make([]LogEntry, 0, len(entries))
	for _, entry := range entries {
		ok, err := eval.Evaluate(map[string]any{
			"level":   entry.Level,
			"message": entry.Message,
			"source":  entry.Source,
		})
		if err != nil {
			return nil, errs.NewValidation("filter", fmt.Sprintf("filter evaluation failed: %v", err))
		}
		if ok {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

// FilterMetrics evaluates a boolean filter expression against each
// metric sample, e.g. `unit == "percent" and name == "cpu_utilization"`.
func FilterMetrics(points []MetricPoint, expression string) ([]MetricPoint, error) {
	if expression == "" {
		return points, nil
	}

	eval, err := bexpr.CreateEvaluator(expression)
	if err != nil {
		return nil, errs.NewValidation("filter", fmt.Sprintf("invalid filter expression: %v", err))
	}

	matched := make([]MetricPoint, 0, len(points))
	for _, point := range points {
		ok, err := eval.Evaluate(map[string]any{
			"name":    point.Name,
			"unit":    point.Unit,
			"service": point.Service,
		})
		if err != nil {
			return nil, errs.NewValidation("filter", fmt.Sprintf("filter evaluation failed: %v", err))
		}
		if ok {
			matched = append(matched, point)
		}
	}
	return matched, nil
}
