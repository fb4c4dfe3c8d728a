// internal/service/inventory/infrastructure/cel_rule.go
package infrastructure

import (
	"atlas/internal/service/inventory/domain"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// CELAlertRule 用一条 CEL 表达式决定是否发 StockLow 告警。
// 表达式来自配置，默认 "available <= threshold"；
// 运维可以在不改代码的情况下换成更复杂的规则，
// 例如 "available <= threshold && reserved > 0"。
type CELAlertRule struct {
	program cel.Program
}

func NewCELAlertRule(expr string) (*CELAlertRule, error) {
	env, err := cel.NewEnv(
		cel.Variable("quantity", cel.IntType),
		cel.Variable("reserved", cel.IntType),
		cel.Variable("available", cel.IntType),
		cel.Variable("threshold", cel.IntType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "build CEL environment")
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "compile alert rule %q", expr)
	}
	if ast.OutputType() != cel.BoolType {
		return nil, errors.Errorf("alert rule %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "build program for %q", expr)
	}
	return &CELAlertRule{program: program}, nil
}

func (r *CELAlertRule) ShouldAlert(inv *domain.Inventory) (bool, error) {
	out, _, err := r.program.Eval(map[string]interface{}{
		"quantity":  int64(inv.Quantity),
		"reserved":  int64(inv.Reserved),
		"available": int64(inv.Available()),
		"threshold": int64(inv.LowStockThreshold),
	})
	if err != nil {
		return false, errors.Wrap(err, "evaluate alert rule")
	}
	hit, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("alert rule returned %T, want bool", out.Value())
	}
	return hit, nil
}
