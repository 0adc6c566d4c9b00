// internal/service/returns/infrastructure/rule/cel_policy.go
package rule

import (
	"context"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"storefront/internal/service/returns/domain/port"
)

// CELPolicy 用一条 CEL 表达式实现退货资格判定。
// 表达式在启动时编译一次，之后对每个退货行求值。
type CELPolicy struct {
	program cel.Program
}

// NewCELPolicy 编译配置里的规则表达式。表达式必须返回 bool。
func NewCELPolicy(expression string) (*CELPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("sku", cel.StringType),
		cel.Variable("qty", cel.IntType),
		cel.Variable("purchased", cel.IntType),
		cel.Variable("reason", cel.StringType),
		cel.Variable("days_since_order", cel.IntType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel environment")
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "compile eligibility rule %q", expression)
	}
	if ast.OutputType() != cel.BoolType {
		return nil, errors.Errorf("eligibility rule %q must evaluate to bool, got %s", expression, ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "build cel program")
	}
	return &CELPolicy{program: program}, nil
}

func (p *CELPolicy) Eligible(ctx context.Context, fact port.Fact) (bool, error) {
	out, _, err := p.program.ContextEval(ctx, map[string]interface{}{
		"sku":              fact.SKU,
		"qty":              int64(fact.Qty),
		"purchased":        int64(fact.Purchased),
		"reason":           fact.Reason,
		"days_since_order": int64(fact.DaysSinceOrder),
	})
	if err != nil {
		return false, errors.Wrap(err, "evaluate eligibility rule")
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("eligibility rule returned %T, want bool", out.Value())
	}
	return result, nil
}
