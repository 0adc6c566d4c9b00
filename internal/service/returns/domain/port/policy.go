// internal/service/returns/domain/port/policy.go
package port

import "context"

// Fact 是退货策略对单个退货行求值时可见的变量。
type Fact struct {
	SKU            string
	Qty            int
	Purchased      int
	Reason         string
	DaysSinceOrder int
}

// EligibilityPolicy 判断一个退货行是否可退。
// 规则本身是配置里的 CEL 表达式，运营可以不发版就改。
type EligibilityPolicy interface {
	Eligible(ctx context.Context, fact Fact) (bool, error)
}
