// internal/service/checkout/domain/state.go
package domain

// State 定义了订单的生命周期状态。终态一旦写入就不再改变。
type State string

const (
	StateInProgress State = "IN_PROGRESS"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
	StateRefunded   State = "REFUNDED"
)

// Terminal 判断状态是否已到终态。
func (s State) Terminal() bool {
	return s != StateInProgress
}
