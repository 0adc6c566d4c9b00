// internal/service/ledger/domain/record.go
package domain

import (
	"context"
	"errors"
	"time"
)

// Status 定义了幂等记录的生命周期状态。
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal 判断状态是否已到终态。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record 是一次逻辑操作的幂等账本记录。
// 不变式：每个 key 至多一条记录；一旦 COMPLETED，ResponseBody 永不再变。
type Record struct {
	Key       string
	Operation string
	Status    Status
	// ResponseBody 在 IN_PROGRESS 期间允许通过 Store 合并中间结果
	// （例如先落支付凭据再完成整个 saga），COMPLETED 后冻结。
	ResponseBody map[string]interface{}
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var (
	ErrRecordNotFound = errors.New("idempotency record not found")
	// ErrDuplicateInProgress 表示同 key 的操作正在被别的调用方执行，
	// 且在有界等待内没有到达终态。调用方应稍后重试，绝不能自己再执行一遍。
	ErrDuplicateInProgress = errors.New("duplicate request in progress, try again later")
)

// Ledger 是幂等账本的出站端口。
//
// Begin 的插入必须与调用方自身的事务隔离、立即可见：
// 「我是 owner」的标记要在调用方的大事务提交之前就能被并发竞争者看到，
// 否则两个并发调用方会同时认为自己赢了。
//
// 策略（见 DESIGN.md）：FAILED 的记录允许被下一个调用方重新认领
// （Begin 对 FAILED 原子地翻回 IN_PROGRESS 并返回 won=true），
// COMPLETED 永不允许重试。
type Ledger interface {
	// Begin 原子地尝试插入 IN_PROGRESS 记录。唯一键冲突时返回现存记录
	// 与 won=false。对固定的 key，恰好一个调用方观察到 won=true。
	Begin(ctx context.Context, key, operation string) (*Record, bool, error)

	// Get 绕过任何缓存视图，读取当前记录的最新状态。
	Get(ctx context.Context, key string) (*Record, error)

	// Store 向 IN_PROGRESS 记录附加部分结果，不改变状态。
	// merge=true 时按 key 合并，否则整体替换。记录不存在则创建。
	Store(ctx context.Context, key, operation string, partial map[string]interface{}, merge bool) (*Record, error)

	// MarkCompleted 终态流转；记录不存在时报错。
	MarkCompleted(ctx context.Context, key string, response map[string]interface{}) (*Record, error)

	// MarkFailed 流转到 FAILED；记录不存在时创建一条，
	// 防止一个连 Begin 都走不到的操作被无限重试。
	MarkFailed(ctx context.Context, key, errorMessage string) (*Record, error)
}
