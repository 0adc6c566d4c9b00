// internal/service/ledger/infrastructure/gorm_ledger.go
package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"storefront/internal/service/ledger/domain"
)

// RecordModel 对应数据库中的 idempotency_records 表。
type RecordModel struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Key          string `gorm:"column:idem_key;size:128;uniqueIndex;not null"`
	Operation    string `gorm:"size:64;not null"`
	Status       string `gorm:"size:32;not null;default:IN_PROGRESS"`
	ResponseBody []byte `gorm:"type:json"`
	LastError    string `gorm:"size:1024"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (RecordModel) TableName() string {
	return "idempotency_records"
}

// GormLedger 是 domain.Ledger 的持久化实现。
//
// 它持有自己的 *gorm.DB 并且从不加入调用方的事务：每一次写都立即提交。
// 这正是 Begin 的可见性要求——「我是 owner」的标记必须先于调用方的
// 大事务对并发竞争者可见。唯一赢家由数据库唯一键保证。
type GormLedger struct {
	db *gorm.DB
}

var _ domain.Ledger = (*GormLedger)(nil)

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

// Migrate 建表。各组装根在启动时调用一次。
func (l *GormLedger) Migrate() error {
	return l.db.AutoMigrate(&RecordModel{})
}

func (l *GormLedger) Begin(ctx context.Context, key, operation string) (*domain.Record, bool, error) {
	// FAILED 允许被重新认领：带状态守卫的 UPDATE 保证只有一个认领者成功。
	res := l.db.WithContext(ctx).Model(&RecordModel{}).
		Where("idem_key = ? AND status = ?", key, string(domain.StatusFailed)).
		Updates(map[string]interface{}{
			"status":    string(domain.StatusInProgress),
			"operation": operation,
		})
	if res.Error != nil {
		return nil, false, errors.Wrap(res.Error, "reclaim failed record")
	}
	if res.RowsAffected == 1 {
		rec, err := l.Get(ctx, key)
		return rec, true, err
	}

	row := &RecordModel{
		Key:       key,
		Operation: operation,
		Status:    string(domain.StatusInProgress),
	}
	err := l.db.WithContext(ctx).Create(row).Error
	if err == nil {
		return toDomainRecord(row), true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, errors.Wrap(err, "insert idempotency record")
	}
	// 别的调用方先插成功了：返回其最新状态，won=false。
	rec, err := l.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return rec, false, nil
}

func (l *GormLedger) Get(ctx context.Context, key string) (*domain.Record, error) {
	var row RecordModel
	// NewDB 会话：绕开任何语句缓存/会话状态，保证读到最新提交
	err := l.db.WithContext(ctx).Session(&gorm.Session{NewDB: true}).
		Where("idem_key = ?", key).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, errors.Wrap(err, "load idempotency record")
	}
	return toDomainRecord(&row), nil
}

func (l *GormLedger) Store(ctx context.Context, key, operation string, partial map[string]interface{}, merge bool) (*domain.Record, error) {
	var out *domain.Record
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row RecordModel
		err := tx.Where("idem_key = ?", key).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			body, merr := json.Marshal(partial)
			if merr != nil {
				return errors.Wrap(merr, "marshal partial response")
			}
			row = RecordModel{
				Key:          key,
				Operation:    operation,
				Status:       string(domain.StatusInProgress),
				ResponseBody: body,
			}
			if err := tx.Create(&row).Error; err != nil {
				return errors.Wrap(err, "insert idempotency record")
			}
			out = toDomainRecord(&row)
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "load idempotency record")
		}

		body := map[string]interface{}{}
		if merge && len(row.ResponseBody) > 0 {
			if err := json.Unmarshal(row.ResponseBody, &body); err != nil {
				return errors.Wrap(err, "decode stored response")
			}
		}
		for k, v := range partial {
			body[k] = v
		}
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal merged response")
		}
		// 状态保持不变：Store 只承载中间结果
		if err := tx.Model(&row).Update("response_body", encoded).Error; err != nil {
			return errors.Wrap(err, "store partial response")
		}
		row.ResponseBody = encoded
		out = toDomainRecord(&row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *GormLedger) MarkCompleted(ctx context.Context, key string, response map[string]interface{}) (*domain.Record, error) {
	body, err := json.Marshal(response)
	if err != nil {
		return nil, errors.Wrap(err, "marshal response")
	}
	res := l.db.WithContext(ctx).Model(&RecordModel{}).
		Where("idem_key = ?", key).
		Updates(map[string]interface{}{
			"status":        string(domain.StatusCompleted),
			"response_body": body,
		})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "mark record completed")
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrRecordNotFound
	}
	return l.Get(ctx, key)
}

func (l *GormLedger) MarkFailed(ctx context.Context, key, errorMessage string) (*domain.Record, error) {
	res := l.db.WithContext(ctx).Model(&RecordModel{}).
		Where("idem_key = ?", key).
		Updates(map[string]interface{}{
			"status":     string(domain.StatusFailed),
			"last_error": errorMessage,
		})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "mark record failed")
	}
	if res.RowsAffected == 0 {
		row := &RecordModel{
			Key:       key,
			Operation: "unknown",
			Status:    string(domain.StatusFailed),
			LastError: errorMessage,
		}
		if err := l.db.WithContext(ctx).Create(row).Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errors.Wrap(err, "insert failed record")
		}
	}
	return l.Get(ctx, key)
}

func toDomainRecord(m *RecordModel) *domain.Record {
	rec := &domain.Record{
		Key:       m.Key,
		Operation: m.Operation,
		Status:    domain.Status(m.Status),
		LastError: m.LastError,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if len(m.ResponseBody) > 0 {
		body := map[string]interface{}{}
		if err := json.Unmarshal(m.ResponseBody, &body); err == nil {
			rec.ResponseBody = body
		}
	}
	return rec
}
