// internal/service/returns/infrastructure/gorm_return_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"storefront/internal/service/returns/domain"
)

// ReturnModel 对应 return_requests 表。
type ReturnModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	RMANumber string `gorm:"size:32;uniqueIndex"`
	OrderID   int64  `gorm:"index"`
	Status    string `gorm:"size:32;index"`
	Reason    string `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Lines      []ReturnLineModel `gorm:"foreignKey:ReturnID"`
	CreditNote *CreditNoteModel  `gorm:"foreignKey:ReturnID"`
}

func (ReturnModel) TableName() string { return "return_requests" }

// ReturnLineModel 对应 return_lines 表。
type ReturnLineModel struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	ReturnID        int64  `gorm:"index"`
	SKU             string `gorm:"size:64;index"`
	Qty             int
	UnitAmountCents int64
}

func (ReturnLineModel) TableName() string { return "return_lines" }

// CreditNoteModel 对应 credit_notes 表。
type CreditNoteModel struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	ReturnID     int64  `gorm:"uniqueIndex"`
	CreditNoteNo string `gorm:"size:32;uniqueIndex"`
	AmountCents  int64
	CreatedAt    time.Time
}

func (CreditNoteModel) TableName() string { return "credit_notes" }

// GormReturnRepository 是退货单聚合基于 GORM 的持久化实现。
type GormReturnRepository struct {
	db *gorm.DB
}

func NewGormReturnRepository(db *gorm.DB) (*GormReturnRepository, error) {
	if err := db.AutoMigrate(&ReturnModel{}, &ReturnLineModel{}, &CreditNoteModel{}); err != nil {
		return nil, errors.Wrap(err, "migrate return tables")
	}
	return &GormReturnRepository{db: db}, nil
}

func (r *GormReturnRepository) Save(ctx context.Context, ret *domain.ReturnRequest) error {
	row := &ReturnModel{
		RMANumber: ret.RMANumber,
		OrderID:   ret.OrderID,
		Status:    string(ret.Status),
		Reason:    ret.Reason,
		CreatedAt: ret.CreatedAt,
		UpdatedAt: ret.UpdatedAt,
	}
	for _, l := range ret.Lines {
		row.Lines = append(row.Lines, ReturnLineModel{
			SKU:             l.SKU,
			Qty:             l.Qty,
			UnitAmountCents: l.UnitAmountCents,
		})
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return errors.Wrap(err, "insert return request")
	}
	ret.ID = row.ID
	for i := range row.Lines {
		ret.Lines[i].ID = row.Lines[i].ID
		ret.Lines[i].ReturnID = row.ID
	}
	return nil
}

func (r *GormReturnRepository) FindByID(ctx context.Context, id int64) (*domain.ReturnRequest, error) {
	var row ReturnModel
	err := r.db.WithContext(ctx).Preload("Lines").Preload("CreditNote").First(&row, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReturnNotFound
		}
		return nil, errors.Wrap(err, "query return request")
	}
	return toDomainReturn(&row), nil
}

func (r *GormReturnRepository) FindByRMA(ctx context.Context, rmaNumber string) (*domain.ReturnRequest, error) {
	var row ReturnModel
	err := r.db.WithContext(ctx).Preload("Lines").Preload("CreditNote").
		Where("rma_number = ?", rmaNumber).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReturnNotFound
		}
		return nil, errors.Wrap(err, "query return request by rma")
	}
	return toDomainReturn(&row), nil
}

func (r *GormReturnRepository) ReturnedQtyByOrder(ctx context.Context, orderID int64, statuses ...domain.ReturnStatus) (map[string]int, error) {
	type row struct {
		SKU string
		Qty int
	}
	query := r.db.WithContext(ctx).
		Table("return_lines").
		Select("return_lines.sku AS sku, COALESCE(SUM(return_lines.qty), 0) AS qty").
		Joins("JOIN return_requests ON return_requests.id = return_lines.return_id").
		Where("return_requests.order_id = ?", orderID)
	if len(statuses) > 0 {
		wanted := make([]string, 0, len(statuses))
		for _, s := range statuses {
			wanted = append(wanted, string(s))
		}
		query = query.Where("return_requests.status IN ?", wanted)
	} else {
		query = query.Where("return_requests.status <> ?", string(domain.ReturnRejected))
	}
	var rows []row
	err := query.Group("return_lines.sku").Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "sum returned quantities")
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.SKU] = r.Qty
	}
	return out, nil
}

func (r *GormReturnRepository) Update(ctx context.Context, ret *domain.ReturnRequest) error {
	res := r.db.WithContext(ctx).Model(&ReturnModel{}).
		Where("id = ?", ret.ID).
		Updates(map[string]interface{}{
			"status":     string(ret.Status),
			"updated_at": ret.UpdatedAt,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "update return request")
	}
	if res.RowsAffected == 0 {
		return domain.ErrReturnNotFound
	}
	return nil
}

func (r *GormReturnRepository) SaveCreditNote(ctx context.Context, note *domain.CreditNote) error {
	row := &CreditNoteModel{
		ReturnID:     note.ReturnID,
		CreditNoteNo: note.CreditNoteNo,
		AmountCents:  note.AmountCents,
		CreatedAt:    note.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return errors.Wrap(err, "insert credit note")
	}
	note.ID = row.ID
	return nil
}

func toDomainReturn(m *ReturnModel) *domain.ReturnRequest {
	ret := &domain.ReturnRequest{
		ID:        m.ID,
		RMANumber: m.RMANumber,
		OrderID:   m.OrderID,
		Status:    domain.ReturnStatus(m.Status),
		Reason:    m.Reason,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	for _, l := range m.Lines {
		ret.Lines = append(ret.Lines, domain.ReturnLine{
			ID:              l.ID,
			ReturnID:        l.ReturnID,
			SKU:             l.SKU,
			Qty:             l.Qty,
			UnitAmountCents: l.UnitAmountCents,
		})
	}
	if m.CreditNote != nil {
		ret.CreditNote = &domain.CreditNote{
			ID:           m.CreditNote.ID,
			ReturnID:     m.CreditNote.ReturnID,
			CreditNoteNo: m.CreditNote.CreditNoteNo,
			AmountCents:  m.CreditNote.AmountCents,
			CreatedAt:    m.CreditNote.CreatedAt,
		}
	}
	return ret
}
