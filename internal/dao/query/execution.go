package query

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tradeflow/internal/dao"
	"tradeflow/internal/model"
	"tradeflow/internal/model/entity"
)

type executionDao struct {
	db *gorm.DB
}

func NewExecutionDao(db *gorm.DB) dao.ExecutionDao {
	return &executionDao{db: db}
}

func (d *executionDao) SaveExecution(ctx context.Context, res *model.ExecutionResult) error {
	e, err := executionToEntity(res)
	if err != nil {
		return err
	}
	return d.db.WithContext(ctx).Create(e).Error
}

// GetExecution 同一信号可能多次审计（先 hitl_required 后执行），取最新一条
func (d *executionDao) GetExecution(ctx context.Context, signalID string) (*model.ExecutionResult, error) {
	var e entity.SignalExecution
	err := d.db.WithContext(ctx).
		Where("signal_id = ?", signalID).
		Order("id DESC").
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return executionFromEntity(e)
}
