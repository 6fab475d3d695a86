package query

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradeflow/internal/dao"
	"tradeflow/internal/ledger"
	"tradeflow/internal/model"
	"tradeflow/internal/model/entity"
)

type tradeDao struct {
	db *gorm.DB
}

func NewTradeDao(db *gorm.DB) dao.TradeDao {
	return &tradeDao{db: db}
}

// AutoMigrate 建表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&entity.TradeRecord{}, &entity.PositionSnapshot{}, &entity.SignalExecution{})
}

// AppendTradeRecord 按 ID 幂等写入，重复投递直接忽略
func (d *tradeDao) AppendTradeRecord(ctx context.Context, rec model.TradeRecord) error {
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(tradeToEntity(rec)).Error
}

// SavePosition 以 (user_id, symbol) upsert 仓位快照
func (d *tradeDao) SavePosition(ctx context.Context, pos model.Position) error {
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "avg_entry_price", "cost_basis", "realized_pnl", "updated_at"}),
		}).
		Create(positionToEntity(pos)).Error
}

// LoadState 读取全部仓位快照与按时间排序的成交流水
func (d *tradeDao) LoadState(ctx context.Context) (*ledger.State, error) {
	var positions []entity.PositionSnapshot
	if err := d.db.WithContext(ctx).Find(&positions).Error; err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	var trades []entity.TradeRecord
	if err := d.db.WithContext(ctx).Order("timestamp ASC").Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	st := &ledger.State{
		Positions: make([]model.Position, 0, len(positions)),
		Trades:    make([]model.TradeRecord, 0, len(trades)),
	}
	for _, p := range positions {
		st.Positions = append(st.Positions, positionFromEntity(p))
	}
	for _, t := range trades {
		st.Trades = append(st.Trades, tradeFromEntity(t))
	}
	return st, nil
}

func (d *tradeDao) TradesByUser(ctx context.Context, userID string, start, end time.Time) ([]model.TradeRecord, error) {
	q := d.db.WithContext(ctx).Model(&entity.TradeRecord{}).
		Where("user_id = ?", userID).
		Where("timestamp >= ?", start)
	if !end.IsZero() {
		q = q.Where("timestamp <= ?", end)
	}
	var rows []entity.TradeRecord
	if err := q.Order("timestamp ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.TradeRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, tradeFromEntity(r))
	}
	return out, nil
}

func (d *tradeDao) PositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	var rows []entity.PositionSnapshot
	if err := d.db.WithContext(ctx).Where("user_id = ?", userID).Order("symbol ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Position, 0, len(rows))
	for _, r := range rows {
		out = append(out, positionFromEntity(r))
	}
	return out, nil
}
