package entity

import (
	"time"
)

// TradeRecord 成交流水，只追加
type TradeRecord struct {
	ID          string    `gorm:"column:id;type:varchar(40);primaryKey"`
	OrderID     string    `gorm:"column:order_id;type:varchar(40);not null;index:idx_order"`
	UserID      string    `gorm:"column:user_id;type:varchar(64);not null;index:idx_user_time"`
	Symbol      string    `gorm:"type:varchar(30);not null"`
	Side        string    `gorm:"type:varchar(10);not null"` // buy/sell
	Quantity    float64   `gorm:"type:decimal(24,8);not null"`
	Price       float64   `gorm:"type:decimal(24,8);not null"`
	Notional    float64   `gorm:"type:decimal(24,8);not null"`
	RealizedPnL float64   `gorm:"column:realized_pnl;type:decimal(24,8)"`
	ReturnPct   float64   `gorm:"column:return_pct;type:decimal(12,6)"`
	Closing     bool      `gorm:"column:closing"`
	SignalID    string    `gorm:"column:signal_id;type:varchar(64)"`
	Timestamp   time.Time `gorm:"column:timestamp;not null;index:idx_user_time"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (TradeRecord) TableName() string {
	return "trade_records"
}

// PositionSnapshot 仓位快照，(user_id, symbol) 唯一
type PositionSnapshot struct {
	ID            uint64    `gorm:"primaryKey"`
	UserID        string    `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:uk_user_symbol"`
	Symbol        string    `gorm:"type:varchar(30);not null;uniqueIndex:uk_user_symbol"`
	Quantity      float64   `gorm:"type:decimal(24,8);not null"`
	AvgEntryPrice float64   `gorm:"column:avg_entry_price;type:decimal(24,8)"`
	CostBasis     float64   `gorm:"column:cost_basis;type:decimal(24,8)"`
	RealizedPnL   float64   `gorm:"column:realized_pnl;type:decimal(24,8)"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (PositionSnapshot) TableName() string {
	return "position_snapshots"
}
