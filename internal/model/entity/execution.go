package entity

import (
	"time"

	"gorm.io/datatypes"
)

// SignalExecution 信号执行审计
type SignalExecution struct {
	ID             uint64         `gorm:"primaryKey"`
	SignalID       string         `gorm:"column:signal_id;type:varchar(64);not null;index"`
	Symbol         string         `gorm:"type:varchar(30);not null"`
	Action         string         `gorm:"type:varchar(10);not null"`
	Status         string         `gorm:"type:varchar(20);not null;index"` // filled/partial/failed/hitl_required
	Stealth        bool           `gorm:"column:stealth"`
	EstimatedValue float64        `gorm:"column:estimated_value;type:decimal(24,8)"`
	TotalQuantity  float64        `gorm:"column:total_quantity;type:decimal(24,8)"`
	FilledQuantity float64        `gorm:"column:filled_quantity;type:decimal(24,8)"`
	AvgFillPrice   float64        `gorm:"column:avg_fill_price;type:decimal(24,8)"`
	Slices         int            `gorm:"column:slices"`
	OrderIDs       datatypes.JSON `gorm:"column:order_ids"`
	Conditions     datatypes.JSON `gorm:"column:conditions"`
	Message        string         `gorm:"type:text"`
	StartedAt      time.Time      `gorm:"column:started_at"`
	CompletedAt    time.Time      `gorm:"column:completed_at"`
	CreatedAt      time.Time      `gorm:"column:created_at"`
}

func (SignalExecution) TableName() string {
	return "signal_executions"
}
