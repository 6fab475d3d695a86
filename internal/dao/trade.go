package dao

import (
	"context"
	"time"

	"tradeflow/internal/ledger"
	"tradeflow/internal/model"
)

// TradeDao 成交流水与仓位快照，满足 ledger.TradeStore
type TradeDao interface {
	ledger.TradeStore
	// 按时间范围查询用户成交，end 为零值时不限制
	TradesByUser(ctx context.Context, userID string, start, end time.Time) ([]model.TradeRecord, error)
	// 用户最新的仓位快照
	PositionsByUser(ctx context.Context, userID string) ([]model.Position, error)
}

// ExecutionDao 信号执行审计
type ExecutionDao interface {
	SaveExecution(ctx context.Context, res *model.ExecutionResult) error
	GetExecution(ctx context.Context, signalID string) (*model.ExecutionResult, error)
}

// PortfolioCache 组合快照缓存
type PortfolioCache interface {
	ledger.PortfolioSink
	GetPortfolio(ctx context.Context, userID string) (*model.PortfolioSummary, error)
}
