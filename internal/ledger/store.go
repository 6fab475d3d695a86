package ledger

import (
	"context"

	"tradeflow/internal/model"
)

// State 持久化层恢复的账本状态
type State struct {
	Positions []model.Position
	Trades    []model.TradeRecord
}

// TradeStore 成交与仓位的持久化，追加至少一次
type TradeStore interface {
	LoadState(ctx context.Context) (*State, error)
	AppendTradeRecord(ctx context.Context, rec model.TradeRecord) error
	SavePosition(ctx context.Context, pos model.Position) error
}

// PortfolioSink 组合快照的出口（缓存）
type PortfolioSink interface {
	SavePortfolio(ctx context.Context, summary model.PortfolioSummary) error
}

// Journal 本地成交日志
type Journal interface {
	Record(rec model.TradeRecord) error
}

// Publisher 事件出口，由 hub 实现
type Publisher interface {
	Broadcast(ev model.Event) error
}

type Option func(*Ledger)

func WithStore(s TradeStore) Option {
	return func(l *Ledger) { l.store = s }
}

func WithPortfolioSink(s PortfolioSink) Option {
	return func(l *Ledger) { l.sink = s }
}

func WithJournal(j Journal) Option {
	return func(l *Ledger) { l.journal = j }
}
