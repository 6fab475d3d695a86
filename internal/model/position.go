package model

import "time"

type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
	PositionFlat  PositionSide = "flat"
)

// SideOf 仓位方向只由数量符号决定
func SideOf(quantity float64) PositionSide {
	switch {
	case quantity > 0:
		return PositionLong
	case quantity < 0:
		return PositionShort
	default:
		return PositionFlat
	}
}

// Position 每个 (user, symbol) 的仓位，CostBasis == Quantity * AvgEntryPrice
type Position struct {
	UserID        string       `json:"user_id"`
	Symbol        string       `json:"symbol"`
	Quantity      float64      `json:"quantity"`
	Side          PositionSide `json:"side"`
	AvgEntryPrice float64      `json:"avg_entry_price"`
	CostBasis     float64      `json:"cost_basis"`
	MarketPrice   float64      `json:"market_price"`
	MarketValue   float64      `json:"market_value"`
	UnrealizedPnL float64      `json:"unrealized_pnl"`
	RealizedPnL   float64      `json:"realized_pnl"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Mark 按市价重新计算市值与未实现盈亏
func (p *Position) Mark(price float64) {
	if price > 0 {
		p.MarketPrice = price
	}
	p.MarketValue = p.Quantity * p.MarketPrice
	p.UnrealizedPnL = p.MarketValue - p.CostBasis
}

// PortfolioSummary 由仓位与挂单推导出的组合概况
type PortfolioSummary struct {
	UserID         string    `json:"user_id"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
	TotalValue     float64   `json:"total_value"`
	BuyingPower    float64   `json:"buying_power"`
	RealizedPnL    float64   `json:"realized_pnl"`
	UnrealizedPnL  float64   `json:"unrealized_pnl"`
	TotalPnL       float64   `json:"total_pnl"`
	OpenOrders     int       `json:"open_orders"`
	Positions      int       `json:"positions"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TradeRecord 每笔成交追加一条，创建后不可修改
type TradeRecord struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	Symbol      string    `json:"symbol"`
	Side        OrderSide `json:"side"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	Notional    float64   `json:"notional"`
	RealizedPnL float64   `json:"realized_pnl"`
	ReturnPct   float64   `json:"return_pct"`
	Closing     bool      `json:"closing"` // 是否为平仓成交
	SignalID    string    `json:"signal_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ReportPeriod 报表周期
type ReportPeriod string

const (
	PeriodDay   ReportPeriod = "day"
	PeriodWeek  ReportPeriod = "week"
	PeriodMonth ReportPeriod = "month"
	PeriodAll   ReportPeriod = "all"
)

// PerformanceReport 交易绩效报表
type PerformanceReport struct {
	UserID       string       `json:"user_id"`
	Period       ReportPeriod `json:"period"`
	From         time.Time    `json:"from"`
	TotalTrades  int          `json:"total_trades"`
	ClosedTrades int          `json:"closed_trades"`
	Wins         int          `json:"wins"`
	Losses       int          `json:"losses"`
	WinRate      float64      `json:"win_rate"`
	AvgWin       float64      `json:"avg_win"`
	AvgLoss      float64      `json:"avg_loss"`
	ProfitFactor float64      `json:"profit_factor"`
	SharpeRatio  float64      `json:"sharpe_ratio"`
	MaxDrawdown  float64      `json:"max_drawdown"`
	TotalPnL     float64      `json:"total_pnl"`
	TotalVolume  float64      `json:"total_volume"`
	GeneratedAt  time.Time    `json:"generated_at"`
}
