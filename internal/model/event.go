package model

import "time"

// Channel 广播频道
type Channel string

const (
	ChannelDebates   Channel = "debates"
	ChannelConsensus Channel = "consensus"
	ChannelTrades    Channel = "trades"
	ChannelAgents    Channel = "agents"
	ChannelAlerts    Channel = "alerts"
)

// Channels 全部频道
var Channels = []Channel{ChannelDebates, ChannelConsensus, ChannelTrades, ChannelAgents, ChannelAlerts}

func (c Channel) Valid() bool {
	for _, ch := range Channels {
		if ch == c {
			return true
		}
	}
	return false
}

// EventType 事件类型
type EventType string

const (
	EventConsensusUpdate EventType = "consensus_update"
	EventThresholdAlert  EventType = "threshold_alert"
	EventSignalGenerated EventType = "signal_generated"
	EventDebateCleared   EventType = "debate_cleared"
	EventAgentVotes      EventType = "agent_votes"
	EventOrderUpdate     EventType = "order_update"
	EventTradeCompleted  EventType = "trade_completed"
	EventTradeFailed     EventType = "trade_failed"
	EventStealthStarted  EventType = "stealth_started"
	EventHITLRequired    EventType = "hitl_required"
	EventPortfolioUpdate EventType = "portfolio_update"
)

// Event 广播负载，只有本包内的类型可以实现
type Event interface {
	Type() EventType
	event()
}

// Envelope 推给订阅者的消息
type Envelope struct {
	Channel   Channel   `json:"channel"`
	Type      EventType `json:"type"`
	Data      Event     `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertCondition 阈值告警条件
type AlertCondition string

const (
	CrossedAbove AlertCondition = "crossed_above"
	CrossedBelow AlertCondition = "crossed_below"
	Approaching  AlertCondition = "approaching"
)

// Severity 告警级别
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type ConsensusUpdate struct {
	DebateID       string         `json:"debate_id" binding:"required"`
	Symbol         string         `json:"symbol" binding:"required"`
	Action         Action         `json:"action" binding:"required,oneof=buy sell hold"`
	Score          float64        `json:"score" binding:"gte=0,lte=100"`
	PreviousScore  float64        `json:"previous_score" binding:"gte=0,lte=100"`
	Threshold      float64        `json:"threshold"`
	Trend          Trend          `json:"trend" binding:"required,oneof=rising falling stable"`
	Recommendation Recommendation `json:"recommendation" binding:"required"`
	Factors        []Factor       `json:"factors" binding:"dive"`
}

type ThresholdAlert struct {
	DebateID      string         `json:"debate_id" binding:"required"`
	Symbol        string         `json:"symbol" binding:"required"`
	Condition     AlertCondition `json:"condition" binding:"required,oneof=crossed_above crossed_below approaching"`
	Severity      Severity       `json:"severity" binding:"required,oneof=success warning info"`
	Score         float64        `json:"score"`
	PreviousScore float64        `json:"previous_score"`
	Threshold     float64        `json:"threshold"`
	Message       string         `json:"message" binding:"required"`
}

type SignalGenerated struct {
	Signal ExecutionSignal `json:"signal"`
}

type DebateCleared struct {
	DebateID string   `json:"debate_id" binding:"required"`
	Symbols  []string `json:"symbols"`
}

type AgentVotes struct {
	DebateID string      `json:"debate_id" binding:"required"`
	Symbol   string      `json:"symbol" binding:"required"`
	Votes    []AgentVote `json:"votes" binding:"dive"`
}

type OrderUpdate struct {
	OrderID        string      `json:"order_id" binding:"required"`
	UserID         string      `json:"user_id"`
	Symbol         string      `json:"symbol" binding:"required"`
	Side           OrderSide   `json:"side" binding:"required,oneof=buy sell"`
	Status         OrderStatus `json:"status" binding:"required"`
	Quantity       float64     `json:"quantity"`
	FilledQuantity float64     `json:"filled_quantity"`
	AvgFillPrice   float64     `json:"avg_fill_price"`
	Error          string      `json:"error,omitempty"`
}

// NewOrderUpdate 由订单生成状态变更事件
func NewOrderUpdate(o *Order) OrderUpdate {
	return OrderUpdate{
		OrderID:        o.ID,
		UserID:         o.UserID,
		Symbol:         o.Symbol,
		Side:           o.Side,
		Status:         o.Status,
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity,
		AvgFillPrice:   o.AvgFillPrice,
		Error:          o.Error,
	}
}

type TradeCompleted struct {
	SignalID string      `json:"signal_id,omitempty"`
	OrderIDs []string    `json:"order_ids" binding:"required,min=1"`
	UserID   string      `json:"user_id"`
	Symbol   string      `json:"symbol" binding:"required"`
	Side     OrderSide   `json:"side" binding:"required,oneof=buy sell"`
	Quantity float64     `json:"quantity" binding:"gt=0"`
	Price    float64     `json:"price" binding:"gt=0"`
	Status   OrderStatus `json:"status" binding:"required,oneof=filled partial"`
	Stealth  bool        `json:"stealth"`
	Slices   int         `json:"slices,omitempty"`
}

type TradeFailed struct {
	SignalID string    `json:"signal_id,omitempty"`
	OrderID  string    `json:"order_id,omitempty"`
	Symbol   string    `json:"symbol" binding:"required"`
	Side     OrderSide `json:"side,omitempty"`
	Status   string    `json:"status" binding:"required"`
	Reason   string    `json:"reason" binding:"required"`
}

type StealthStarted struct {
	SignalID      string  `json:"signal_id" binding:"required"`
	Symbol        string  `json:"symbol" binding:"required"`
	Action        Action  `json:"action" binding:"required,oneof=buy sell"`
	TotalQuantity float64 `json:"total_quantity" binding:"gt=0"`
	Slices        int     `json:"slices" binding:"gt=0"`
	SliceDelayMs  int64   `json:"slice_delay_ms"`
}

type HITLRequired struct {
	SignalID       string  `json:"signal_id" binding:"required"`
	Symbol         string  `json:"symbol" binding:"required"`
	Action         Action  `json:"action" binding:"required,oneof=buy sell"`
	EstimatedValue float64 `json:"estimated_value" binding:"gt=0"`
	Threshold      float64 `json:"threshold"`
	Score          float64 `json:"score"`
	Message        string  `json:"message"`
}

type PortfolioUpdate struct {
	Summary PortfolioSummary `json:"summary"`
}

func (ConsensusUpdate) Type() EventType { return EventConsensusUpdate }
func (ThresholdAlert) Type() EventType  { return EventThresholdAlert }
func (SignalGenerated) Type() EventType { return EventSignalGenerated }
func (DebateCleared) Type() EventType   { return EventDebateCleared }
func (AgentVotes) Type() EventType      { return EventAgentVotes }
func (OrderUpdate) Type() EventType     { return EventOrderUpdate }
func (TradeCompleted) Type() EventType  { return EventTradeCompleted }
func (TradeFailed) Type() EventType     { return EventTradeFailed }
func (StealthStarted) Type() EventType  { return EventStealthStarted }
func (HITLRequired) Type() EventType    { return EventHITLRequired }
func (PortfolioUpdate) Type() EventType { return EventPortfolioUpdate }

func (ConsensusUpdate) event() {}
func (ThresholdAlert) event()  {}
func (SignalGenerated) event() {}
func (DebateCleared) event()   {}
func (AgentVotes) event()      {}
func (OrderUpdate) event()     {}
func (TradeCompleted) event()  {}
func (TradeFailed) event()     {}
func (StealthStarted) event()  {}
func (HITLRequired) event()    {}
func (PortfolioUpdate) event() {}
