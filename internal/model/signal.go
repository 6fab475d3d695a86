package model

import "time"

// Urgency 信号紧急程度
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// ExecutionSignal 共识向上突破执行阈值时产生的可执行信号，只能被消费一次
type ExecutionSignal struct {
	SignalID        string    `json:"signal_id" binding:"required"`
	DebateID        string    `json:"debate_id"`
	Symbol          string    `json:"symbol" binding:"required"`
	Action          Action    `json:"action" binding:"required,oneof=buy sell"`
	ConsensusScore  float64   `json:"consensus_score"`
	Threshold       float64   `json:"threshold"`
	RecommendedSize float64   `json:"recommended_size" binding:"gte=0.5,lte=1"`
	Urgency         Urgency   `json:"urgency" binding:"required"`
	CreatedAt       time.Time `json:"created_at"`
	ValidUntil      time.Time `json:"valid_until"`
	Conditions      []string  `json:"conditions"`
}

// Expired 在 now 时刻是否已过期
func (s *ExecutionSignal) Expired(now time.Time) bool {
	return now.After(s.ValidUntil)
}

// ExecutionStatus 信号执行结果
type ExecutionStatus string

const (
	ExecFilled       ExecutionStatus = "filled"
	ExecPartial      ExecutionStatus = "partial"
	ExecFailed       ExecutionStatus = "failed"
	ExecRejected     ExecutionStatus = "rejected"      // 校验未通过
	ExecHITLRequired ExecutionStatus = "hitl_required" // 需要人工确认
)

// ExecutionResult 一次信号执行的汇总
type ExecutionResult struct {
	SignalID       string          `json:"signal_id"`
	Symbol         string          `json:"symbol"`
	Action         Action          `json:"action"`
	Status         ExecutionStatus `json:"status"`
	Stealth        bool            `json:"stealth"`
	EstimatedValue float64         `json:"estimated_value"`
	TotalQuantity  float64         `json:"total_quantity"`
	FilledQuantity float64         `json:"filled_quantity"`
	AvgFillPrice   float64         `json:"avg_fill_price"`
	Slices         int             `json:"slices"`
	OrderIDs       []string        `json:"order_ids"`
	Conditions     []string        `json:"conditions"`
	Logs           []ExecutionLog  `json:"logs"`
	Message        string          `json:"message,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    time.Time       `json:"completed_at"`
}
