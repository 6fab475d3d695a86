package model

import "time"

// Action 共识给出的操作方向
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return true
	}
	return false
}

// Trend 分数变化趋势
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// Recommendation 展示用的执行建议
type Recommendation string

const (
	RecommendExecute Recommendation = "execute"
	RecommendCaution Recommendation = "caution"
	RecommendReject  Recommendation = "reject"
)

// Factor 加权因子，Contribution 为 0~1 的贡献占比
type Factor struct {
	Name         string  `json:"name" binding:"required"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution" binding:"gte=0,lte=1"`
}

// AgentVote 单个 agent 的投票
type AgentVote struct {
	AgentID    string  `json:"agent_id" binding:"required"`
	Stance     Action  `json:"stance" binding:"required,oneof=buy sell hold"`
	Confidence float64 `json:"confidence" binding:"gte=0,lte=100"`
	Rationale  string  `json:"rationale"`
}

// ConsensusState 每个 (debate, symbol) 的共识状态
type ConsensusState struct {
	DebateID       string         `json:"debate_id"`
	Symbol         string         `json:"symbol"`
	Action         Action         `json:"action"`
	CurrentScore   float64        `json:"current_score"`
	PreviousScore  float64        `json:"previous_score"`
	Threshold      float64        `json:"threshold"`
	Trend          Trend          `json:"trend"`
	Recommendation Recommendation `json:"recommendation"`
	Factors        []Factor       `json:"factors"`
	Votes          []AgentVote    `json:"votes"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ConsensusUpdateReq 上游推送的共识更新
type ConsensusUpdateReq struct {
	DebateID string      `json:"debate_id" binding:"required"`
	Symbol   string      `json:"symbol" binding:"required"`
	Action   Action      `json:"action" binding:"required,oneof=buy sell hold"`
	Score    float64     `json:"score" binding:"gte=0,lte=100"`
	Factors  []Factor    `json:"factors" binding:"dive"`
	Votes    []AgentVote `json:"votes" binding:"dive"`
}
