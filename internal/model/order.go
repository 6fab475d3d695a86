package model

import (
	"time"
)

type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

type OrderType string

const (
	// 市价
	Market OrderType = "market"
	// 限价
	Limit OrderType = "limit"
	// 止损
	Stop OrderType = "stop"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderQueued    OrderStatus = "queued"
	OrderSubmitted OrderStatus = "submitted"
	OrderPartial   OrderStatus = "partial"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderRejected  OrderStatus = "rejected"
	OrderExpired   OrderStatus = "expired"
)

// Terminal 是否为终态
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected, OrderExpired:
		return true
	}
	return false
}

// Fill 一次成交
type Fill struct {
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price"`
	BrokerOrderID string    `json:"broker_order_id,omitempty"`
	Simulated     bool      `json:"simulated"`
	Timestamp     time.Time `json:"timestamp"`
}

type Order struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	Symbol         string      `json:"symbol"`
	Side           OrderSide   `json:"side"`
	Type           OrderType   `json:"type"`
	Quantity       float64     `json:"quantity"`
	LimitPrice     float64     `json:"limit_price,omitempty"`
	StopPrice      float64     `json:"stop_price,omitempty"`
	FilledQuantity float64     `json:"filled_quantity"`
	AvgFillPrice   float64     `json:"avg_fill_price"`
	Status         OrderStatus `json:"status"`
	Priority       int         `json:"priority"`
	Fills          []Fill      `json:"fills"`
	SignalID       string      `json:"signal_id,omitempty"`
	Error          string      `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	SubmittedAt    time.Time   `json:"submitted_at,omitempty"`
	CompletedAt    time.Time   `json:"completed_at,omitempty"`
	ExpiresAt      time.Time   `json:"expires_at,omitempty"`
}

// Remaining 未成交数量
func (o *Order) Remaining() float64 {
	r := o.Quantity - o.FilledQuantity
	if r < 0 {
		return 0
	}
	return r
}

// Clone 深拷贝，账本之外只流通副本
func (o *Order) Clone() *Order {
	c := *o
	c.Fills = append([]Fill(nil), o.Fills...)
	return &c
}

// OrderRequest 下单请求
type OrderRequest struct {
	UserID     string    `json:"user_id"`
	Symbol     string    `json:"symbol" binding:"required"`
	Side       OrderSide `json:"side" binding:"required,oneof=buy sell"`
	Type       OrderType `json:"type" binding:"omitempty,oneof=market limit stop"`
	Quantity   float64   `json:"quantity" binding:"gt=0"`
	LimitPrice float64   `json:"limit_price" binding:"gte=0"`
	StopPrice  float64   `json:"stop_price" binding:"gte=0"`
	Priority   int       `json:"priority" binding:"gte=0"`
	SignalID   string    `json:"signal_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// OrderModify 修改订单，仅 pending/queued 状态可用
type OrderModify struct {
	Quantity   *float64 `json:"quantity" binding:"omitempty,gt=0"`
	LimitPrice *float64 `json:"limit_price" binding:"omitempty,gte=0"`
	StopPrice  *float64 `json:"stop_price" binding:"omitempty,gte=0"`
	Priority   *int     `json:"priority" binding:"omitempty,gte=0"`
}
