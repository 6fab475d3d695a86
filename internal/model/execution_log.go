package model

import "time"

// ExecutionLog 单个切片（或单笔订单）的执行记录
type ExecutionLog struct {
	Timestamp time.Time   `json:"timestamp"`
	Slice     int         `json:"slice"`
	OrderID   string      `json:"order_id"`
	Symbol    string      `json:"symbol"`
	Side      OrderSide   `json:"side"`
	Quantity  float64     `json:"quantity"`
	Filled    float64     `json:"filled"`
	Price     float64     `json:"price"`
	Status    OrderStatus `json:"status"`
	Note      string      `json:"note,omitempty"`
}
