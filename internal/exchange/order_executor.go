package exchange

import (
	"context"
	"errors"

	"tradeflow/internal/model"
)

var (
	ErrBrokerUnavailable = errors.New("exchange: broker unavailable")
	ErrUnknownSymbol     = errors.New("exchange: unknown symbol")
)

// Broker 券商下单接口，一次提交最多产生一笔成交
type Broker interface {
	Submit(ctx context.Context, order *model.Order) (*SubmitResult, error)
}

// SubmitResult 券商回报，Status 取 filled/partial/submitted/rejected
type SubmitResult struct {
	Status         model.OrderStatus `json:"status"`
	FilledQuantity float64           `json:"filled_quantity"`
	AvgFillPrice   float64           `json:"avg_fill_price"`
	BrokerOrderID  string            `json:"broker_order_id,omitempty"`
	Error          string            `json:"error,omitempty"`
	Simulated      bool              `json:"simulated"`
}

// PriceSource 参考价
type PriceSource interface {
	Price(symbol string) (float64, error)
}

// BrokerFunc 便于测试和适配
type BrokerFunc func(ctx context.Context, order *model.Order) (*SubmitResult, error)

func (f BrokerFunc) Submit(ctx context.Context, order *model.Order) (*SubmitResult, error) {
	return f(ctx, order)
}
