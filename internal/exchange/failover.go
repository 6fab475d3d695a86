package exchange

import (
	"context"

	"tradeflow/internal/model"
	"tradeflow/pkg/logger"
)

// FailoverBroker 真实券商不可用或报错时回落到模拟撮合，回落对调用方透明。
// 券商明确拒单不会回落。
type FailoverBroker struct {
	primary  Broker
	fallback Broker
}

func NewFailoverBroker(primary, fallback Broker) *FailoverBroker {
	return &FailoverBroker{primary: primary, fallback: fallback}
}

func (f *FailoverBroker) Submit(ctx context.Context, o *model.Order) (*SubmitResult, error) {
	if f.primary == nil {
		return f.fallback.Submit(ctx, o)
	}
	res, err := f.primary.Submit(ctx, o)
	if err == nil && res != nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err == nil {
		err = ErrBrokerUnavailable
	}
	logger.Warn("broker submit failed, falling back to simulator",
		logger.Pair("order", o.ID),
		logger.Pair("symbol", o.Symbol),
		logger.ErrorField(err))
	return f.fallback.Submit(ctx, o)
}
