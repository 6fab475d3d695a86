package pipeline

import (
	"context"
	"errors"
	"fmt"

	"tradeflow/internal/model"
	"tradeflow/pkg/logger"
)

// Dispatch 信号进入执行队列（自动执行模式），队列满时返回错误
func (p *Pipeline) Dispatch(sig model.ExecutionSignal) error {
	select {
	case p.dispatch <- sig.SignalID:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrDispatchQueueFull, sig.SignalID)
	}
}

// Run 单 worker 顺序执行已分发的信号
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-p.dispatch:
			res, err := p.ExecuteSignal(ctx, id)
			switch {
			case err != nil && errors.Is(err, ErrSignalNotFound):
				logger.Debug("dispatched signal already consumed", logger.Pair("signal", id))
			case err != nil:
				logger.Warn("auto execution rejected", logger.Pair("signal", id), logger.ErrorField(err))
			default:
				logger.Info("auto execution finished",
					logger.Pair("signal", id),
					logger.Pair("status", res.Status))
			}
		}
	}
}
