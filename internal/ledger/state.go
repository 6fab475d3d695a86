package ledger

import (
	"fmt"

	"tradeflow/internal/model"
)

// 合法状态迁移
var transitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderPending:   {model.OrderQueued, model.OrderCancelled, model.OrderRejected},
	model.OrderQueued:    {model.OrderSubmitted, model.OrderCancelled, model.OrderExpired, model.OrderRejected},
	model.OrderSubmitted: {model.OrderPartial, model.OrderFilled, model.OrderCancelled, model.OrderRejected, model.OrderExpired},
	model.OrderPartial:   {model.OrderPartial, model.OrderFilled, model.OrderCancelled},
}

func canTransition(from, to model.OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// 调用方持有锁
func (l *Ledger) transition(o *model.Order, to model.OrderStatus) error {
	if !canTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s (order %s)", ErrIllegalTransition, o.Status, to, o.ID)
	}
	now := l.clock.Now()
	o.Status = to
	o.UpdatedAt = now
	switch to {
	case model.OrderSubmitted:
		o.SubmittedAt = now
	case model.OrderFilled, model.OrderCancelled, model.OrderRejected, model.OrderExpired:
		o.CompletedAt = now
	}
	return nil
}
