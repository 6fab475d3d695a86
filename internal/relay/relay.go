package relay

import (
	"context"
	"sync/atomic"

	"tradeflow/internal/model"
	"tradeflow/pkg/logger"
)

// Producer 消息出口，pkg/kafka 的 ProducerService 满足该接口
type Producer interface {
	Produce(ctx context.Context, topic string, key []byte, msg any) error
}

// Relay 把广播中心的信封镜像到 kafka，队列满时丢弃，不阻塞发布方
type Relay struct {
	producer Producer
	topic    string
	queue    chan model.Envelope
	dropped  atomic.Int64
	sent     atomic.Int64
}

func New(producer Producer, topic string, buffer int) *Relay {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Relay{
		producer: producer,
		topic:    topic,
		queue:    make(chan model.Envelope, buffer),
	}
}

// Enqueue 作为 hub.Mirror 的回调
func (r *Relay) Enqueue(env model.Envelope) {
	select {
	case r.queue <- env:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			logger.Warn("relay queue full, envelope dropped",
				logger.Pair("type", env.Type),
				logger.Pair("dropped", n))
		}
	}
}

// Run 顺序写出，保证同一频道内的顺序；ctx 结束后尽量写完已排队的消息
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case env := <-r.queue:
			r.send(ctx, env)
		case <-ctx.Done():
			r.flush()
			return
		}
	}
}

func (r *Relay) flush() {
	for {
		select {
		case env := <-r.queue:
			r.send(context.Background(), env)
		default:
			return
		}
	}
}

func (r *Relay) send(ctx context.Context, env model.Envelope) {
	if err := r.producer.Produce(ctx, r.topic, []byte(env.Channel), env); err != nil {
		logger.Error("relay produce failed",
			logger.Pair("topic", r.topic),
			logger.Pair("type", env.Type),
			logger.ErrorField(err))
		return
	}
	r.sent.Add(1)
}

func (r *Relay) Dropped() int64 { return r.dropped.Load() }

func (r *Relay) Sent() int64 { return r.sent.Load() }
