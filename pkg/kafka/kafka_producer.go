package kafka

import (
	"context"
	"sync"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"
)

// Kafka 生产者服务
// 定义接口，方便测试和替换
type ProducerService interface {
	Produce(ctx context.Context, topic string, key []byte, msg any) error
	Close() error
}

type kafkaProducer struct {
	brokerURL string
	mu        sync.Mutex
	writers   map[string]*kafka.Writer // 每个 topic 一个 Writer
}

func NewKafkaProducer(brokerURL string) ProducerService {
	return &kafkaProducer{
		brokerURL: brokerURL,
		writers:   make(map[string]*kafka.Writer),
	}
}

func (p *kafkaProducer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:                   kafka.TCP(p.brokerURL),
			Topic:                  topic,
			Balancer:               &kafka.Hash{}, // 相同 key 进入同一个 Partition，保证同频道有序
			AllowAutoTopicCreation: true,
		}
		p.writers[topic] = w
	}
	return w
}

// Produce 通用方法：JSON 序列化后写入 Kafka
func (p *kafkaProducer) Produce(ctx context.Context, topic string, key []byte, msg any) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.writer(topic).WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
	})
}

func (p *kafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	for topic, w := range p.writers {
		err = multierr.Append(err, w.Close())
		delete(p.writers, topic)
	}
	return err
}
