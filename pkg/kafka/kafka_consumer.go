package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"tradeflow/pkg/logger"
)

// ConsumerService 定义了消费 Kafka 消息的通用接口
type ConsumerService interface {
	// Consume 启动一个协程消费指定主题，将消息发送到返回的通道
	Consume(ctx context.Context, topic string, groupID string) (<-chan kafka.Message, error)
	Close()
}

type kafkaConsumer struct {
	brokerURL string
	// 可以添加 map 来管理多个 Reader
}

func NewKafkaConsumer(brokerURL string) ConsumerService {
	return &kafkaConsumer{
		brokerURL: brokerURL,
	}
}

// Consume 方法的核心逻辑
func (c *kafkaConsumer) Consume(ctx context.Context, topic string, groupID string) (<-chan kafka.Message, error) {
	// 1. 创建 kafka.Reader
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{c.brokerURL},
		Topic:    topic,
		GroupID:  groupID, // 不同的 Gateway 使用不同的 GroupID
		MinBytes: 10e3,    // 10KB
		MaxBytes: 10e6,    // 10MB
		// 从最新的 offset 开始消费
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second, // 启动自动提交，每秒提交一次
		MaxAttempts:    3,
		// 注意：如果使用自动提交，就不能在循环中手动调用CommitMessages
	})
	// 2. 创建输出通道
	outputCh := make(chan kafka.Message, 1000) // 缓冲区用于平滑流量

	// 3. 启动消费协程
	go func() {
		defer close(outputCh)
		for {
			// 阻塞读取消息
			m, err := r.FetchMessage(ctx)
			if err != nil {
				// 如果是 Context 被取消（服务关闭），正常退出
				if ctx.Err() != nil {
					break
				}
				logger.Error("kafka read error", logger.Pair("topic", topic), logger.ErrorField(err))
				time.Sleep(time.Second) // 短暂等待后重试
				continue
			}

			// 尝试将消息发送到输出通道
			select {
			case outputCh <- m:
				// 成功发送，依赖 CommitInterval 自动提交 Offset
				// 不需要手动提交
			case <-ctx.Done():
				// 上下文结束，退出循环
				return // 使用 return 退出整个协程
			default:
				// 队列满则丢弃，offset 交给自动提交
				logger.Warn("kafka consumer buffer full, message dropped", logger.Pair("topic", topic))
			}
		}
		_ = r.Close() // 退出时关闭 Reader
		logger.Info("kafka consumer finished", logger.Pair("topic", topic))
	}()

	return outputCh, nil
}

// Reader 在消费协程退出时关闭，这里只记录日志
func (c *kafkaConsumer) Close() {
	logger.Info("kafka consumer service closing")
}
