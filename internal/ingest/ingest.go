package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cast"

	"tradeflow/internal/model"
	"tradeflow/pkg/logger"
	"tradeflow/pkg/validator"
)

// ConsensusUpdater 由 consensus.Tracker 实现
type ConsensusUpdater interface {
	UpdateConsensus(debateID, symbol string, action model.Action, score float64,
		factors []model.Factor, votes []model.AgentVote) (*model.ConsensusState, error)
}

// Consumer 由 pkg/kafka 的 ConsumerService 实现
type Consumer interface {
	Consume(ctx context.Context, topic string, groupID string) (<-chan kafka.Message, error)
}

// 上游的 debate_id / score 可能是数字也可能是字符串
type wireVote struct {
	DebateID any               `json:"debate_id"`
	Symbol   string            `json:"symbol"`
	Action   string            `json:"action"`
	Score    any               `json:"score"`
	Factors  []model.Factor    `json:"factors"`
	Votes    []model.AgentVote `json:"votes"`
}

// Decode 把一条消息解析成共识更新请求并校验
func Decode(value []byte) (*model.ConsensusUpdateReq, error) {
	var w wireVote
	if err := json.Unmarshal(value, &w); err != nil {
		return nil, fmt.Errorf("decode vote: %w", err)
	}
	debateID, err := cast.ToStringE(w.DebateID)
	if err != nil {
		return nil, fmt.Errorf("debate_id: %w", err)
	}
	score, err := cast.ToFloat64E(w.Score)
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	req := &model.ConsensusUpdateReq{
		DebateID: debateID,
		Symbol:   strings.ToUpper(strings.TrimSpace(w.Symbol)),
		Action:   model.Action(strings.ToLower(w.Action)),
		Score:    score,
		Factors:  w.Factors,
		Votes:    w.Votes,
	}
	if err := validator.Struct(req); err != nil {
		return nil, err
	}
	return req, nil
}

type Ingestor struct {
	consumer Consumer
	tracker  ConsensusUpdater
	topic    string
	groupID  string
}

func New(consumer Consumer, tracker ConsensusUpdater, topic, groupID string) *Ingestor {
	return &Ingestor{consumer: consumer, tracker: tracker, topic: topic, groupID: groupID}
}

// Handle 处理单条消息，坏消息记录后跳过
func (in *Ingestor) Handle(m kafka.Message) error {
	req, err := Decode(m.Value)
	if err != nil {
		logger.Warn("consensus vote rejected",
			logger.Pair("topic", m.Topic),
			logger.Pair("offset", m.Offset),
			logger.ErrorField(err))
		return err
	}
	_, err = in.tracker.UpdateConsensus(req.DebateID, req.Symbol, req.Action, req.Score, req.Factors, req.Votes)
	if err != nil {
		logger.Error("consensus update failed",
			logger.Pair("debate", req.DebateID),
			logger.Pair("symbol", req.Symbol),
			logger.ErrorField(err))
	}
	return err
}

// Run 阻塞消费直到 ctx 结束
func (in *Ingestor) Run(ctx context.Context) error {
	msgs, err := in.consumer.Consume(ctx, in.topic, in.groupID)
	if err != nil {
		return err
	}
	logger.Info("consensus ingest started", logger.Pair("topic", in.topic), logger.Pair("group", in.groupID))
	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			_ = in.Handle(m)
		case <-ctx.Done():
			return nil
		}
	}
}
