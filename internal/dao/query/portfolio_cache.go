package query

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"tradeflow/internal/consts"
	"tradeflow/internal/dao"
	"tradeflow/internal/model"
)

type portfolioCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewPortfolioCache(rdb redis.Cmdable, ttl time.Duration) dao.PortfolioCache {
	return &portfolioCache{rdb: rdb, ttl: ttl}
}

func portfolioKey(userID string) string {
	return consts.PortfolioKeyPrefix + userID
}

func (c *portfolioCache) SavePortfolio(ctx context.Context, summary model.PortfolioSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, portfolioKey(summary.UserID), data, c.ttl).Err()
}

// GetPortfolio 未命中返回 nil, nil
func (c *portfolioCache) GetPortfolio(ctx context.Context, userID string) (*model.PortfolioSummary, error) {
	data, err := c.rdb.Get(ctx, portfolioKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s model.PortfolioSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
