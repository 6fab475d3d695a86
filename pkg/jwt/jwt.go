package jwt

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/redis/go-redis/v9"

	"tradeflow/conf"
	"tradeflow/pkg/cache"
	"tradeflow/pkg/logger"
)

var ErrInvalidToken = errors.New("invalid token")

type CustomClaims struct {
	UserID string `json:"user_id"`
	Sub    string `json:"sub"` // user / operator，operator 可以审批 HITL 信号
	jwt.RegisteredClaims
}

// 是否为操作员
func (claims *CustomClaims) IsOperator() bool {
	return strings.HasSuffix(claims.Sub, "operator")
}

func BuildClaims(exp time.Time, uid string, operator bool) *CustomClaims {
	sub := "user"
	if operator {
		sub = "operator"
	}
	return &CustomClaims{
		UserID: uid,
		Sub:    sub,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    conf.AppConfig.AppName,
		},
	}
}

func GenToken(c *CustomClaims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString([]byte(secretKey))
}

// 解析jwt token
func ParseToken(jwtStr, secretKey string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(jwtStr, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

func getBlackListKey(token string) string {
	sum := md5.Sum([]byte(token))
	return "jwt_black_list:" + hex.EncodeToString(sum[:])
}

// JoinBlackList 注销 token，直到其过期
func JoinBlackList(ctx context.Context, tokenStr string, secretKey string) error {
	claims, err := ParseToken(tokenStr, secretKey)
	if err != nil {
		return err
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return cache.GetRedisClient().SetNX(ctx, getBlackListKey(tokenStr), time.Now().Unix(), ttl).Err()
}

// IsInBlackList 未启用 redis 时总是返回 false
func IsInBlackList(ctx context.Context, token string) bool {
	if !cache.Enabled() {
		return false
	}
	err := cache.GetRedisClient().Get(ctx, getBlackListKey(token)).Err()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Errorf("Redis连接异常:%v", err.Error())
		}
		return false
	}
	return true
}
