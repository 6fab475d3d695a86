package middleware

import (
	"github.com/gin-gonic/gin"

	"tradeflow/internal/handler/ping"
)

// Middleware 全局中间件与健康检查
type Middleware struct{}

func NewMiddleware() *Middleware {
	return &Middleware{}
}

func (m *Middleware) Load(g *gin.Engine) {
	g.Use(gin.Recovery(), RequestId(), Options(), Secure())
	g.GET("/ping", ping.Ping())
}
