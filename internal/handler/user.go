package handler

import (
	"github.com/gin-gonic/gin"

	"tradeflow/internal/consts"
)

// UserID 鉴权中间件写入的用户，未鉴权时使用默认账户
func UserID(ctx *gin.Context, fallback string) string {
	if uid := ctx.GetString(consts.UserID); uid != "" {
		return uid
	}
	return fallback
}
