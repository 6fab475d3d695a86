package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"tradeflow/internal/consts"
	"tradeflow/pkg/jwt"
	"tradeflow/pkg/response"
)

// 请求头的形式为 Authorization: Bearer token
const authorizationHeader = "Authorization"

// AuthToken 鉴权，secret 为空时不校验（本地调试）
func AuthToken(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		tokenStr, err := getJwtFromRequest(c)
		if err != nil {
			response.RequireAuthErr(c, err)
			c.Abort()
			return
		}
		if jwt.IsInBlackList(c, tokenStr) {
			response.RequireAuthErr(c, fmt.Errorf("token revoked"))
			c.Abort()
			return
		}
		claims, err := jwt.ParseToken(tokenStr, secret)
		if err != nil {
			response.RequireAuthErr(c, err)
			c.Abort()
			return
		}

		c.Set(consts.UserID, claims.UserID)
		c.Set(consts.Operator, claims.IsOperator())
		c.Set(consts.JWTTokenCtx, tokenStr)
		c.Next()
	}
}

// RequireOperator 人工确认类接口只允许操作员调用
func RequireOperator(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" || c.GetBool(consts.Operator) {
			c.Next()
			return
		}
		response.Forbidden(c)
		c.Abort()
	}
}

// websocket 握手无法自定义请求头，允许通过 query 传 token
func getJwtFromRequest(c *gin.Context) (string, error) {
	aHeader := c.Request.Header.Get(authorizationHeader)
	if len(aHeader) == 0 {
		if tok := c.Query("token"); tok != "" {
			return tok, nil
		}
		return "", fmt.Errorf("token is empty")
	}
	strs := strings.SplitN(aHeader, " ", 2)
	if len(strs) != 2 || strs[0] != "Bearer" {
		return "", fmt.Errorf("token 不符合规则")
	}
	return strs[1], nil
}
