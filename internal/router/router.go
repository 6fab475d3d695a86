package router

import (
	"github.com/gin-gonic/gin"

	"tradeflow/internal/handler/consensus"
	"tradeflow/internal/handler/order"
	"tradeflow/internal/handler/portfolio"
	"tradeflow/internal/handler/signal"
	"tradeflow/internal/handler/stream"
	"tradeflow/internal/middleware"
)

type ApiRouter struct {
	consensusHandler *consensus.ConsensusHandler
	signalHandler    *signal.SignalHandler
	orderHandler     *order.OrderHandler
	portfolioHandler *portfolio.PortfolioHandler
	streamGateway    *stream.StreamGateway
	jwtSecret        string
}

func NewApiRouter(ch *consensus.ConsensusHandler, sh *signal.SignalHandler, oh *order.OrderHandler,
	ph *portfolio.PortfolioHandler, sg *stream.StreamGateway, jwtSecret string) *ApiRouter {
	return &ApiRouter{
		consensusHandler: ch,
		signalHandler:    sh,
		orderHandler:     oh,
		portfolioHandler: ph,
		streamGateway:    sg,
		jwtSecret:        jwtSecret,
	}
}

func (api *ApiRouter) Load(g *gin.Engine) {
	auth := middleware.AuthToken(api.jwtSecret)
	base := g.Group("/api/v1", middleware.Logger, auth)

	c := base.Group("/consensus")
	{
		c.POST("", api.consensusHandler.ConsensusUpdate())
		c.GET("/:debate", api.consensusHandler.ConsensusList())
		c.GET("/:debate/:symbol", api.consensusHandler.ConsensusGet())
		c.DELETE("/:debate", api.consensusHandler.DebateClear())
	}

	s := base.Group("/signals")
	{
		s.GET("", api.signalHandler.SignalGetList())
		s.GET("/held", api.signalHandler.SignalGetHeld())
		s.POST("/:id/execute", api.signalHandler.ExecuteSignal())
		s.POST("/:id/approve", middleware.RequireOperator(api.jwtSecret), api.signalHandler.ApproveSignal())
		s.POST("/:id/reject", middleware.RequireOperator(api.jwtSecret), api.signalHandler.RejectSignal())
	}

	o := base.Group("/orders")
	{
		o.POST("", api.orderHandler.OrderCreate())
		o.GET("", api.orderHandler.OrderGetList())
		o.GET("/queue", api.orderHandler.OrderGetQueued())
		o.GET("/:id", api.orderHandler.OrderGet())
		o.POST("/:id/cancel", api.orderHandler.OrderCancel())
		o.PATCH("/:id", api.orderHandler.OrderModify())
	}

	base.GET("/portfolio", api.portfolioHandler.PortfolioGet())
	base.GET("/positions", api.portfolioHandler.PositionsGet())
	base.GET("/trades", api.portfolioHandler.TradesGet())
	base.GET("/report", api.portfolioHandler.ReportGet())

	// websocket 不走请求日志中间件
	g.GET("/api/v1/stream/ws", auth, api.streamGateway.ServeWS)
}
