package consts

const (
	// RequestId 请求id名称
	RequestId   = "request_id"
	UserID      = "user_id"
	Operator    = "operator"
	JWTTokenCtx = "token_ctx"
)

const (
	DateLayout   = "2006-01-02"
	TimeLayout   = "2006-01-02 15:04:05"
	TimeLayoutMs = "2006-01-02 15:04:05.000"
)

const (
	// 组合快照 redis key 前缀
	PortfolioKeyPrefix = "portfolio:"

	// 默认的 kafka topic
	DefaultEventTopic     = "tradeflow_events"
	DefaultConsensusTopic = "consensus_votes"
)
