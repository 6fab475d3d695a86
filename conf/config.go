package conf

import (
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
	"time"
)

// 配置加载（数据库、缓存、消息队列以及交易流水线参数）

type Db struct {
	Driver   string `yaml:"driver"` // mysql / postgres
	DbName   string `yaml:"dbname"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	FileName   string `yaml:"file-name"`
	TimeFormat string `yaml:"time-format"`
	MaxSize    int    `yaml:"max-size"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAge     int    `yaml:"max-age"`
	Compress   bool   `yaml:"compress"`
	LocalTime  bool   `yaml:"local-time"`
	Console    bool   `yaml:"console"`
}

// RedisConfig is used to configure redis
type RedisConfig struct {
	Addr         string `yaml:"address"`
	Password     string `yaml:"password"`
	Db           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool-size"`
	MinIdleConns int    `yaml:"min-idle-conns"`
	IdleTimeout  int    `yaml:"idle-timeout"`
	// 组合快照的过期时间（秒）
	SnapshotTTL int `yaml:"snapshot-ttl"`
}

type JwtConfig struct {
	Secret string `yaml:"secret"`
	JwtTtl int64  `yaml:"ttl"` // token 有效期（秒）
}

type KafkaConfig struct {
	Broker string `yaml:"broker"`
	// 事件镜像的 topic，为空则不镜像
	EventTopic string `yaml:"event-topic"`
	// 上游共识投票的 topic，为空则不消费
	ConsensusTopic string `yaml:"consensus-topic"`
	GroupID        string `yaml:"group-id"`
	RelayBuffer    int    `yaml:"relay-buffer"`
}

// HubConfig 广播中心
type HubConfig struct {
	SweepInterval time.Duration `yaml:"sweep-interval"` // 存活检查间隔
	IdleTimeout   time.Duration `yaml:"idle-timeout"`   // 超过该时间无活动则断开
	SendBuffer    int           `yaml:"send-buffer"`    // 单个连接的发送缓冲
}

// TrackerConfig 共识跟踪
type TrackerConfig struct {
	Threshold        float64       `yaml:"threshold"`         // 执行阈值
	CautionThreshold float64       `yaml:"caution-threshold"` // 谨慎阈值
	ApproachMargin   float64       `yaml:"approach-margin"`   // 接近阈值的提示区间
	SignalTTL        time.Duration `yaml:"signal-ttl"`        // 信号有效期
	PurgeInterval    time.Duration `yaml:"purge-interval"`
}

// LedgerConfig 订单与仓位账本
type LedgerConfig struct {
	MaxQueueSize         int           `yaml:"max-queue-size"`
	InterOrderDelay      time.Duration `yaml:"inter-order-delay"`
	DefaultPriority      int           `yaml:"default-priority"`
	MaxHistory           int           `yaml:"max-history"`
	InitialCash          float64       `yaml:"initial-cash"`
	PartialFillThreshold float64       `yaml:"partial-fill-threshold"` // 超过该数量模拟部分成交
	SimulatedLatency     time.Duration `yaml:"simulated-latency"`
	SlippageBps          float64       `yaml:"slippage-bps"`
	NodeID               int64         `yaml:"node-id"` // snowflake 节点
	JournalPath          string        `yaml:"journal-path"`
	// 模拟模式下的静态参考价
	ReferencePrices map[string]float64 `yaml:"reference-prices"`
}

// PipelineConfig 执行流水线
type PipelineConfig struct {
	MinScore        float64       `yaml:"min-score"`
	MaxDailyTrades  int           `yaml:"max-daily-trades"`
	MaxPositionSize float64       `yaml:"max-position-size"`
	HITLEnabled     bool          `yaml:"hitl-enabled"`
	HITLThreshold   float64       `yaml:"hitl-threshold"`
	StealthEnabled  bool          `yaml:"stealth-enabled"`
	StealthSlices   int           `yaml:"stealth-slices"`
	SliceDelay      time.Duration `yaml:"slice-delay"`
	UserID          string        `yaml:"user-id"`
	AutoExecute     bool          `yaml:"auto-execute"`
}

type Config struct {
	AppName      string `yaml:"app_name"`
	Listen       string `yaml:"listen"`
	Mode         string `yaml:"mode"`
	Language     string `yaml:"language"`
	MaxPingCount int    `yaml:"max-ping-count"`

	Db       `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Jwt      JwtConfig      `yaml:"jwt"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Hub      HubConfig      `yaml:"hub"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

var AppConfig = Default()

// Default 返回带有全部默认值的配置
func Default() Config {
	return Config{
		AppName:      "tradeflow",
		Listen:       ":12180",
		Mode:         "release",
		Language:     "en",
		MaxPingCount: 10,
		Db:           Db{Driver: "mysql"},
		Log: LogConfig{
			Level:      "info",
			TimeFormat: "2006-01-02 15:04:05.000",
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     30,
			Console:    true,
		},
		Redis: RedisConfig{PoolSize: 10, SnapshotTTL: 3600},
		Kafka: KafkaConfig{GroupID: "tradeflow_consensus_group", RelayBuffer: 1024},
		Hub: HubConfig{
			SweepInterval: 30 * time.Second,
			IdleTimeout:   60 * time.Second,
			SendBuffer:    256,
		},
		Tracker: TrackerConfig{
			Threshold:        85,
			CautionThreshold: 70,
			ApproachMargin:   5,
			SignalTTL:        5 * time.Minute,
			PurgeInterval:    time.Minute,
		},
		Ledger: LedgerConfig{
			MaxQueueSize:         1000,
			InterOrderDelay:      100 * time.Millisecond,
			DefaultPriority:      5,
			MaxHistory:           10000,
			InitialCash:          100000,
			PartialFillThreshold: 1000,
			SimulatedLatency:     50 * time.Millisecond,
			SlippageBps:          5,
			NodeID:               1,
			ReferencePrices: map[string]float64{
				"AAPL": 190,
				"MSFT": 420,
				"NVDA": 120,
				"TSLA": 250,
				"SPY":  550,
				"BTC":  65000,
				"ETH":  3200,
			},
		},
		Pipeline: PipelineConfig{
			MinScore:        85,
			MaxDailyTrades:  10,
			MaxPositionSize: 10000,
			HITLEnabled:     true,
			HITLThreshold:   5000,
			StealthEnabled:  true,
			StealthSlices:   5,
			SliceDelay:      2 * time.Second,
			UserID:          "system",
		},
	}
}

// LoadConfig 在默认值之上覆盖 yaml 中出现的字段
func LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("Read config file error %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("Unmarshal config yaml error: %w", err)
	}
	AppConfig = cfg
	return nil
}
