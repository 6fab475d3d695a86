package api

import (
	"context"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"tradeflow/conf"
	"tradeflow/internal/consensus"
	"tradeflow/internal/dao"
	"tradeflow/internal/dao/query"
	"tradeflow/internal/exchange"
	consensush "tradeflow/internal/handler/consensus"
	"tradeflow/internal/handler/order"
	"tradeflow/internal/handler/portfolio"
	"tradeflow/internal/handler/signal"
	"tradeflow/internal/handler/stream"
	"tradeflow/internal/hub"
	"tradeflow/internal/ingest"
	"tradeflow/internal/ledger"
	"tradeflow/internal/model"
	"tradeflow/internal/pipeline"
	"tradeflow/internal/relay"
	"tradeflow/internal/router"
	"tradeflow/pkg/clock"
	"tradeflow/pkg/kafka"
	"tradeflow/pkg/logger"
	"tradeflow/pkg/recorder"
)

// Infra 可选的外部依赖，为 nil 时对应功能关闭
type Infra struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Producer kafka.ProducerService
	Consumer kafka.ConsumerService
}

// InitRouter 组装全部组件并启动后台任务，返回路由和停止函数
func InitRouter(ctx context.Context, infra Infra) (Router, func()) {
	appCfg := conf.AppConfig
	clk := clock.New()
	ctx, cancel := context.WithCancel(ctx)

	// 广播中心
	h := hub.New(hub.Config{
		SweepInterval: appCfg.Hub.SweepInterval,
		IdleTimeout:   appCfg.Hub.IdleTimeout,
	}, clk)
	go h.Run(ctx)

	if infra.Producer != nil && appCfg.Kafka.EventTopic != "" {
		r := relay.New(infra.Producer, appCfg.Kafka.EventTopic, appCfg.Kafka.RelayBuffer)
		h.Mirror(r.Enqueue)
		go r.Run(ctx)
	}

	// 共识跟踪
	tcfg := consensus.DefaultConfig()
	tcfg.Threshold = appCfg.Tracker.Threshold
	tcfg.CautionThreshold = appCfg.Tracker.CautionThreshold
	tcfg.ApproachMargin = appCfg.Tracker.ApproachMargin
	tcfg.SignalTTL = appCfg.Tracker.SignalTTL
	tcfg.PurgeInterval = appCfg.Tracker.PurgeInterval
	tracker := consensus.NewTracker(tcfg, h, clk)
	go tracker.Run(ctx)

	if infra.Consumer != nil && appCfg.Kafka.ConsensusTopic != "" {
		in := ingest.New(infra.Consumer, tracker, appCfg.Kafka.ConsensusTopic, appCfg.Kafka.GroupID)
		go func() {
			if err := in.Run(ctx); err != nil {
				logger.Error("consensus ingest stopped", logger.ErrorField(err))
			}
		}()
	}

	// 券商：没有实盘券商时全部走模拟
	prices := exchange.NewPriceBook(appCfg.Ledger.ReferencePrices)
	sim := exchange.NewSimulatedBroker(exchange.SimConfig{
		PartialFillThreshold: appCfg.Ledger.PartialFillThreshold,
		Latency:              appCfg.Ledger.SimulatedLatency,
		SlippageBps:          appCfg.Ledger.SlippageBps,
	}, prices, clk, rand.New(rand.NewSource(time.Now().UnixNano())))
	broker := exchange.NewFailoverBroker(nil, sim)

	// 账本
	var opts []ledger.Option
	var journal *recorder.JSONFileRecorder
	if appCfg.Ledger.JournalPath != "" {
		journal = recorder.NewJSONFileRecorder(appCfg.Ledger.JournalPath)
		opts = append(opts, ledger.WithJournal(journal))
	}
	var pipeOpts []pipeline.Option
	if infra.DB != nil {
		if err := query.AutoMigrate(infra.DB); err != nil {
			logger.Fatal("auto migrate failed", logger.ErrorField(err))
		}
		opts = append(opts, ledger.WithStore(query.NewTradeDao(infra.DB)))
		pipeOpts = append(pipeOpts, pipeline.WithAudit(query.NewExecutionDao(infra.DB)))
	}
	var pc dao.PortfolioCache
	if infra.Redis != nil {
		pc = query.NewPortfolioCache(infra.Redis, time.Duration(appCfg.Redis.SnapshotTTL)*time.Second)
		opts = append(opts, ledger.WithPortfolioSink(pc))
	}

	l, err := ledger.New(ledger.Config{
		MaxQueueSize:    appCfg.Ledger.MaxQueueSize,
		InterOrderDelay: appCfg.Ledger.InterOrderDelay,
		DefaultPriority: appCfg.Ledger.DefaultPriority,
		MaxHistory:      appCfg.Ledger.MaxHistory,
		InitialCash:     appCfg.Ledger.InitialCash,
		NodeID:          appCfg.Ledger.NodeID,
	}, h, broker, prices, clk, opts...)
	if err != nil {
		logger.Fatal("init ledger failed", logger.ErrorField(err))
	}
	if infra.DB != nil {
		if err := l.Restore(ctx); err != nil {
			logger.Error("restore ledger state failed", logger.ErrorField(err))
		}
	}
	go l.Run(ctx)

	// 执行流水线
	p := pipeline.New(pipeline.Config{
		MinScore:        appCfg.Pipeline.MinScore,
		MaxDailyTrades:  appCfg.Pipeline.MaxDailyTrades,
		MaxPositionSize: appCfg.Pipeline.MaxPositionSize,
		HITLEnabled:     appCfg.Pipeline.HITLEnabled,
		HITLThreshold:   appCfg.Pipeline.HITLThreshold,
		StealthEnabled:  appCfg.Pipeline.StealthEnabled,
		StealthSlices:   appCfg.Pipeline.StealthSlices,
		SliceDelay:      appCfg.Pipeline.SliceDelay,
		UserID:          appCfg.Pipeline.UserID,
	}, tracker, l, prices, h, clk, pipeOpts...)
	if appCfg.Pipeline.AutoExecute {
		tracker.OnSignal(func(sig model.ExecutionSignal) {
			if err := p.Dispatch(sig); err != nil {
				logger.Warn("signal dispatch failed", logger.Pair("signal", sig.SignalID), logger.ErrorField(err))
			}
		})
		go p.Run(ctx)
	}

	apiRouter := router.NewApiRouter(
		consensush.NewConsensusHandler(tracker),
		signal.NewSignalHandler(tracker, p),
		order.NewOrderHandler(l, appCfg.Pipeline.UserID),
		portfolio.NewPortfolioHandler(l, pc, appCfg.Pipeline.UserID),
		stream.NewStreamGateway(h, stream.Config{
			PingPeriod: appCfg.Hub.IdleTimeout / 2,
			PongWait:   appCfg.Hub.IdleTimeout,
			SendBuffer: appCfg.Hub.SendBuffer,
		}),
		appCfg.Jwt.Secret,
	)

	stop := func() {
		cancel()
		l.Shutdown()
		h.Shutdown()
		if journal != nil {
			_ = journal.Close()
		}
	}
	return apiRouter, stop
}
