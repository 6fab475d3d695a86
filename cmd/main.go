package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	api "tradeflow/cmd/tradeflow"
	"tradeflow/conf"
	"tradeflow/internal/middleware"
	"tradeflow/pkg/cache"
	"tradeflow/pkg/db"
	"tradeflow/pkg/kafka"
	"tradeflow/pkg/logger"
)

// 启动服务

/*
测试

curl -X POST http://localhost:12180/api/v1/consensus \
  -H "Content-Type: application/json" \
  -d '{"debate_id":"d-1","symbol":"AAPL","action":"buy","score":78}'

curl -X POST http://localhost:12180/api/v1/consensus \
  -H "Content-Type: application/json" \
  -d '{"debate_id":"d-1","symbol":"AAPL","action":"buy","score":91,"votes":[{"agent_id":"bull","stance":"buy","confidence":88}]}'

curl http://localhost:12180/api/v1/signals
curl -X POST http://localhost:12180/api/v1/signals/<signal_id>/execute
*/

func main() {

	// 加载配置文件
	err := conf.LoadConfig("conf/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	appCfg := conf.AppConfig
	applyEnv(&appCfg)
	conf.AppConfig = appCfg
	logger.InitLogger(&appCfg.Log, appCfg.AppName)
	defer logger.Sync()

	var infra api.Infra

	// 初始化数据库，未配置 host 时只在内存中运行
	if appCfg.Db.Host != "" {
		datasource, err := db.Init(db.NewConfig(appCfg.Db.Driver, appCfg.Db.Username, appCfg.Db.Password,
			appCfg.Db.Host, appCfg.Db.Port, appCfg.Db.DbName))
		if err != nil {
			logger.Fatal("init database failed", logger.ErrorField(err))
		}
		infra.DB = datasource
	}

	// 初始化redis缓存
	if appCfg.Redis.Addr != "" {
		if err := cache.InitRedis(appCfg.Redis); err != nil {
			logger.Warn("redis unavailable, portfolio snapshots disabled", logger.ErrorField(err))
		} else {
			infra.Redis = cache.GetRedisClient()
		}
	}

	if appCfg.Kafka.Broker != "" {
		infra.Producer = kafka.NewKafkaProducer(appCfg.Kafka.Broker)
		infra.Consumer = kafka.NewKafkaConsumer(appCfg.Kafka.Broker)
	}

	srvRouter, stop := api.InitRouter(context.Background(), infra)

	// 创建并启动服务
	srv := api.NewServer(&appCfg)
	srv.RegisterOnShutdown(func() {
		stop()
		if err := closeInfra(infra); err != nil {
			logger.Error("close resources failed", logger.ErrorField(err))
		}
	})

	srv.Run(middleware.NewMiddleware(), srvRouter)
}

// 环境变量优先于配置文件
func applyEnv(cfg *conf.Config) {
	if os.Getenv("DB_HOST") != "" {
		cfg.Db.Host = os.Getenv("DB_HOST")
		cfg.Db.Port = os.Getenv("DB_PORT")
		cfg.Db.Username = os.Getenv("DB_USER")
		cfg.Db.Password = os.Getenv("DB_PASSWORD")
		if name := os.Getenv("DB_NAME"); name != "" {
			cfg.Db.DbName = name
		}
		if driver := os.Getenv("DB_DRIVER"); driver != "" {
			cfg.Db.Driver = driver
		}
	}

	redisHost := os.Getenv("REDIS_HOST")
	redisPort := os.Getenv("REDIS_PORT")
	if redisHost != "" && redisPort != "" {
		cfg.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.Redis.Password = redisPassword
	}

	if broker := os.Getenv("KAFKA_BROKER"); broker != "" {
		cfg.Kafka.Broker = broker
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Jwt.Secret = secret
	}
}

func closeInfra(infra api.Infra) error {
	var err error
	if infra.Producer != nil {
		err = multierr.Append(err, infra.Producer.Close())
	}
	if infra.Consumer != nil {
		infra.Consumer.Close()
	}
	err = multierr.Append(err, closeDB(infra.DB))
	err = multierr.Append(err, cache.CloseRedis())
	return err
}

func closeDB(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
