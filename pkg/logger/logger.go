package logger

import (
	"os"
	"strings"
	"sync/atomic"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tradeflow/conf"
)

// Field 结构化日志字段
type Field = zap.Field

var current atomic.Pointer[zap.Logger]

func init() {
	l, err := zap.NewDevelopment(zap.AddCallerSkip(1))
	if err != nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

// InitLogger 根据配置初始化全局日志，文件按 lumberjack 规则切割
func InitLogger(cfg *conf.LogConfig, appName string) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	if cfg.TimeFormat != "" {
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(cfg.TimeFormat)
	} else {
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	var cores []zapcore.Core
	if cfg.FileName != "" {
		writer := &lumberjack.Logger{
			Filename:   cfg.FileName,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  cfg.LocalTime,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(writer), level))
	}
	if cfg.Console || len(cores) == 0 {
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stdout), level))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)).
		With(zap.String("app", appName))
	current.Store(l)
}

// Pair 构造一个键值对字段
func Pair(key string, value any) Field {
	return zap.Any(key, value)
}

func ErrorField(err error) Field {
	return zap.Error(err)
}

func L() *zap.Logger {
	return current.Load()
}

func Debug(msg string, fields ...Field) { current.Load().Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { current.Load().Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { current.Load().Warn(msg, fields...) }
func Error(msg string, fields ...Field) { current.Load().Error(msg, fields...) }
func Fatal(msg string, fields ...Field) { current.Load().Fatal(msg, fields...) }

func Debugf(format string, args ...any) { current.Load().Sugar().Debugf(format, args...) }
func Infof(format string, args ...any)  { current.Load().Sugar().Infof(format, args...) }
func Warnf(format string, args ...any)  { current.Load().Sugar().Warnf(format, args...) }
func Errorf(format string, args ...any) { current.Load().Sugar().Errorf(format, args...) }
func Fatalf(format string, args ...any) { current.Load().Sugar().Fatalf(format, args...) }

// Sync 刷新缓冲，退出前调用
func Sync() {
	_ = current.Load().Sync()
}
