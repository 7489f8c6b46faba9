package logger

import (
	"fmt"
	"os"

	"marking_backend/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 未初始化前为 Nop，测试中无需额外设置
var Log = zap.NewNop()

// level 由 InitLogger 创建，配置热更新时通过 SetLevel 调整
var level = zap.NewAtomicLevelAt(zap.InfoLevel)

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// resolveLevel 未配置级别时 debug 模式输出 debug 日志
func resolveLevel(cfg *config.Config) (zapcore.Level, error) {
	if cfg.Log.Level == "" {
		if cfg.Server.Mode == "debug" {
			return zap.DebugLevel, nil
		}
		return zap.InfoLevel, nil
	}
	return zapcore.ParseLevel(cfg.Log.Level)
}

func InitLogger(cfg *config.Config) error {
	lvl, err := resolveLevel(cfg)
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	level.SetLevel(lvl)

	var cores []zapcore.Core
	if cfg.Log.File != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), fileWriter, level))
	}
	if cfg.Log.Console {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.AddSync(os.Stdout), level))
	}

	Log = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)).Named("marking")
	return nil
}

// SetLevel 配置文件修改 log.level 后调用，级别无效时保持原值
func SetLevel(cfg *config.Config) error {
	lvl, err := resolveLevel(cfg)
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if lvl != level.Level() {
		level.SetLevel(lvl)
		Log.Info("log level changed", zap.Stringer("level", lvl))
	}
	return nil
}

// Submission 一份学生提交的公共日志字段
func Submission(assignmentID, userID uint) []zap.Field {
	return []zap.Field{
		zap.Uint("assignmentId", assignmentID),
		zap.Uint("userId", userID),
	}
}
