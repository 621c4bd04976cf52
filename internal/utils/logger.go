package utils

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 全局日志器,未初始化时丢弃所有输出
var Logger zerolog.Logger

var (
	filesMu  sync.Mutex
	logFiles []*lumberjack.Logger
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string // trace|debug|info|warn|error
	LogDir     string
	MaxSize    int  // 单个文件上限(MB)
	MaxBackups int  // 保留的轮转文件数
	MaxAge     int  // 保留天数
	Compress   bool // 压缩轮转文件
	NoColor    bool // 控制台不输出颜色
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogDir:     "logs",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// InitLogger 初始化全局日志
// 控制台写stderr(stdout留给进度条和摘要),onehousing.log记录全部级别,
// onehousing_error.log只记录错误。重复调用会先关闭上一组日志文件。
func InitLogger(config LogConfig) error {
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	rotate := func(name string) *lumberjack.Logger {
		return &lumberjack.Logger{
			Filename:   filepath.Join(config.LogDir, name),
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
	}
	mainFile := rotate("onehousing.log")
	errorFile := rotate("onehousing_error.log")

	_ = CloseLogger()
	filesMu.Lock()
	logFiles = []*lumberjack.Logger{mainFile, errorFile}
	filesMu.Unlock()

	writer := zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339, NoColor: config.NoColor},
		mainFile,
		&FilteredWriter{Writer: errorFile, MinLevel: zerolog.ErrorLevel},
	)

	Logger = zerolog.New(writer).With().Timestamp().Caller().Logger()
	log.Logger = Logger

	Logger.Debug().
		Str("level", level.String()).
		Str("log_dir", config.LogDir).
		Msg("日志系统初始化完成")
	return nil
}

// CloseLogger 关闭日志文件,进程退出前调用
func CloseLogger() error {
	filesMu.Lock()
	defer filesMu.Unlock()

	var errs []error
	for _, f := range logFiles {
		errs = append(errs, f.Close())
	}
	logFiles = nil
	return errors.Join(errs...)
}

// Component 返回带 component 字段的子日志器
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

// FilteredWriter 只转发不低于MinLevel的日志
type FilteredWriter struct {
	Writer   io.Writer
	MinLevel zerolog.Level
}

// Write 没有级别信息的写入一律丢弃
func (w *FilteredWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

// WriteLevel 实现zerolog.LevelWriter
func (w *FilteredWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.MinLevel {
		return len(p), nil
	}
	return w.Writer.Write(p)
}

func Info(msg string) { Logger.Info().Msg(msg) }
func Infof(format string, args ...any) { Logger.Info().Msgf(format, args...) }
func Warn(msg string) { Logger.Warn().Msg(msg) }
func Warnf(format string, args ...any) { Logger.Warn().Msgf(format, args...) }
func Error(msg string) { Logger.Error().Msg(msg) }
func Errorf(format string, args ...any) { Logger.Error().Msgf(format, args...) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Debugf(format string, args ...any) { Logger.Debug().Msgf(format, args...) }
