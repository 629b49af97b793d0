package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 日志配置
type Options struct {
	// Stdout 为 true 时输出到标准输出，否则写文件
	Stdout bool `yaml:"stdout"`

	// Format 输出格式，console 或 json
	Format string `yaml:"format"`

	// Filename 日志文件路径，滚动备份放在同一目录
	Filename string `yaml:"filename"`

	// MaxSize 单个文件大小上限 (MB)
	MaxSize int `yaml:"max_size"`

	// MaxAge 旧文件保留天数
	MaxAge int `yaml:"max_age"`

	// MaxBackups 旧文件保留个数
	MaxBackups int `yaml:"max_backups"`

	Level string `yaml:"level"`
}

var levels = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

// Logger 对 SugaredLogger 的简单包装
type Logger struct {
	sugared *zap.SugaredLogger
	// facade 给包级函数用，多跳过一层调用栈
	facade *zap.SugaredLogger
	writer io.Writer
}

func (l *Logger) Writer() io.Writer { return l.writer }

func (l *Logger) Debugf(template string, args ...interface{}) {
	l.sugared.Debugf(template, args...)
}

func (l *Logger) Infof(template string, args ...interface{}) {
	l.sugared.Infof(template, args...)
}

func (l *Logger) Warnf(template string, args ...interface{}) {
	l.sugared.Warnf(template, args...)
}

func (l *Logger) Errorf(template string, args ...interface{}) {
	l.sugared.Errorf(template, args...)
}

func (l *Logger) Sync() error {
	return l.sugared.Sync()
}

// New 按 Options 构造 Logger
func New(opt Options) (*Logger, error) {
	level, ok := levels[strings.ToLower(opt.Level)]
	if !ok {
		level = zapcore.InfoLevel
	}

	var w io.Writer
	if opt.Stdout || opt.Filename == "" {
		w = os.Stdout
	} else {
		if err := os.MkdirAll(filepath.Dir(opt.Filename), 0o755); err != nil {
			return nil, errors.Wrapf(err, "create log dir for %s", opt.Filename)
		}
		w = &lumberjack.Logger{
			Filename:   opt.Filename,
			MaxSize:    opt.MaxSize,
			MaxAge:     opt.MaxAge,
			MaxBackups: opt.MaxBackups,
			LocalTime:  true,
		}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	switch opt.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), level)
	sugared := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	return &Logger{
		sugared: sugared,
		facade:  sugared.WithOptions(zap.AddCallerSkip(1)),
		writer:  w,
	}, nil
}

var (
	mut       sync.RWMutex
	stdLogger = &Logger{sugared: zap.NewNop().Sugar(), facade: zap.NewNop().Sugar(), writer: io.Discard}
)

// SetOptions 替换全局 logger
func SetOptions(opt Options) error {
	l, err := New(opt)
	if err != nil {
		return err
	}
	mut.Lock()
	stdLogger = l
	mut.Unlock()
	return nil
}

func get() *Logger {
	mut.RLock()
	defer mut.RUnlock()
	return stdLogger
}

func Debugf(template string, args ...interface{}) { get().facade.Debugf(template, args...) }

func Infof(template string, args ...interface{}) { get().facade.Infof(template, args...) }

func Warnf(template string, args ...interface{}) { get().facade.Warnf(template, args...) }

func Errorf(template string, args ...interface{}) { get().facade.Errorf(template, args...) }

// Sync 刷新缓冲，进程退出前调用
func Sync() { _ = get().Sync() }
