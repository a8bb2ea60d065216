package utils

import (
	"os"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger.go - структурированное логирование на базе zap
//
// Все компоненты получают дочерний логгер через WithComponent/WithVenue,
// чтобы каждая запись несла площадку, символ и компонент.

// LogConfig настройки логгера
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json, text
	Output      string // путь к файлу; пусто = stderr
	Development bool
}

// Logger обёртка над zap.Logger
type Logger struct {
	*zap.Logger
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitLogger создаёт логгер по конфигурации
//
// Если файл вывода открыть не удалось, пишем в stderr (без паники).
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}

	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "text") || strings.EqualFold(cfg.Format, "console") {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if cfg.Output != "" && cfg.Output != "stderr" {
		if cfg.Output == "stdout" {
			sink = zapcore.Lock(os.Stdout)
		} else if f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			sink = zapcore.AddSync(f)
		}
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	return &Logger{Logger: zap.New(zapcore.NewCore(encoder, sink, level), opts...)}
}

// NewNop логгер, который ничего не пишет (для тестов)
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ============================================================
// Глобальный логгер
// ============================================================

// InitGlobalLogger создаёт логгер и делает его глобальным
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger устанавливает глобальный логгер
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// GetGlobalLogger возвращает глобальный логгер, создавая дефолтный при необходимости
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L сокращение для GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// ============================================================
// Методы Logger
// ============================================================

// With возвращает дочерний логгер с полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

func (l *Logger) WithComponent(name string) *Logger { return l.With(zap.String("component", name)) }
func (l *Logger) WithVenue(venue string) *Logger { return l.With(Venue(venue)) }
func (l *Logger) WithSymbol(symbol string) *Logger { return l.With(Symbol(symbol)) }
func (l *Logger) WithExecutionID(id string) *Logger { return l.With(ExecutionID(id)) }

// ============================================================
// Конструкторы полей
// ============================================================

func Venue(v string) zap.Field { return zap.String("venue", v) }
func Symbol(s string) zap.Field { return zap.String("symbol", s) }
func OrderID(id string) zap.Field { return zap.String("order_id", id) }
func ExecutionID(id string) zap.Field { return zap.String("execution_id", id) }
func Price(p decimal.Decimal) zap.Field { return zap.Stringer("price", p) }
func Volume(v decimal.Decimal) zap.Field { return zap.Stringer("volume", v) }
func SpreadBps(s decimal.Decimal) zap.Field { return zap.Stringer("spread_bps", s) }
func PNL(p decimal.Decimal) zap.Field { return zap.Stringer("pnl", p) }
func Side(s string) zap.Field { return zap.String("side", s) }
func State(s string) zap.Field { return zap.String("state", s) }
func Latency(ms float64) zap.Field { return zap.Float64("latency_ms", ms) }
func RequestID(id string) zap.Field { return zap.String("request_id", id) }

// Переэкспорт часто используемых конструкторов zap
var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Float64  = zap.Float64
	Bool     = zap.Bool
	Err      = zap.Error
	Any      = zap.Any
	Duration = zap.Duration
)

