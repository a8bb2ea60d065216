package exchange

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"crossarb/pkg/utils"
)

// decodeWarnInterval не чаще одного предупреждения о битых фреймах за интервал
const decodeWarnInterval = 10 * time.Second

// FeedConfig общие параметры потоковых адаптеров
type FeedConfig struct {
	// Endpoints переопределяет адреса площадки (тесты, прокси)
	Endpoints      []string
	ReconnectDelay time.Duration
	MaxDelay       time.Duration
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	// Buffer размер буфера подписки
	Buffer int
}

// DefaultFeedConfig значения по умолчанию
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		ReconnectDelay: time.Second,
		MaxDelay:       16 * time.Second,
		PingInterval:   30 * time.Second,
		ReadTimeout:    90 * time.Second,
		Buffer:         64,
	}
}

func (c FeedConfig) wsConfig(defaultEndpoints []string, keepalive []byte) WSReconnectConfig {
	endpoints := c.Endpoints
	if len(endpoints) == 0 {
		endpoints = defaultEndpoints
	}
	cfg := DefaultWSReconnectConfig(endpoints...)
	if c.ReconnectDelay > 0 {
		cfg.ReconnectDelay = c.ReconnectDelay
	}
	if c.MaxDelay > 0 {
		cfg.MaxDelay = c.MaxDelay
	}
	cfg.PingInterval = c.PingInterval
	cfg.ReadTimeout = c.ReadTimeout
	cfg.KeepaliveMessage = keepalive
	return cfg
}

// frameDecoder разбирает один фрейм.
// ok=false: служебное сообщение (ack, pong), публиковать нечего.
type frameDecoder[T any] func(messageType int, data []byte) (value T, ok bool, err error)

// startStream связывает менеджер соединения с подпиской.
// Горутина Run завершается по отмене ctx подписки, после чего канал закрывается.
func startStream[T any](ctx context.Context, mgr *WSReconnectManager, buffer int, kind string, decode frameDecoder[T], log *utils.Logger) *Subscription[T] {
	sub, subCtx := newSubscription[T](ctx, buffer)
	venue := mgr.venue.String()
	drops := newDropLogger(log, decodeWarnInterval)

	mgr.SetOnMessage(func(messageType int, data []byte) {
		value, ok, err := decode(messageType, data)
		if err != nil {
			FeedDecodeErrors.WithLabelValues(venue).Inc()
			drops.warn(kind, err)
			return
		}
		if !ok {
			FeedMessages.WithLabelValues(venue, "control").Inc()
			return
		}
		FeedMessages.WithLabelValues(venue, kind).Inc()
		if dropped := sub.publish(value); dropped {
			FeedDroppedSnapshots.WithLabelValues(venue).Inc()
		}
	})

	go func() {
		defer sub.finish()
		mgr.Run(subCtx)
		log.Info("feed stopped", utils.String("kind", kind))
	}()

	return sub
}

// dropLogger предупреждение о выброшенном фрейме через сэмплер zap:
// первое за интервал пишется, остальные считаются и попадают
// в поле suppressed следующей записи
type dropLogger struct {
	log        *utils.Logger
	suppressed atomic.Int64
}

func newDropLogger(log *utils.Logger, every time.Duration) *dropLogger {
	d := &dropLogger{}
	d.log = &utils.Logger{Logger: log.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewSamplerWithOptions(c, every, 1, 0, zapcore.SamplerHook(d.sampled))
	}))}
	return d
}

func (d *dropLogger) sampled(_ zapcore.Entry, dec zapcore.SamplingDecision) {
	if dec&zapcore.LogDropped != 0 {
		d.suppressed.Add(1)
		return
	}
	d.suppressed.Store(0)
}

func (d *dropLogger) warn(kind string, err error) {
	d.log.Warn("dropping undecodable message",
		utils.String("kind", kind),
		utils.Int64("suppressed", d.suppressed.Load()),
		utils.Err(err),
	)
}

// venueClock источник времени наблюдения (подменяется в тестах)
type venueClock func() time.Time

func (c venueClock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
