package market

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MirrorChannel канал pub/sub с каждым зафиксированным снимком
const MirrorChannel = "crossarb:books"

// snapshotStore подмножество *redis.Client, нужное зеркалу
type snapshotStore interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// MirrorKey ключ последнего снимка площадки
func MirrorKey(venue models.Venue, symbol string) string {
	return fmt.Sprintf("crossarb:book:%s:%s", venue, utils.NormalizeSymbol(symbol))
}

// Mirror пишет последний снимок каждой площадки в Redis.
//
// Подписчик агрегатора только кладёт снимок в буфер; запись в Redis
// идёт в Run, вне фазы обновления агрегатора. При переполнении буфера
// снимок пропускается: в зеркале важно только последнее состояние.
type Mirror struct {
	store   snapshotStore
	ttl     time.Duration
	log     *utils.Logger
	queue   chan *models.OrderBookSnapshot
	dropped uint64 // atomic
	written uint64 // atomic
}

// NewMirror создаёт зеркало поверх redis клиента
func NewMirror(store snapshotStore, ttl time.Duration, log *utils.Logger) *Mirror {
	if log == nil {
		log = utils.L()
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Mirror{
		store: store,
		ttl:   ttl,
		log:   log.WithComponent("mirror"),
		queue: make(chan *models.OrderBookSnapshot, 64),
	}
}

// NewRedisClient клиент go-redis по адресу
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// Listener подписчик для Aggregator.Subscribe
func (m *Mirror) Listener() Listener {
	return func(snap *models.OrderBookSnapshot) {
		select {
		case m.queue <- snap:
		default:
			atomic.AddUint64(&m.dropped, 1)
		}
	}
}

// Run пишет снимки до отмены ctx
func (m *Mirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-m.queue:
			if err := m.write(ctx, snap); err != nil {
				m.log.Warn("mirror write failed", utils.Venue(snap.Venue.String()), utils.Err(err))
			}
		}
	}
}

func (m *Mirror) write(ctx context.Context, snap *models.OrderBookSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, MirrorKey(snap.Venue, snap.Symbol), payload, m.ttl).Err(); err != nil {
		return err
	}
	if err := m.store.Publish(ctx, MirrorChannel, payload).Err(); err != nil {
		return err
	}
	atomic.AddUint64(&m.written, 1)
	return nil
}

// Written количество записанных снимков
func (m *Mirror) Written() uint64 { return atomic.LoadUint64(&m.written) }

// Dropped пропущенные при переполнении снимки
func (m *Mirror) Dropped() uint64 { return atomic.LoadUint64(&m.dropped) }
