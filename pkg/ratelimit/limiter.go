package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Category группа эндпоинтов площадки со своим лимитом
type Category string

// Категории запросов REST клиентов
const (
	Market  Category = "market"  // стакан, тикеры
	Order   Category = "order"   // размещение, отмена, статус ордера
	Account Category = "account" // балансы
)

// Rate параметры ведра
type Rate struct {
	PerSecond float64
	Burst     float64
}

// VenueLimits лимиты площадки с запасом от опубликованных.
// Неизвестная площадка получает консервативные значения.
//
//   - MEXC spot:  20 req/sec на market data, 5 на ордера
//   - BingX spot: 10 req/sec на market data, 5 на ордера
func VenueLimits(venue string) map[Category]Rate {
	switch venue {
	case "mexc":
		return map[Category]Rate{
			Market:  {PerSecond: 20, Burst: 40},
			Order:   {PerSecond: 5, Burst: 10},
			Account: {PerSecond: 5, Burst: 10},
		}
	case "bingx":
		return map[Category]Rate{
			Market:  {PerSecond: 10, Burst: 20},
			Order:   {PerSecond: 5, Burst: 10},
			Account: {PerSecond: 5, Burst: 10},
		}
	default:
		return map[Category]Rate{
			Market:  {PerSecond: 5, Burst: 5},
			Order:   {PerSecond: 2, Burst: 2},
			Account: {PerSecond: 2, Burst: 2},
		}
	}
}

// Bucket - Token Bucket для одной категории запросов
//
// Алгоритм:
// - ведро наполняется со скоростью rate токенов/сек до burst
// - каждый запрос потребляет 1 токен
// - если токенов нет, Wait ждёт ближайшего токена или отмены контекста
type Bucket struct {
	rate       float64
	burst      float64
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewBucket создаёт ведро, начинает с полным
func NewBucket(r Rate) *Bucket {
	if r.PerSecond <= 0 {
		r.PerSecond = 10
	}
	if r.Burst < r.PerSecond {
		r.Burst = r.PerSecond
	}
	return &Bucket{
		rate:       r.PerSecond,
		burst:      r.Burst,
		tokens:     r.Burst,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// refill вызывается под lock'ом
func (b *Bucket) refill() {
	now := b.now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.lastRefill = now
}

// Wait блокирует до получения токена или отмены контекста
func (b *Bucket) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		b.refill()
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Allow неблокирующая попытка взять токен
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Tokens текущее количество токенов
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// Limiter набор вёдер площадки по категориям.
// Карта заполняется в конструкторе и дальше только читается.
type Limiter struct {
	buckets map[Category]*Bucket
}

// NewLimiter limiter из набора лимитов
func NewLimiter(limits map[Category]Rate) *Limiter {
	l := &Limiter{buckets: make(map[Category]*Bucket, len(limits))}
	for cat, r := range limits {
		l.buckets[cat] = NewBucket(r)
	}
	return l
}

// Wait токен категории. Категория без лимита проходит сразу.
func (l *Limiter) Wait(ctx context.Context, cat Category) error {
	b, ok := l.buckets[cat]
	if !ok {
		return nil
	}
	return b.Wait(ctx)
}

// Allow неблокирующая проверка категории
func (l *Limiter) Allow(cat Category) bool {
	b, ok := l.buckets[cat]
	if !ok {
		return true
	}
	return b.Allow()
}
