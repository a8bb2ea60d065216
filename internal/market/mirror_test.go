package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// fakeStore записывает вызовы Set/Publish
type fakeStore struct {
	mu        sync.Mutex
	values    map[string][]byte
	ttls      map[string]time.Duration
	published int
	failSet   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (f *fakeStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return redis.NewStatusResult("", errors.New("connection refused"))
	}
	f.values[key] = value.([]byte)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeStore) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published++
	return redis.NewIntResult(1, nil)
}

func (f *fakeStore) get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

func TestMirrorKey(t *testing.T) {
	if got := MirrorKey(models.VenueBingX, "btc-usdc"); got != "crossarb:book:bingx:BTCUSDC" {
		t.Errorf("MirrorKey = %q", got)
	}
}

func TestMirror_WritesLatestSnapshot(t *testing.T) {
	store := newFakeStore()
	m := NewMirror(store, 0, utils.NewNop())

	agg := NewAggregator("BTC-USDC", utils.NewNop())
	agg.Subscribe(m.Listener())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	agg.Update(models.VenueMEXC, book(models.VenueMEXC,
		[]models.PriceLevel{lvl("40000", "1")}, []models.PriceLevel{lvl("40010", "2")}))

	key := MirrorKey(models.VenueMEXC, "BTC-USDC")
	deadline := time.Now().Add(2 * time.Second)
	for m.Written() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	raw, ok := store.get(key)
	if !ok {
		t.Fatal("snapshot not mirrored")
	}
	var snap models.OrderBookSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if snap.Venue != models.VenueMEXC || len(snap.Asks) != 1 || !snap.Asks[0].Size.Equal(d("2")) {
		t.Errorf("unexpected payload: %+v", snap)
	}
	if store.ttls[key] != 10*time.Second {
		t.Errorf("ttl = %v, want default 10s", store.ttls[key])
	}
	if store.published != 1 {
		t.Errorf("published = %d", store.published)
	}
}

func TestMirror_WriteErrorIsNotFatal(t *testing.T) {
	store := newFakeStore()
	store.failSet = true
	m := NewMirror(store, time.Second, utils.NewNop())

	snap := book(models.VenueBingX, []models.PriceLevel{lvl("1", "1")}, []models.PriceLevel{lvl("2", "1")})
	if err := m.write(context.Background(), snap); err == nil {
		t.Error("expected store error")
	}
	if m.Written() != 0 || store.published != 0 {
		t.Error("failed Set must not publish")
	}
}

func TestMirror_ListenerNeverBlocks(t *testing.T) {
	m := NewMirror(newFakeStore(), time.Second, utils.NewNop())
	listener := m.Listener()

	snap := book(models.VenueMEXC, nil, nil)
	for i := 0; i < cap(m.queue)+10; i++ {
		listener(snap)
	}
	if m.Dropped() != 10 {
		t.Errorf("Dropped = %d, want 10", m.Dropped())
	}
}
