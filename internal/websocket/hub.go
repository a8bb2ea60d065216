package websocket

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ============ sync.Pool для JSON буферов ============

var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

// HubConfig параметры потока
type HubConfig struct {
	// BookInterval минимальный интервал между снимками одной площадки
	BookInterval time.Duration
	// BookDepth сколько уровней стакана отдавать клиентам
	BookDepth int
	// BroadcastBuffer ёмкость очереди рассылки
	BroadcastBuffer int
	// AllowedOrigins список Origin через запятую, пусто или * = все
	AllowedOrigins string
}

// DefaultHubConfig значения по умолчанию
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BookInterval:    250 * time.Millisecond,
		BookDepth:       10,
		BroadcastBuffer: 256,
	}
}

// Hub управляет всеми активными WebSocket соединениями
//
// Назначение:
// Рассылка событий движка (стаканы, возможности, исполнения, статистика)
// всем подключённым клиентам UI. Поток только на чтение.
//
// Рассылка никогда не блокирует вызывающего: движок и агрегатор зовут
// Broadcast* из горячего пути. При полной очереди сообщение отбрасывается
// и учитывается в DroppedMessages, медленный клиент отключается.
//
// Использование:
// 1. hub := NewHub(cfg, log)
// 2. go hub.Run(ctx)
// 3. engine.SetBroadcaster(hub); agg.Subscribe(hub.BroadcastBook)
type Hub struct {
	cfg     HubConfig
	log     *utils.Logger
	origins *OriginChecker

	clients map[*Client]struct{}
	mu      sync.RWMutex

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once

	dropped uint64 // atomic

	bookMu   sync.Mutex
	lastBook map[models.Venue]time.Time
}

// NewHub создает новый Hub
func NewHub(cfg HubConfig, log *utils.Logger) *Hub {
	if log == nil {
		log = utils.L()
	}
	def := DefaultHubConfig()
	if cfg.BroadcastBuffer <= 0 {
		cfg.BroadcastBuffer = def.BroadcastBuffer
	}
	if cfg.BookDepth <= 0 {
		cfg.BookDepth = def.BookDepth
	}
	return &Hub{
		cfg:        cfg,
		log:        log.WithComponent("ws_hub"),
		origins:    NewOriginChecker(cfg.AllowedOrigins),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, cfg.BroadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		lastBook:   make(map[models.Venue]time.Time),
	}
}

// Run главный цикл: регистрация, отмена регистрации, рассылка.
// Завершается по ctx или Stop, закрывая всех клиентов.
func (h *Hub) Run(ctx context.Context) {
	defer h.Stop()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stop:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client connected", utils.Int("clients", n))

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			// копируем список под коротким RLock, отправляем без блокировки
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.RUnlock()

			for _, c := range clients {
				select {
				case c.send <- message:
				default:
					h.log.Warn("slow client disconnected")
					h.remove(c)
				}
			}
		}
	}
}

// Stop останавливает Run
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// Broadcast сериализует сообщение и ставит в очередь рассылки
func (h *Hub) Broadcast(t MessageType, data interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer jsonBufferPool.Put(buf)

	msg := Message{Type: t, Timestamp: time.Now(), Data: data}
	if err := json.NewEncoder(buf).Encode(&msg); err != nil {
		h.log.Error("failed to marshal broadcast message", utils.String("type", string(t)), utils.Err(err))
		return
	}

	// без trailing newline от Encode; копия, буфер вернётся в пул
	out := bytes.TrimRight(buf.Bytes(), "\n")
	payload := make([]byte, len(out))
	copy(payload, out)

	select {
	case h.broadcast <- payload:
	default:
		atomic.AddUint64(&h.dropped, 1)
	}
}

// BroadcastBook снимок стакана, не чаще BookInterval на площадку.
// Сигнатура совпадает со слушателем агрегатора.
func (h *Hub) BroadcastBook(snap *models.OrderBookSnapshot) {
	if snap == nil {
		return
	}
	now := time.Now()
	h.bookMu.Lock()
	if last, ok := h.lastBook[snap.Venue]; ok && now.Sub(last) < h.cfg.BookInterval {
		h.bookMu.Unlock()
		return
	}
	h.lastBook[snap.Venue] = now
	h.bookMu.Unlock()

	h.Broadcast(MessageTypeBook, NewBookData(snap, h.cfg.BookDepth))
}

// BroadcastOpportunity возможность, выбранная движком
func (h *Hub) BroadcastOpportunity(opp *models.ArbitrageOpportunity) {
	h.Broadcast(MessageTypeOpportunity, opp)
}

// BroadcastExecution завершённое исполнение
func (h *Hub) BroadcastExecution(exec *models.ArbitrageExecution) {
	h.Broadcast(MessageTypeExecution, exec)
}

// BroadcastStats статистика движка
func (h *Hub) BroadcastStats(stats *models.Stats) {
	h.Broadcast(MessageTypeStats, stats)
}

// BroadcastNotification уведомление
func (h *Hub) BroadcastNotification(n *models.Notification) {
	h.Broadcast(MessageTypeNotification, n)
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages сколько сообщений отброшено из-за полной очереди
func (h *Hub) DroppedMessages() uint64 {
	return atomic.LoadUint64(&h.dropped)
}
