package exchange

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// WSReconnectConfig конфигурация переподключения WebSocket
type WSReconnectConfig struct {
	// Кандидаты endpoint, перебираются по кругу при неудачах
	Endpoints []string
	// Задержка перед первой повторной попыткой
	ReconnectDelay time.Duration
	// Максимальная задержка (после exponential backoff)
	MaxDelay time.Duration
	// Таймаут подключения
	ConnectTimeout time.Duration
	// Интервал keepalive
	PingInterval time.Duration
	// KeepaliveMessage текстовый keepalive уровня приложения.
	// nil = протокольный ping фрейм
	KeepaliveMessage []byte
	// Таймаут чтения (0 = без дедлайна)
	ReadTimeout time.Duration
	// Таймаут записи
	WriteTimeout time.Duration
}

// DefaultWSReconnectConfig возвращает конфигурацию по умолчанию
func DefaultWSReconnectConfig(endpoints ...string) WSReconnectConfig {
	return WSReconnectConfig{
		Endpoints:      endpoints,
		ReconnectDelay: time.Second,
		MaxDelay:       16 * time.Second,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		ReadTimeout:    90 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// WSConnectionState состояние WebSocket соединения
type WSConnectionState int32

const (
	WSStateDisconnected WSConnectionState = iota
	WSStateConnecting
	WSStateConnected
	WSStateReconnecting
	WSStateClosed
)

func (s WSConnectionState) String() string {
	switch s {
	case WSStateDisconnected:
		return "disconnected"
	case WSStateConnecting:
		return "connecting"
	case WSStateConnected:
		return "connected"
	case WSStateReconnecting:
		return "reconnecting"
	case WSStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// WSReconnectManager держит одно логическое соединение с площадкой.
//
// Run крутит сессии: dial -> повтор подписок -> чтение до ошибки ->
// пауза с backoff -> следующий endpoint. Каждая сессия запускает свою
// горутину keepalive и горутину закрытия сокета по отмене; обе
// дожидаются через WaitGroup до начала следующей попытки, поэтому после
// возврата Run не остаётся ни таймеров, ни читателей.
type WSReconnectManager struct {
	venue  models.Venue
	config WSReconnectConfig
	log    *utils.Logger
	dialer websocket.Dialer

	conn    *websocket.Conn
	connMu  sync.RWMutex
	writeMu sync.Mutex

	state      int32 // atomic WSConnectionState
	retryCount int32 // atomic
	endpoint   int32 // atomic, индекс текущего endpoint

	onMessage    func(messageType int, data []byte)
	onConnect    func()
	onDisconnect func(error)
	callbackMu   sync.RWMutex

	// Подписки для восстановления после переподключения
	subscriptions   []interface{}
	subscriptionsMu sync.RWMutex
}

// NewWSReconnectManager создаёт новый менеджер переподключений
func NewWSReconnectManager(venue models.Venue, config WSReconnectConfig, log *utils.Logger) *WSReconnectManager {
	if log == nil {
		log = utils.L()
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = time.Second
	}
	if config.MaxDelay < config.ReconnectDelay {
		config.MaxDelay = config.ReconnectDelay
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	return &WSReconnectManager{
		venue:         venue,
		config:        config,
		log:           log.WithComponent("ws").WithVenue(venue.String()),
		dialer:        websocket.Dialer{HandshakeTimeout: config.ConnectTimeout},
		subscriptions: make([]interface{}, 0),
	}
}

// SetOnMessage устанавливает callback для входящих сообщений
func (m *WSReconnectManager) SetOnMessage(handler func(messageType int, data []byte)) {
	m.callbackMu.Lock()
	m.onMessage = handler
	m.callbackMu.Unlock()
}

// SetOnConnect устанавливает callback для события подключения
func (m *WSReconnectManager) SetOnConnect(handler func()) {
	m.callbackMu.Lock()
	m.onConnect = handler
	m.callbackMu.Unlock()
}

// SetOnDisconnect устанавливает callback для события отключения
func (m *WSReconnectManager) SetOnDisconnect(handler func(error)) {
	m.callbackMu.Lock()
	m.onDisconnect = handler
	m.callbackMu.Unlock()
}

// AddSubscription добавляет подписку для восстановления после переподключения
func (m *WSReconnectManager) AddSubscription(sub interface{}) {
	m.subscriptionsMu.Lock()
	m.subscriptions = append(m.subscriptions, sub)
	m.subscriptionsMu.Unlock()
}

// GetState возвращает текущее состояние соединения
func (m *WSReconnectManager) GetState() WSConnectionState {
	return WSConnectionState(atomic.LoadInt32(&m.state))
}

// IsConnected проверяет, установлено ли соединение
func (m *WSReconnectManager) IsConnected() bool {
	return m.GetState() == WSStateConnected
}

// GetRetryCount количество попыток с последнего успешного подключения
func (m *WSReconnectManager) GetRetryCount() int {
	return int(atomic.LoadInt32(&m.retryCount))
}

// CurrentEndpoint endpoint текущей (или следующей) попытки
func (m *WSReconnectManager) CurrentEndpoint() string {
	if len(m.config.Endpoints) == 0 {
		return ""
	}
	idx := int(atomic.LoadInt32(&m.endpoint)) % len(m.config.Endpoints)
	return m.config.Endpoints[idx]
}

func (m *WSReconnectManager) setState(s WSConnectionState) {
	atomic.StoreInt32(&m.state, int32(s))
	if s == WSStateConnected {
		WSConnected.WithLabelValues(m.venue.String()).Set(1)
	} else {
		WSConnected.WithLabelValues(m.venue.String()).Set(0)
	}
}

// Run держит соединение до отмены ctx. Возвращает ctx.Err().
func (m *WSReconnectManager) Run(ctx context.Context) error {
	if len(m.config.Endpoints) == 0 {
		return errors.New("no websocket endpoints configured")
	}

	delay := m.config.ReconnectDelay
	defer m.setState(WSStateClosed)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		endpoint := m.CurrentEndpoint()
		m.setState(WSStateConnecting)

		connected, err := m.session(ctx, endpoint)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if connected {
			delay = m.config.ReconnectDelay
			m.callbackMu.RLock()
			onDisconnect := m.onDisconnect
			m.callbackMu.RUnlock()
			if onDisconnect != nil {
				onDisconnect(err)
			}
		}

		m.setState(WSStateReconnecting)
		retry := atomic.AddInt32(&m.retryCount, 1)
		atomic.AddInt32(&m.endpoint, 1)
		WSReconnects.WithLabelValues(m.venue.String()).Inc()

		m.log.Warn("websocket session ended, reconnecting",
			utils.String("endpoint", endpoint),
			utils.String("next_endpoint", m.CurrentEndpoint()),
			utils.Duration("delay", delay),
			utils.Int("attempt", int(retry)),
			utils.Err(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		// Exponential backoff
		delay *= 2
		if delay > m.config.MaxDelay {
			delay = m.config.MaxDelay
		}
	}
}

// session одна жизнь соединения. connected=true если dial прошёл.
func (m *WSReconnectManager) session(ctx context.Context, endpoint string) (connected bool, err error) {
	dialCtx, cancelDial := context.WithTimeout(ctx, m.config.ConnectTimeout)
	conn, _, err := m.dialer.DialContext(dialCtx, endpoint, nil)
	cancelDial()
	if err != nil {
		return false, &TransportError{Venue: m.venue, Op: "dial", Err: errors.Wrapf(err, "dial %s", endpoint)}
	}

	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()

	defer func() {
		m.connMu.Lock()
		m.conn = nil
		m.connMu.Unlock()
		conn.Close()
	}()

	if err := m.resubscribe(conn); err != nil {
		return true, err
	}

	m.setState(WSStateConnected)
	atomic.StoreInt32(&m.retryCount, 0)
	m.log.Info("websocket connected", utils.String("endpoint", endpoint))

	m.callbackMu.RLock()
	onConnect := m.onConnect
	m.callbackMu.RUnlock()
	if onConnect != nil {
		onConnect()
	}

	sessCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.keepalivePump(sessCtx, conn)
	}()
	go func() {
		defer wg.Done()
		<-sessCtx.Done()
		// разблокирует ReadMessage
		conn.Close()
	}()

	err = m.readLoop(conn)
	cancel()
	wg.Wait()

	return true, err
}

// resubscribe восстанавливает подписки после переподключения
func (m *WSReconnectManager) resubscribe(conn *websocket.Conn) error {
	m.subscriptionsMu.RLock()
	subs := make([]interface{}, len(m.subscriptions))
	copy(subs, m.subscriptions)
	m.subscriptionsMu.RUnlock()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	for _, sub := range subs {
		conn.SetWriteDeadline(time.Now().Add(m.config.WriteTimeout))
		if err := conn.WriteJSON(sub); err != nil {
			return &TransportError{Venue: m.venue, Op: "subscribe", Err: err}
		}
	}

	if len(subs) > 0 {
		m.log.Debug("subscriptions sent", utils.Int("count", len(subs)))
	}
	return nil
}

// readLoop читает сообщения до ошибки транспорта
func (m *WSReconnectManager) readLoop(conn *websocket.Conn) error {
	for {
		if m.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(m.config.ReadTimeout))
		}

		msgType, message, err := conn.ReadMessage()
		if err != nil {
			return &TransportError{Venue: m.venue, Op: "read", Err: err}
		}

		m.callbackMu.RLock()
		onMessage := m.onMessage
		m.callbackMu.RUnlock()

		if onMessage != nil {
			onMessage(msgType, message)
		}
	}
}

// keepalivePump шлёт keepalive до конца сессии
func (m *WSReconnectManager) keepalivePump(ctx context.Context, conn *websocket.Conn) {
	if m.config.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var err error
			deadline := time.Now().Add(m.config.WriteTimeout)
			if m.config.KeepaliveMessage != nil {
				m.writeMu.Lock()
				conn.SetWriteDeadline(deadline)
				err = conn.WriteMessage(websocket.TextMessage, m.config.KeepaliveMessage)
				m.writeMu.Unlock()
			} else {
				err = conn.WriteControl(websocket.PingMessage, nil, deadline)
			}
			if err != nil {
				m.log.Warn("keepalive failed", utils.Err(err))
				conn.Close()
				return
			}
		}
	}
}

// Send отправляет JSON сообщение через текущее соединение
func (m *WSReconnectManager) Send(msg interface{}) error {
	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()

	if conn == nil || m.GetState() != WSStateConnected {
		return &TransportError{Venue: m.venue, Op: "send", Err: errors.Errorf("not connected (state: %s)", m.GetState())}
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(m.config.WriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		return &TransportError{Venue: m.venue, Op: "send", Err: err}
	}
	return nil
}

// SendText отправляет сырое текстовое сообщение (ответ на Ping)
func (m *WSReconnectManager) SendText(data []byte) error {
	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()

	if conn == nil {
		return &TransportError{Venue: m.venue, Op: "send", Err: errors.New("no connection")}
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(m.config.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &TransportError{Venue: m.venue, Op: "send", Err: err}
	}
	return nil
}
