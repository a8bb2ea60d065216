package exchange

import (
	"context"
	"sync"
)

// Subscription отменяемая подписка на поток значений.
//
// Канал C не закрывается при обрывах связи, только после Close
// (или отмены ctx) и завершения всех горутин адаптера.
// При переполнении буфера самое старое значение вытесняется:
// потребителю всегда важнее свежий снимок.
type Subscription[T any] struct {
	C <-chan T

	ch     chan T
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
}

func newSubscription[T any](parent context.Context, buffer int) (*Subscription[T], context.Context) {
	if buffer <= 0 {
		buffer = 1
	}
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan T, buffer)
	return &Subscription[T]{
		C:      ch,
		ch:     ch,
		cancel: cancel,
		done:   make(chan struct{}),
	}, ctx
}

// publish неблокирующая отправка с вытеснением старейшего
func (s *Subscription[T]) publish(v T) (dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		select {
		case s.ch <- v:
			return dropped
		default:
		}
		select {
		case <-s.ch:
			dropped = true
		default:
		}
	}
}

// finish вызывается адаптером после остановки всех рабочих горутин
func (s *Subscription[T]) finish() {
	s.once.Do(func() {
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
		close(s.done)
	})
}

// Close останавливает подписку и ждёт завершения горутин адаптера
func (s *Subscription[T]) Close() {
	s.cancel()
	<-s.done
}

// Done закрывается после полной остановки
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}
