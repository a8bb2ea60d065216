package exchange

import (
	stderrors "errors"
	"fmt"

	"crossarb/internal/models"
)

// Сентинелы для errors.Is
var (
	ErrTransport = stderrors.New("transport error")
	ErrDecode    = stderrors.New("decode error")
)

// ExchangeError ошибка API биржи (ненулевой code в ответе)
type ExchangeError struct {
	Venue    models.Venue
	Code     string
	Message  string
	Original error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("[%s] error %s: %s", e.Venue, e.Code, e.Message)
}

func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// TransportError обрыв соединения, таймаут, ошибка dial/HTTP.
// Вызывает переподключение, никогда не фатальна для процесса.
type TransportError struct {
	Venue models.Venue
	Op    string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("[%s] transport %s: %v", e.Venue, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is позволяет errors.Is(err, ErrTransport)
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Temporary ошибки связи всегда повторяемы (retry.RetryIfTemporary)
func (e *TransportError) Temporary() bool { return true }

// DecodeError битое сообщение. Сообщение отбрасывается, поток продолжается.
type DecodeError struct {
	Venue  models.Venue
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] decode: %s: %v", e.Venue, e.Reason, e.Err)
	}
	return fmt.Sprintf("[%s] decode: %s", e.Venue, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func newDecodeError(venue models.Venue, reason string, err error) *DecodeError {
	return &DecodeError{Venue: venue, Reason: reason, Err: err}
}

// IsTransport ошибка связи (в том числе внутри ExchangeError)
func IsTransport(err error) bool {
	return stderrors.Is(err, ErrTransport)
}
