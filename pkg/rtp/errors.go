package rtp

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Ошибки транспортного уровня
var (
	// ErrTransportClosed - транспорт закрыт
	ErrTransportClosed = errors.New("транспорт закрыт")
	// ErrSessionClosed - сессия закрыта
	ErrSessionClosed = errors.New("RTP сессия закрыта")
	// ErrNoRemoteAddr - не задан удаленный адрес
	ErrNoRemoteAddr = errors.New("удаленный адрес не задан")
	// ErrPacketTooLarge - пакет превышает максимальный размер датаграммы
	ErrPacketTooLarge = errors.New("пакет превышает максимальный размер")
	// ErrInvalidPacket - входящие данные не являются корректным RTP-пакетом
	ErrInvalidPacket = errors.New("некорректный RTP пакет")
)

// NetworkErrorKind классифицирует сетевую ошибку для диагностики
type NetworkErrorKind int

const (
	// NetworkErrorUnknown - неклассифицированная ошибка
	NetworkErrorUnknown NetworkErrorKind = iota
	// NetworkErrorTimeout - истек таймаут операции
	NetworkErrorTimeout
	// NetworkErrorConnRefused - удаленная сторона отвергла датаграмму (ICMP)
	NetworkErrorConnRefused
	// NetworkErrorClosed - сокет закрыт во время операции
	NetworkErrorClosed
	// NetworkErrorUnreachable - сеть или хост недостижимы
	NetworkErrorUnreachable
)

// ClassifiedError - сетевая ошибка с определенной категорией
type ClassifiedError struct {
	Kind NetworkErrorKind
	Op   string
	Err  error
}

// Error реализует интерфейс error
func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("сетевая ошибка (%s): %v", e.Op, e.Err)
}

// Unwrap возвращает исходную ошибку
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Timeout сообщает, является ли ошибка таймаутом
func (e *ClassifiedError) Timeout() bool {
	return e.Kind == NetworkErrorTimeout
}

// classifyNetworkError определяет категорию сетевой ошибки.
// Категория позволяет вызывающему коду отличить временные сбои
// (таймаут, ICMP refused) от фатальных (сокет закрыт).
func classifyNetworkError(op string, err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	kind := NetworkErrorUnknown

	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = NetworkErrorTimeout
	case errors.Is(err, net.ErrClosed):
		kind = NetworkErrorClosed
	default:
		msg := err.Error()
		switch {
		case strings.Contains(msg, "connection refused"):
			kind = NetworkErrorConnRefused
		case strings.Contains(msg, "unreachable"):
			kind = NetworkErrorUnreachable
		case strings.Contains(msg, "use of closed"):
			kind = NetworkErrorClosed
		}
	}

	return &ClassifiedError{Kind: kind, Op: op, Err: err}
}
