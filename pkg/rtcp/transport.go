package rtcp

import (
	"context"
	"net"
	"time"
)

// Transport определяет транспортный примитив RTCP сессии: отправка и
// прием сырых буферов, привязанных к одному направлению и одному
// локальному порту. Реализации предоставляет пакет rtp
// (UDP с выделенным RTCP портом или мультиплексирование).
//
// Runner сессии блокируется только в Receive: дедлайн равен времени
// следующей запланированной передачи, поэтому по его истечении Receive
// обязан вернуть (nil, nil, nil) - это сигнал таймера, а не ошибка.
type Transport interface {
	// Send отправляет буфер всем получателям назначения
	Send(data []byte) error

	// Receive ждет входящий буфер до наступления deadline.
	// Возвращает (nil, nil, nil) по истечении дедлайна без данных.
	Receive(ctx context.Context, deadline time.Time) ([]byte, net.Addr, error)

	// LocalAddr возвращает локальный адрес транспорта
	LocalAddr() net.Addr

	// Close закрывает транспорт
	Close() error
}
