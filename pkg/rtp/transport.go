package rtp

import (
	"context"
	"net"

	pionrtp "github.com/pion/rtp"
)

// Transport определяет интерфейс доставки RTP-пакетов.
// Реализации: UDPTransport для открытого трафика, DTLSTransport
// для шифрованного.
type Transport interface {
	// Send отправляет RTP-пакет удаленной стороне
	Send(packet *pionrtp.Packet) error

	// Receive принимает RTP-пакет. Блокируется до получения пакета,
	// отмены контекста или закрытия транспорта.
	Receive(ctx context.Context) (*pionrtp.Packet, net.Addr, error)

	// LocalAddr возвращает локальный адрес транспорта
	LocalAddr() net.Addr

	// RemoteAddr возвращает адрес удаленной стороны (nil, если не задан)
	RemoteAddr() net.Addr

	// Close закрывает транспорт и освобождает ресурсы
	Close() error
}

// TransportConfig - конфигурация UDP-транспорта
type TransportConfig struct {
	// LocalAddr - локальный адрес для привязки ("host:port", ":0" для эфемерного)
	LocalAddr string

	// RemoteAddr - адрес удаленной стороны (опционально, учится из входящих)
	RemoteAddr string

	// BufferSize - размер буферов сокета в байтах (0 = системный по умолчанию)
	BufferSize int

	// DSCP - значение DSCP для исходящих пакетов (0 = не устанавливать).
	// Для голосового трафика обычно используется EF (46).
	DSCP int
}
