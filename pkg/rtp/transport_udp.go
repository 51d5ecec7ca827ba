package rtp

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	pionrtp "github.com/pion/rtp"
)

// UDPTransport доставляет RTP-пакеты по UDP.
// Удаленный адрес фиксируется конфигурацией либо учится по первому
// входящему пакету (symmetric RTP).
type UDPTransport struct {
	conn       *net.UDPConn
	remoteAddr atomic.Pointer[net.UDPAddr]
	closed     int32

	// learnRemote разрешает обновлять удаленный адрес из входящих пакетов
	learnRemote bool
}

// NewUDPTransport создает UDP-транспорт согласно конфигурации
func NewUDPTransport(config TransportConfig) (*UDPTransport, error) {
	localAddr := config.LocalAddr
	if localAddr == "" {
		localAddr = ":0"
	}

	laddr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("не удалось разрешить локальный адрес %s: %w", localAddr, err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать UDP сокет: %w", err)
	}

	if config.BufferSize > 0 {
		// ошибки установки буферов не фатальны
		_ = conn.SetReadBuffer(config.BufferSize)
		_ = conn.SetWriteBuffer(config.BufferSize)
	}

	if config.DSCP > 0 {
		if err := setDSCP(conn, config.DSCP); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("не удалось установить DSCP: %w", err)
		}
	}

	// платформенные настройки для голосового трафика, сбой не фатален
	_ = setVoiceSocketOptions(conn)

	t := &UDPTransport{
		conn:        conn,
		learnRemote: config.RemoteAddr == "",
	}

	if config.RemoteAddr != "" {
		raddr, err := net.ResolveUDPAddr("udp", config.RemoteAddr)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("не удалось разрешить удаленный адрес %s: %w", config.RemoteAddr, err)
		}
		t.remoteAddr.Store(raddr)
	}

	return t, nil
}

// Send отправляет RTP-пакет удаленной стороне
func (t *UDPTransport) Send(packet *pionrtp.Packet) error {
	if atomic.LoadInt32(&t.closed) == 1 {
		return ErrTransportClosed
	}

	raddr := t.remoteAddr.Load()
	if raddr == nil {
		return ErrNoRemoteAddr
	}

	data, err := packet.Marshal()
	if err != nil {
		return fmt.Errorf("не удалось сериализовать RTP пакет: %w", err)
	}
	if len(data) > maxPacketSize {
		return ErrPacketTooLarge
	}

	if _, err := t.conn.WriteToUDP(data, raddr); err != nil {
		return classifyNetworkError("send", err)
	}
	return nil
}

// Receive принимает и разбирает RTP-пакет.
// Читает с коротким таймаутом в цикле, чтобы реагировать на отмену контекста.
func (t *UDPTransport) Receive(ctx context.Context) (*pionrtp.Packet, net.Addr, error) {
	buf := make([]byte, maxPacketSize)

	for {
		if atomic.LoadInt32(&t.closed) == 1 {
			return nil, nil, ErrTransportClosed
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		if err := t.conn.SetReadDeadline(time.Now().Add(defaultReadTimeout)); err != nil {
			return nil, nil, classifyNetworkError("set deadline", err)
		}

		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			cls := classifyNetworkError("receive", err)
			if cls.Timeout() {
				continue
			}
			if cls.Kind == NetworkErrorConnRefused {
				// ICMP port unreachable от удаленной стороны, не фатально
				continue
			}
			return nil, nil, cls
		}

		packet := &pionrtp.Packet{}
		if err := packet.Unmarshal(buf[:n]); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPacket, err)
		}

		if t.learnRemote {
			t.remoteAddr.Store(addr)
		}
		return packet, addr, nil
	}
}

// LocalAddr возвращает локальный адрес транспорта
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// RemoteAddr возвращает текущий удаленный адрес
func (t *UDPTransport) RemoteAddr() net.Addr {
	raddr := t.remoteAddr.Load()
	if raddr == nil {
		return nil
	}
	return raddr
}

// SetRemoteAddr явно задает удаленный адрес
func (t *UDPTransport) SetRemoteAddr(addr string) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("не удалось разрешить адрес %s: %w", addr, err)
	}
	t.remoteAddr.Store(raddr)
	return nil
}

// Close закрывает транспорт
func (t *UDPTransport) Close() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return nil
	}
	return t.conn.Close()
}
