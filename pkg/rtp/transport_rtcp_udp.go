package rtp

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// UDPControlTransport доставляет управляющие отчеты сессии (RTCP) по
// отдельному UDP-порту. По соглашению RTP использует четный порт, а
// управляющий канал - следующий нечетный.
//
// Реализует интерфейс rtcp.Transport: Receive возвращает (nil, nil, nil)
// по истечении дедлайна, что служит сигналом таймера отчетов.
type UDPControlTransport struct {
	conn       *net.UDPConn
	remoteAddr atomic.Pointer[net.UDPAddr]
	closed     int32

	learnRemote bool
}

// NewUDPControlTransport создает управляющий UDP-транспорт
func NewUDPControlTransport(config TransportConfig) (*UDPControlTransport, error) {
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
		return nil, fmt.Errorf("не удалось создать управляющий UDP сокет: %w", err)
	}

	if config.BufferSize > 0 {
		_ = conn.SetReadBuffer(config.BufferSize)
		_ = conn.SetWriteBuffer(config.BufferSize)
	}

	t := &UDPControlTransport{
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

// Send отправляет сериализованный составной пакет удаленной стороне
func (t *UDPControlTransport) Send(data []byte) error {
	if atomic.LoadInt32(&t.closed) == 1 {
		return ErrTransportClosed
	}

	raddr := t.remoteAddr.Load()
	if raddr == nil {
		return ErrNoRemoteAddr
	}

	if _, err := t.conn.WriteToUDP(data, raddr); err != nil {
		return classifyNetworkError("send rtcp", err)
	}
	return nil
}

// Receive принимает датаграмму с управляющим пакетом.
// Блокируется до получения данных, истечения дедлайна, отмены контекста
// или закрытия транспорта. По истечении дедлайна возвращает (nil, nil, nil).
func (t *UDPControlTransport) Receive(ctx context.Context, deadline time.Time) ([]byte, net.Addr, error) {
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

		// Читаем короткими интервалами до дедлайна, чтобы реагировать
		// на отмену контекста в промежутках.
		readDeadline := time.Now().Add(defaultReadTimeout)
		expired := false
		if !readDeadline.Before(deadline) {
			readDeadline = deadline
			expired = true
		}
		if err := t.conn.SetReadDeadline(readDeadline); err != nil {
			return nil, nil, classifyNetworkError("set deadline", err)
		}

		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			cls := classifyNetworkError("receive rtcp", err)
			switch {
			case cls.Timeout() && expired:
				return nil, nil, nil
			case cls.Timeout():
				continue
			case cls.Kind == NetworkErrorConnRefused:
				continue
			default:
				return nil, nil, cls
			}
		}

		if t.learnRemote {
			t.remoteAddr.Store(addr)
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		return data, addr, nil
	}
}

// LocalAddr возвращает локальный адрес транспорта
func (t *UDPControlTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// SetRemoteAddr явно задает удаленный адрес управляющего канала
func (t *UDPControlTransport) SetRemoteAddr(addr string) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("не удалось разрешить адрес %s: %w", addr, err)
	}
	t.remoteAddr.Store(raddr)
	return nil
}

// Close закрывает транспорт
func (t *UDPControlTransport) Close() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return nil
	}
	return t.conn.Close()
}
