package rtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/pion/dtls/v2"
	pionrtp "github.com/pion/rtp"
)

// DTLSConfig - конфигурация шифрованного транспорта
type DTLSConfig struct {
	TransportConfig

	// Client - true для исходящего соединения (DTLS client), false для
	// ожидания входящего (DTLS server)
	Client bool

	// PSK - общий ключ. Если задан, используется режим PSK
	// (TLS_PSK_WITH_AES_128_CCM_8). Ключ может быть получен из
	// ZRTP-обмена или задан статически.
	PSK []byte

	// PSKIdentityHint - идентификатор ключа для режима PSK
	PSKIdentityHint []byte

	// Certificates - сертификаты для режима с сертификатами
	Certificates []tls.Certificate

	// InsecureSkipVerify отключает проверку сертификата удаленной стороны.
	// Для self-signed сертификатов медиасессий это штатный режим:
	// подлинность подтверждается отпечатком через сигнализацию.
	InsecureSkipVerify bool

	// HandshakeTimeout - таймаут DTLS handshake (по умолчанию 30 секунд)
	HandshakeTimeout time.Duration
}

// DTLSTransport доставляет RTP-пакеты по DTLS-соединению
type DTLSTransport struct {
	conn   *dtls.Conn
	closed int32
}

// NewDTLSTransport устанавливает DTLS-соединение и возвращает транспорт.
// Для клиента выполняется handshake с удаленным адресом, для сервера -
// ожидание первого входящего соединения.
func NewDTLSTransport(ctx context.Context, config DTLSConfig) (*DTLSTransport, error) {
	if config.RemoteAddr == "" && config.Client {
		return nil, ErrNoRemoteAddr
	}

	timeout := config.HandshakeTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	dtlsConfig := &dtls.Config{
		Certificates:         config.Certificates,
		InsecureSkipVerify:   config.InsecureSkipVerify,
		ExtendedMasterSecret: dtls.RequireExtendedMasterSecret,
		ConnectContextMaker: func() (context.Context, func()) {
			return context.WithTimeout(ctx, timeout)
		},
	}

	if len(config.PSK) > 0 {
		dtlsConfig.PSK = func(hint []byte) ([]byte, error) {
			return config.PSK, nil
		}
		dtlsConfig.PSKIdentityHint = config.PSKIdentityHint
		dtlsConfig.CipherSuites = []dtls.CipherSuiteID{dtls.TLS_PSK_WITH_AES_128_CCM_8}
	}

	var conn *dtls.Conn
	var err error

	if config.Client {
		raddr, rerr := net.ResolveUDPAddr("udp", config.RemoteAddr)
		if rerr != nil {
			return nil, fmt.Errorf("не удалось разрешить удаленный адрес %s: %w", config.RemoteAddr, rerr)
		}
		conn, err = dtls.Dial("udp", raddr, dtlsConfig)
	} else {
		localAddr := config.LocalAddr
		if localAddr == "" {
			localAddr = ":0"
		}
		laddr, lerr := net.ResolveUDPAddr("udp", localAddr)
		if lerr != nil {
			return nil, fmt.Errorf("не удалось разрешить локальный адрес %s: %w", localAddr, lerr)
		}
		var listener net.Listener
		listener, err = dtls.Listen("udp", laddr, dtlsConfig)
		if err == nil {
			var c net.Conn
			c, err = listener.Accept()
			_ = listener.Close()
			if err == nil {
				conn = c.(*dtls.Conn)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось установить DTLS соединение: %w", err)
	}

	return &DTLSTransport{conn: conn}, nil
}

// Send отправляет RTP-пакет по DTLS-соединению
func (t *DTLSTransport) Send(packet *pionrtp.Packet) error {
	if atomic.LoadInt32(&t.closed) == 1 {
		return ErrTransportClosed
	}

	data, err := packet.Marshal()
	if err != nil {
		return fmt.Errorf("не удалось сериализовать RTP пакет: %w", err)
	}
	if len(data) > maxPacketSize {
		return ErrPacketTooLarge
	}

	if _, err := t.conn.Write(data); err != nil {
		return classifyNetworkError("dtls send", err)
	}
	return nil
}

// Receive принимает и разбирает RTP-пакет из DTLS-соединения
func (t *DTLSTransport) Receive(ctx context.Context) (*pionrtp.Packet, net.Addr, error) {
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

		n, err := t.conn.Read(buf)
		if err != nil {
			cls := classifyNetworkError("dtls receive", err)
			if cls.Timeout() {
				continue
			}
			return nil, nil, cls
		}

		packet := &pionrtp.Packet{}
		if err := packet.Unmarshal(buf[:n]); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPacket, err)
		}
		return packet, t.conn.RemoteAddr(), nil
	}
}

// LocalAddr возвращает локальный адрес соединения
func (t *DTLSTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// RemoteAddr возвращает адрес удаленной стороны
func (t *DTLSTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// ConnectionState возвращает состояние DTLS-соединения
func (t *DTLSTransport) ConnectionState() dtls.State {
	return t.conn.ConnectionState()
}

// Close закрывает DTLS-соединение
func (t *DTLSTransport) Close() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return nil
	}
	return t.conn.Close()
}
