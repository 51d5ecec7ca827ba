// Package stream связывает транспортный уровень и контрольную сессию
// отчетов в единый медиапоток: отправка и прием кадров, хуки приема,
// SDP-описание и корректное завершение с прощальным пакетом.
package stream

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	pionrtp "github.com/pion/rtp"

	"github.com/arzzra/rtpstack/pkg/rtcp"
	"github.com/arzzra/rtpstack/pkg/rtp"
)

const (
	// defaultPtime - длительность кадра по умолчанию
	defaultPtime = 20 * time.Millisecond

	// recvQueueSize - емкость очереди принятых кадров.
	// При переполнении самый старый кадр вытесняется.
	recvQueueSize = 128

	// portPairAttempts - число попыток подобрать пару портов RTP/RTCP
	portPairAttempts = 10
)

// Frame - принятый медиакадр
type Frame struct {
	Payload        []byte
	Timestamp      uint32
	SequenceNumber uint16
	SSRC           uint32
}

// FrameHook вызывается для каждого принятого кадра вместо очереди PullFrame
type FrameHook func(frame *Frame)

// Config - конфигурация медиапотока
type Config struct {
	// LocalAddr - локальный адрес RTP ("host:port", порт 0 = подобрать пару)
	LocalAddr string

	// RemoteAddr - адрес RTP удаленной стороны (пусто = symmetric RTP)
	RemoteAddr string

	// ControlRemoteAddr - адрес управляющего канала удаленной стороны
	// (пусто = RTP порт + 1)
	ControlRemoteAddr string

	// CNAME - каноническое имя участника, обязательно
	CNAME string

	// PayloadType - тип полезной нагрузки исходящего потока
	PayloadType rtp.PayloadType

	// Ptime - длительность кадра (по умолчанию 20 мс)
	Ptime time.Duration

	// Direction - направление потока
	Direction rtp.Direction

	// SSRC - идентификатор источника (0 = случайный)
	SSRC uint32

	// Bandwidth - целевая полоса отчетов, октеты/сек (0 = по умолчанию)
	Bandwidth float64

	// DSCP - маркировка QoS для RTP-пакетов (0 = не устанавливать)
	DSCP int
}

// MediaStream - двунаправленный медиапоток с контрольной сессией отчетов
type MediaStream struct {
	config Config

	rtpTransport  *rtp.UDPTransport
	ctrlTransport *rtp.UDPControlTransport

	rtpSession  *rtp.Session
	ctrlSession *rtcp.Session

	samplesPerFrame uint32

	recvQueue chan *Frame

	hookMu sync.RWMutex
	hook   FrameHook

	directionMu sync.RWMutex
	direction   rtp.Direction

	started int32
	closed  int32
}

// New создает медиапоток. Сетевые ресурсы выделяются в Start.
func New(config Config) (*MediaStream, error) {
	if config.CNAME == "" {
		return nil, fmt.Errorf("%w: CNAME обязателен", rtcp.ErrInvalidValue)
	}
	if config.Ptime < 0 {
		return nil, fmt.Errorf("%w: отрицательный ptime", rtcp.ErrInvalidValue)
	}
	if config.Bandwidth < 0 {
		return nil, fmt.Errorf("%w: отрицательная полоса отчетов", rtcp.ErrInvalidValue)
	}

	ptime := config.Ptime
	if ptime == 0 {
		ptime = defaultPtime
	}
	clockRate := config.PayloadType.ClockRate()
	samples := uint32(uint64(clockRate) * uint64(ptime) / uint64(time.Second))

	return &MediaStream{
		config:          config,
		samplesPerFrame: samples,
		recvQueue:       make(chan *Frame, recvQueueSize),
		direction:       config.Direction,
	}, nil
}

// Start выделяет пару портов, создает транспорты и запускает обе сессии:
// медиа и контрольную.
func (m *MediaStream) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&m.started, 0, 1) {
		return fmt.Errorf("медиапоток уже запущен")
	}

	if err := m.allocateTransports(); err != nil {
		atomic.StoreInt32(&m.started, 0)
		return err
	}

	// Контрольная сессия создается первой: RTP-сессия ссылается на нее
	// как на приемник статистики, а она читает RTP-время через замыкание.
	ctrlSession, err := rtcp.NewSession(rtcp.Config{
		CNAME:     m.config.CNAME,
		SSRC:      m.ssrcOrRandom(),
		Receiver:  m.config.Direction == rtp.DirectionRecvOnly,
		Bandwidth: m.config.Bandwidth,
		Transport: m.ctrlTransport,
		RTPClock: func() uint32 {
			if s := m.rtpSession; s != nil {
				return s.Timestamp()
			}
			return 0
		},
	})
	if err != nil {
		m.closeTransports()
		atomic.StoreInt32(&m.started, 0)
		return fmt.Errorf("не удалось создать контрольную сессию: %w", err)
	}
	m.ctrlSession = ctrlSession

	rtpSession, err := rtp.NewSession(rtp.SessionConfig{
		PayloadType: m.config.PayloadType,
		SSRC:        ctrlSession.SSRC(),
		Transport:   m.rtpTransport,
		Stats:       ctrlSession,
		OnPacket:    m.onRTPPacket,
	})
	if err != nil {
		m.closeTransports()
		atomic.StoreInt32(&m.started, 0)
		return fmt.Errorf("не удалось создать RTP сессию: %w", err)
	}
	m.rtpSession = rtpSession

	if err := rtpSession.Start(ctx); err != nil {
		m.closeTransports()
		atomic.StoreInt32(&m.started, 0)
		return err
	}
	if err := ctrlSession.Start(); err != nil {
		_ = rtpSession.Stop()
		m.closeTransports()
		atomic.StoreInt32(&m.started, 0)
		return err
	}

	slog.Info("медиапоток запущен",
		slog.String("cname", m.config.CNAME),
		slog.String("rtp_addr", m.rtpTransport.LocalAddr().String()),
		slog.String("rtcp_addr", m.ctrlTransport.LocalAddr().String()))
	return nil
}

// allocateTransports привязывает RTP-сокет и управляющий сокет на
// соседних портах (четный/нечетный по соглашению RFC 3550).
func (m *MediaStream) allocateTransports() error {
	localAddr := m.config.LocalAddr
	if localAddr == "" {
		localAddr = "0.0.0.0:0"
	}
	host, port, err := splitAddr(localAddr)
	if err != nil {
		return fmt.Errorf("%w: некорректный локальный адрес %q", rtcp.ErrInvalidValue, m.config.LocalAddr)
	}

	ctrlRemote := m.config.ControlRemoteAddr
	if ctrlRemote == "" && m.config.RemoteAddr != "" {
		rhost, rport, rerr := splitAddr(m.config.RemoteAddr)
		if rerr != nil {
			return fmt.Errorf("%w: некорректный удаленный адрес %q", rtcp.ErrInvalidValue, m.config.RemoteAddr)
		}
		ctrlRemote = net.JoinHostPort(rhost, fmt.Sprintf("%d", rport+1))
	}

	var lastErr error
	attempts := 1
	if port == 0 {
		attempts = portPairAttempts
	}

	for i := 0; i < attempts; i++ {
		rtpTransport, err := rtp.NewUDPTransport(rtp.TransportConfig{
			LocalAddr:  net.JoinHostPort(host, fmt.Sprintf("%d", port)),
			RemoteAddr: m.config.RemoteAddr,
			DSCP:       m.config.DSCP,
		})
		if err != nil {
			lastErr = err
			continue
		}

		_, boundPort, _ := splitAddr(rtpTransport.LocalAddr().String())
		ctrlTransport, err := rtp.NewUDPControlTransport(rtp.TransportConfig{
			LocalAddr:  net.JoinHostPort(host, fmt.Sprintf("%d", boundPort+1)),
			RemoteAddr: ctrlRemote,
		})
		if err != nil {
			_ = rtpTransport.Close()
			lastErr = err
			continue
		}

		m.rtpTransport = rtpTransport
		m.ctrlTransport = ctrlTransport
		return nil
	}

	return fmt.Errorf("не удалось выделить пару портов RTP/RTCP: %w", lastErr)
}

func (m *MediaStream) closeTransports() {
	if m.rtpTransport != nil {
		_ = m.rtpTransport.Close()
	}
	if m.ctrlTransport != nil {
		_ = m.ctrlTransport.Close()
	}
}

func (m *MediaStream) ssrcOrRandom() uint32 {
	if m.config.SSRC != 0 {
		return m.config.SSRC
	}
	// ненулевой случайный SSRC
	for {
		var buf [4]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return uint32(time.Now().UnixNano()) | 1
		}
		if ssrc := binary.BigEndian.Uint32(buf[:]); ssrc != 0 {
			return ssrc
		}
	}
}

// PushFrame отправляет один кадр полезной нагрузки
func (m *MediaStream) PushFrame(payload []byte) error {
	if atomic.LoadInt32(&m.closed) == 1 {
		return rtcp.ErrSessionNotRunning
	}
	if atomic.LoadInt32(&m.started) == 0 {
		return rtcp.ErrSessionNotRunning
	}

	m.directionMu.RLock()
	direction := m.direction
	m.directionMu.RUnlock()
	if direction == rtp.DirectionRecvOnly || direction == rtp.DirectionInactive {
		return fmt.Errorf("%w: отправка запрещена направлением %s", rtcp.ErrInvalidValue, direction)
	}

	return m.rtpSession.SendFrame(payload, m.samplesPerFrame)
}

// PullFrame возвращает следующий принятый кадр из очереди.
// Блокируется до получения кадра или отмены контекста.
// Если установлен хук приема, очередь не пополняется.
func (m *MediaStream) PullFrame(ctx context.Context) (*Frame, error) {
	if atomic.LoadInt32(&m.closed) == 1 {
		// отдаем остаток очереди, затем сообщаем о завершении
		select {
		case frame := <-m.recvQueue:
			return frame, nil
		default:
			return nil, rtcp.ErrSessionNotRunning
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame := <-m.recvQueue:
		return frame, nil
	}
}

// OnFrame устанавливает хук приема. Кадры, принятые после установки,
// доставляются в хук вместо очереди PullFrame. Передача nil снимает хук.
func (m *MediaStream) OnFrame(hook FrameHook) {
	m.hookMu.Lock()
	m.hook = hook
	m.hookMu.Unlock()
}

// SetDirection меняет направление потока на лету
func (m *MediaStream) SetDirection(direction rtp.Direction) {
	m.directionMu.Lock()
	m.direction = direction
	m.directionMu.Unlock()
}

// Direction возвращает текущее направление потока
func (m *MediaStream) Direction() rtp.Direction {
	m.directionMu.RLock()
	defer m.directionMu.RUnlock()
	return m.direction
}

// SetRemoteAddr применяет адреса удаленной стороны, например из SDP
// ответа. Пустой ctrlAddr означает RTP порт + 1.
func (m *MediaStream) SetRemoteAddr(rtpAddr, ctrlAddr string) error {
	if err := m.rtpTransport.SetRemoteAddr(rtpAddr); err != nil {
		return fmt.Errorf("%w: %v", rtcp.ErrInvalidValue, err)
	}
	if ctrlAddr == "" {
		host, port, err := splitAddr(rtpAddr)
		if err != nil {
			return fmt.Errorf("%w: %v", rtcp.ErrInvalidValue, err)
		}
		ctrlAddr = net.JoinHostPort(host, fmt.Sprintf("%d", port+1))
	}
	if err := m.ctrlTransport.SetRemoteAddr(ctrlAddr); err != nil {
		return fmt.Errorf("%w: %v", rtcp.ErrInvalidValue, err)
	}
	return nil
}

// ControlSession возвращает контрольную сессию отчетов
func (m *MediaStream) ControlSession() *rtcp.Session {
	return m.ctrlSession
}

// Statistics возвращает таблицу статистики потока
func (m *MediaStream) Statistics() *rtcp.StatisticsTable {
	return m.ctrlSession.Statistics()
}

// LocalRTPAddr возвращает локальный адрес RTP-сокета
func (m *MediaStream) LocalRTPAddr() net.Addr {
	return m.rtpTransport.LocalAddr()
}

// LocalControlAddr возвращает локальный адрес управляющего сокета
func (m *MediaStream) LocalControlAddr() net.Addr {
	return m.ctrlTransport.LocalAddr()
}

// onRTPPacket доставляет принятый пакет в хук либо в очередь.
// При переполнении очереди вытесняется самый старый кадр.
func (m *MediaStream) onRTPPacket(packet *pionrtp.Packet, _ net.Addr) {
	m.directionMu.RLock()
	direction := m.direction
	m.directionMu.RUnlock()
	if direction == rtp.DirectionSendOnly || direction == rtp.DirectionInactive {
		return
	}

	frame := &Frame{
		Payload:        packet.Payload,
		Timestamp:      packet.Timestamp,
		SequenceNumber: packet.SequenceNumber,
		SSRC:           packet.SSRC,
	}

	m.hookMu.RLock()
	hook := m.hook
	m.hookMu.RUnlock()
	if hook != nil {
		hook(frame)
		return
	}

	for {
		select {
		case m.recvQueue <- frame:
			return
		default:
			select {
			case <-m.recvQueue:
			default:
			}
		}
	}
}

// Close завершает медиапоток: контрольная сессия отправляет прощальный
// пакет, затем останавливается медиасессия и закрываются транспорты.
func (m *MediaStream) Close() error {
	if !atomic.CompareAndSwapInt32(&m.closed, 0, 1) {
		return nil
	}
	if atomic.LoadInt32(&m.started) == 0 {
		return nil
	}

	var firstErr error
	if err := m.ctrlSession.Terminate(); err != nil {
		slog.Warn("ошибка завершения контрольной сессии", slog.Any("error", err))
		firstErr = err
	}
	if err := m.rtpSession.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := m.ctrlTransport.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	slog.Info("медиапоток завершен", slog.String("cname", m.config.CNAME))
	return firstErr
}

// splitAddr разбирает "host:port" на хост и числовой порт
func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	if host == "" {
		host = "0.0.0.0"
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return "", 0, err
	}
	return host, port, nil
}
