package rtp

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
)

// udpHeaderOverhead - размер заголовков IP+UDP, учитываемый в статистике
const udpHeaderOverhead = 28

// StatsSink принимает учет отправленных и принятых пакетов.
// Реализуется управляющей сессией отчетов.
type StatsSink interface {
	SenderIncProcessedBytes(n uint64)
	SenderIncOverheadBytes(n uint64)
	SenderIncTotalBytes(n uint64)
	SenderIncProcessedPkts(n uint64)

	ReceiverIncProcessedBytes(ssrc uint32, n uint64)
	ReceiverIncOverheadBytes(ssrc uint32, n uint64)
	ReceiverIncTotalBytes(ssrc uint32, n uint64)
	ReceiverIncProcessedPkts(ssrc uint32, n uint64)
	ReceiverIncDroppedPkts(ssrc uint32, n uint64)
}

// PacketHandler вызывается для каждого принятого RTP-пакета
type PacketHandler func(packet *pionrtp.Packet, addr net.Addr)

// SessionConfig - конфигурация RTP-сессии
type SessionConfig struct {
	// PayloadType - тип полезной нагрузки исходящих пакетов
	PayloadType PayloadType

	// ClockRate - частота RTP-времени (0 = по типу нагрузки)
	ClockRate uint32

	// SSRC - идентификатор источника (0 = сгенерировать случайный)
	SSRC uint32

	// Transport - транспорт доставки пакетов
	Transport Transport

	// Stats - приемник статистики (опционально)
	Stats StatsSink

	// OnPacket - обработчик входящих пакетов (опционально)
	OnPacket PacketHandler
}

// Session - RTP-сессия: нумерует и отправляет исходящие пакеты,
// принимает входящие в фоновом цикле и ведет учет для отчетов.
type Session struct {
	ssrc        uint32
	payloadType PayloadType
	clockRate   uint32

	transport Transport
	stats     StatsSink

	// sequence хранит следующий sequence number в младших 16 битах
	sequence  uint32
	timestamp uint32

	// lastSeq хранит последний принятый sequence number по SSRC
	// для подсчета потерянных пакетов
	lastSeq map[uint32]uint16
	seqMu   sync.Mutex

	handler   PacketHandler
	handlerMu sync.RWMutex

	active int32
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession создает RTP-сессию
func NewSession(config SessionConfig) (*Session, error) {
	if config.Transport == nil {
		return nil, fmt.Errorf("транспорт обязателен")
	}

	ssrc := config.SSRC
	if ssrc == 0 {
		ssrc = generateSSRC()
	}

	clockRate := config.ClockRate
	if clockRate == 0 {
		clockRate = config.PayloadType.ClockRate()
	}

	s := &Session{
		ssrc:        ssrc,
		payloadType: config.PayloadType,
		clockRate:   clockRate,
		transport:   config.Transport,
		stats:       config.Stats,
		sequence:    uint32(generateSequence()),
		timestamp:   generateSSRC(),
		lastSeq:     make(map[uint32]uint16),
		handler:     config.OnPacket,
	}
	return s, nil
}

// Start запускает фоновый цикл приема пакетов
func (s *Session) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.active, 0, 1) {
		return fmt.Errorf("RTP сессия уже запущена")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.receiveLoop()

	slog.Debug("RTP сессия запущена",
		slog.String("local_addr", s.transport.LocalAddr().String()),
		slog.Uint64("ssrc", uint64(s.ssrc)))
	return nil
}

// Stop останавливает сессию и закрывает транспорт
func (s *Session) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.active, 1, 0) {
		return nil
	}

	s.cancel()
	err := s.transport.Close()
	s.wg.Wait()
	return err
}

// Active сообщает, работает ли фоновый цикл приема
func (s *Session) Active() bool {
	return atomic.LoadInt32(&s.active) == 1
}

// SSRC возвращает идентификатор источника сессии
func (s *Session) SSRC() uint32 {
	return s.ssrc
}

// Timestamp возвращает текущее значение RTP-времени исходящего потока
func (s *Session) Timestamp() uint32 {
	return atomic.LoadUint32(&s.timestamp)
}

// SendFrame отправляет кадр полезной нагрузки как RTP-пакет.
// Sequence number увеличивается на 1, RTP-время продвигается на
// samples тиков частоты сессии.
func (s *Session) SendFrame(payload []byte, samples uint32) error {
	if atomic.LoadInt32(&s.active) == 0 {
		return ErrSessionClosed
	}

	seq := uint16(atomic.AddUint32(&s.sequence, 1))
	ts := atomic.AddUint32(&s.timestamp, samples)

	packet := &pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        2,
			PayloadType:    uint8(s.payloadType),
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           s.ssrc,
		},
		Payload: payload,
	}
	return s.sendPacket(packet)
}

// SendPacket отправляет готовый RTP-пакет без изменения его заголовка
func (s *Session) SendPacket(packet *pionrtp.Packet) error {
	if atomic.LoadInt32(&s.active) == 0 {
		return ErrSessionClosed
	}
	return s.sendPacket(packet)
}

func (s *Session) sendPacket(packet *pionrtp.Packet) error {
	if err := s.transport.Send(packet); err != nil {
		return fmt.Errorf("не удалось отправить RTP пакет: %w", err)
	}

	if s.stats != nil {
		size := uint64(packet.MarshalSize())
		s.stats.SenderIncProcessedBytes(size)
		s.stats.SenderIncOverheadBytes(udpHeaderOverhead)
		s.stats.SenderIncTotalBytes(size + udpHeaderOverhead)
		s.stats.SenderIncProcessedPkts(1)
	}
	return nil
}

// SetHandler заменяет обработчик входящих пакетов
func (s *Session) SetHandler(handler PacketHandler) {
	s.handlerMu.Lock()
	s.handler = handler
	s.handlerMu.Unlock()
}

// receiveLoop принимает входящие пакеты до остановки сессии
func (s *Session) receiveLoop() {
	defer s.wg.Done()

	for {
		packet, addr, err := s.transport.Receive(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil || atomic.LoadInt32(&s.active) == 0 {
				return
			}
			slog.Debug("ошибка приема RTP пакета", slog.Any("error", err))
			// транспорт закрыт извне, цикл завершается
			if cls, ok := err.(*ClassifiedError); ok && cls.Kind == NetworkErrorClosed {
				return
			}
			continue
		}

		s.accountReceived(packet)

		s.handlerMu.RLock()
		handler := s.handler
		s.handlerMu.RUnlock()
		if handler != nil {
			handler(packet, addr)
		}
	}
}

// accountReceived ведет учет принятого пакета и потерь по разрывам
// sequence number.
func (s *Session) accountReceived(packet *pionrtp.Packet) {
	if s.stats == nil {
		return
	}

	ssrc := packet.SSRC
	size := uint64(packet.MarshalSize())
	s.stats.ReceiverIncProcessedBytes(ssrc, size)
	s.stats.ReceiverIncOverheadBytes(ssrc, udpHeaderOverhead)
	s.stats.ReceiverIncTotalBytes(ssrc, size+udpHeaderOverhead)
	s.stats.ReceiverIncProcessedPkts(ssrc, 1)

	s.seqMu.Lock()
	if last, ok := s.lastSeq[ssrc]; ok {
		gap := packet.SequenceNumber - last
		// gap == 1 - нормальный следующий пакет; большой gap с учетом
		// переполнения uint16 трактуем как переупорядочивание, не потери
		if gap > 1 && gap < 0x8000 {
			s.stats.ReceiverIncDroppedPkts(ssrc, uint64(gap-1))
		}
	}
	s.lastSeq[ssrc] = packet.SequenceNumber
	s.seqMu.Unlock()
}

// generateSSRC возвращает криптографически случайный 32-битный идентификатор
func generateSSRC() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// крайне маловероятно; привязка к времени как запасной вариант
		return uint32(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint32(buf[:])
}

// generateSequence возвращает случайный начальный sequence number
func generateSequence() uint16 {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return uint16(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint16(buf[:])
}
