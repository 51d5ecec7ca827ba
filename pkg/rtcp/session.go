// session.go - RTCP контрольная сессия согласно RFC 3550
//
// Session управляет контрольным каналом одной RTP сессии: планирует
// периодические отчеты по адаптивному таймеру, ведет статистику и
// оценку состава участников, декодирует и диспетчеризует входящие
// пакеты, завершает сессию прощальным BYE.
//
// Архитектура:
//   - Один фоновый runner на сессию: попеременно ждет дедлайн таймера
//     и входящие пакеты, других точек блокировки нет
//   - Жизненный цикл created -> running -> draining -> stopped управляется
//     конечным автоматом; обратных переходов нет
//   - Отправки сериализованы одним мьютексом: отчет не может
//     перемешаться с BYE или уйти после него
package rtcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// Состояния жизненного цикла RTCP сессии
const (
	StateCreated  = "created"
	StateRunning  = "running"
	StateDraining = "draining"
	StateStopped  = "stopped"
)

// События конечного автомата жизненного цикла
const (
	eventStart = "start"
	eventDrain = "drain"
	eventStop  = "stop"
)

// Config конфигурация RTCP сессии
type Config struct {
	CNAME     string    // Каноническое имя локального участника (обязательно)
	SSRC      uint32    // Локальный SSRC (обязательно, != 0)
	Receiver  bool      // true - сторона приемника, генерируются RR вместо SR
	Bandwidth float64   // Целевая RTCP полоса, октеты в секунду
	Transport Transport // Транспорт контрольного канала (обязательно)

	// Clock источник времени, по умолчанию time.Now.
	// Подменяется в тестах для детерминированного планирования.
	Clock func() time.Time

	// RTPClock возвращает текущий RTP timestamp для Sender Report.
	// Предоставляется RTP сессией; при nil в отчет пишется 0.
	RTPClock func() uint32

	// OnPacket вызывается для каждого декодированного входящего пакета
	OnPacket func(Packet, net.Addr)
}

// Целевая RTCP полоса по умолчанию: 5% от типичной голосовой сессии
const defaultBandwidth = 400 // октеты/сек

// Session представляет RTCP контрольную сессию одного участника.
//
// Все экспортированные методы thread-safe. Мутаторы статистики
// вызываются data-plane потоками конкурентно с runner'ом.
type Session struct {
	cname      string
	ssrc       uint32
	isReceiver bool
	transport  Transport
	clock      func() time.Time
	rtpClock   func() uint32
	onPacket   func(Packet, net.Addr)

	lifecycle *fsm.FSM

	// Состояние таймера и оценки участников (RFC 3550 Section 6.3).
	// Все поля под mu.
	mu            sync.Mutex
	tp            time.Time // Время последней передачи RTCP
	tn            time.Time // Запланированное время следующей передачи
	pmembers      int       // Оценка участников на момент пересчета tn
	members       int       // Текущая оценка участников (>= 1, мы сами)
	senders       int       // Наблюдаемые удаленные отправители
	bandwidth     float64   // Целевая RTCP полоса, октеты/сек
	avgPacketSize float64   // Средний размер составного пакета
	weSent        bool      // Отправляли ли мы данные с предпоследнего отчета
	initial       bool      // Еще не отправлен ни один отчет

	// Счетчики пакетов отправителя на момент двух последних отчетов,
	// для вычисления weSent
	pktsAtPrevReport     uint64
	pktsAtPrevPrevReport uint64

	stats    *StatisticsTable
	registry *ParticipantRegistry

	// Сериализация отправок: отчеты и BYE не перемежаются
	sendMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession создает RTCP сессию в состоянии created.
// Для начала работы необходимо вызвать Start.
func NewSession(config Config) (*Session, error) {
	if config.Transport == nil {
		return nil, newError(ErrorCodeInvalidValue, "необходим Transport")
	}
	if config.CNAME == "" {
		return nil, newError(ErrorCodeInvalidValue, "CNAME обязателен")
	}
	if config.SSRC == 0 {
		return nil, newError(ErrorCodeInvalidValue, "SSRC обязателен")
	}
	if config.Bandwidth < 0 {
		return nil, newError(ErrorCodeInvalidValue,
			fmt.Sprintf("отрицательная RTCP полоса: %f", config.Bandwidth))
	}

	bandwidth := config.Bandwidth
	if bandwidth == 0 {
		bandwidth = defaultBandwidth
	}

	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}

	s := &Session{
		cname:      config.CNAME,
		ssrc:       config.SSRC,
		isReceiver: config.Receiver,
		transport:  config.Transport,
		clock:      clock,
		rtpClock:   config.RTPClock,
		onPacket:   config.OnPacket,
		members:    1, // Мы сами всегда считаемся
		pmembers:   1,
		bandwidth:  bandwidth,
		initial:    true,
		stats:      NewStatisticsTable(),
		registry:   NewParticipantRegistry(),
	}

	s.lifecycle = fsm.NewFSM(
		StateCreated,
		fsm.Events{
			{Name: eventStart, Src: []string{StateCreated}, Dst: StateRunning},
			{Name: eventDrain, Src: []string{StateRunning}, Dst: StateDraining},
			{Name: eventStop, Src: []string{StateDraining}, Dst: StateStopped},
		}, nil,
	)

	return s, nil
}

// Start запускает фоновый runner сессии.
// Повторный вызов возвращает ошибку: жизненный цикл однонаправленный.
func (s *Session) Start() error {
	if err := s.lifecycle.Event(context.Background(), eventStart); err != nil {
		return wrapError(ErrorCodeAllocation,
			fmt.Sprintf("сессия в состоянии %s", s.lifecycle.Current()), err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	// Первый отчет планируется по начальному интервалу
	now := s.clock()
	s.mu.Lock()
	result := Schedule(s.schedulerStateLocked(now))
	s.tn = result.NextDeadline
	s.pmembers = result.PMembers
	s.mu.Unlock()

	metricMembers.WithLabelValues(s.cname).Set(1)

	s.wg.Add(1)
	go s.runLoop()

	return nil
}

// Terminate завершает сессию: останавливает генерацию отчетов,
// рассылает BYE всем участникам и дожидается остановки runner'а.
// Ошибка отправки BYE возвращается вызывающему, но не препятствует
// завершению.
func (s *Session) Terminate() error {
	if err := s.lifecycle.Event(context.Background(), eventDrain); err != nil {
		return wrapError(ErrorCodeSessionNotRunning,
			fmt.Sprintf("сессия в состоянии %s", s.lifecycle.Current()), err)
	}

	// С этого момента GenerateReport отклоняется; уже начатая отправка
	// завершится до BYE благодаря sendMu
	byeErr := s.sendBye()

	s.cancel()
	s.wg.Wait()

	if err := s.lifecycle.Event(context.Background(), eventStop); err != nil {
		// Переход draining -> stopped не может быть отвергнут
		slog.Error("rtcp: некорректный переход жизненного цикла",
			"cname", s.cname, "error", err)
	}

	if byeErr != nil {
		slog.Warn("rtcp: не удалось отправить BYE",
			"cname", s.cname, "error", byeErr)
		return wrapError(ErrorCodeSendFailed, "ошибка отправки BYE", byeErr)
	}

	return nil
}

// Active возвращает true пока сессия генерирует отчеты
func (s *Session) Active() bool {
	return s.lifecycle.Is(StateRunning)
}

// Receiver возвращает true если сессия принадлежит стороне приемника
// и генерируются Receiver Reports
func (s *Session) Receiver() bool {
	return s.isReceiver
}

// SSRC возвращает локальный SSRC сессии
func (s *Session) SSRC() uint32 {
	return s.ssrc
}

// AddParticipant регистрирует нового удаленного участника сессии
// (например, по внешнему уведомлению о присоединении к группе).
// Увеличивает оценку members и пересматривает время следующего отчета.
func (s *Session) AddParticipant(addr net.Addr) error {
	if addr == nil {
		return newError(ErrorCodeInvalidValue, "адрес участника обязателен")
	}

	if !s.registry.Add(addr) {
		return nil // Уже зарегистрирован
	}

	now := s.clock()

	s.mu.Lock()
	s.members++
	s.tn = Reconsider(s.tn, now, s.members, s.pmembers)
	members := s.members
	s.mu.Unlock()

	metricMembers.WithLabelValues(s.cname).Set(float64(members))

	return nil
}

// Participants возвращает снимок списка участников
func (s *Session) Participants() []Participant {
	return s.registry.List()
}

// Members возвращает текущую оценку числа участников сессии
func (s *Session) Members() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members
}

// Statistics возвращает таблицу статистики сессии.
// Data-plane вызывает ее мутаторы по мере прохождения медиа.
func (s *Session) Statistics() *StatisticsTable {
	return s.stats
}

// === Мутаторы статистики (делегаты для data-plane) ===

// SenderIncProcessedBytes увеличивает счетчик полезных байт отправителя
func (s *Session) SenderIncProcessedBytes(n uint64) { s.stats.SenderIncProcessedBytes(n) }

// SenderIncOverheadBytes увеличивает счетчик служебных байт отправителя
func (s *Session) SenderIncOverheadBytes(n uint64) { s.stats.SenderIncOverheadBytes(n) }

// SenderIncTotalBytes увеличивает счетчик всех байт отправителя
func (s *Session) SenderIncTotalBytes(n uint64) { s.stats.SenderIncTotalBytes(n) }

// SenderIncProcessedPkts увеличивает счетчик пакетов отправителя
// и отмечает сессию как отправляющую данные
func (s *Session) SenderIncProcessedPkts(n uint64) {
	s.stats.SenderIncProcessedPkts(n)

	s.mu.Lock()
	s.weSent = true
	s.mu.Unlock()
}

// ReceiverIncProcessedBytes увеличивает счетчик полезных байт для SSRC
func (s *Session) ReceiverIncProcessedBytes(ssrc uint32, n uint64) {
	s.stats.ReceiverIncProcessedBytes(ssrc, n)
}

// ReceiverIncOverheadBytes увеличивает счетчик служебных байт для SSRC
func (s *Session) ReceiverIncOverheadBytes(ssrc uint32, n uint64) {
	s.stats.ReceiverIncOverheadBytes(ssrc, n)
}

// ReceiverIncTotalBytes увеличивает счетчик всех байт для SSRC
func (s *Session) ReceiverIncTotalBytes(ssrc uint32, n uint64) {
	s.stats.ReceiverIncTotalBytes(ssrc, n)
}

// ReceiverIncProcessedPkts увеличивает счетчик пакетов для SSRC
func (s *Session) ReceiverIncProcessedPkts(ssrc uint32, n uint64) {
	s.stats.ReceiverIncProcessedPkts(ssrc, n)
}

// ReceiverIncDroppedPkts увеличивает счетчик отброшенных пакетов для SSRC
func (s *Session) ReceiverIncDroppedPkts(ssrc uint32, n uint64) {
	s.stats.ReceiverIncDroppedPkts(ssrc, n)
}

// === Генерация отчетов ===

// GenerateReport строит и отправляет составной пакет: Sender Report
// (сторона отправителя) или Receiver Report (сторона приемника) плюс
// SDES с CNAME. Допустим только в состоянии running; внутренних
// повторов при ошибке отправки нет - следующий отчет уйдет по таймеру.
func (s *Session) GenerateReport() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if !s.lifecycle.Is(StateRunning) {
		return newError(ErrorCodeSessionNotRunning,
			fmt.Sprintf("отчет невозможен в состоянии %s", s.lifecycle.Current()))
	}

	now := s.clock()

	var report Packet
	var kind string
	if s.isReceiver {
		report = s.buildReceiverReport()
		kind = "receiver_report"
	} else {
		report = s.buildSenderReport(now)
		kind = "sender_report"
	}

	compound := &CompoundPacket{Packets: []Packet{report, s.buildSDES()}}

	data, err := compound.Marshal()
	if err != nil {
		return wrapError(ErrorCodeInvalidPacket, "ошибка кодирования отчета", err)
	}

	if err := s.transport.Send(data); err != nil {
		metricSendErrors.WithLabelValues(s.cname).Inc()
		return wrapError(ErrorCodeSendFailed, "ошибка отправки отчета", err)
	}

	s.finishTransmission(now, len(data))
	metricReportsSent.WithLabelValues(s.cname, kind).Inc()

	return nil
}

// finishTransmission обновляет состояние таймера после успешной передачи:
// tp = tc, пересчет tn, синхронизация pmembers, экспоненциальное обновление
// среднего размера пакета, сброс initial, пересчет weSent.
func (s *Session) finishTransmission(now time.Time, packetLen int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateAvgSizeLocked(packetLen)
	s.initial = false
	s.tp = now

	// weSent остается истинным пока данные отправлялись после
	// предпредыдущего отчета (RFC 3550 Section 6.3)
	currentPkts := s.stats.SenderSnapshot().ProcessedPkts
	s.weSent = currentPkts > s.pktsAtPrevPrevReport
	s.pktsAtPrevPrevReport = s.pktsAtPrevReport
	s.pktsAtPrevReport = currentPkts

	result := Schedule(s.schedulerStateLocked(now))
	s.tn = result.NextDeadline
	s.pmembers = result.PMembers

	metricReportInterval.WithLabelValues(s.cname).Observe(s.tn.Sub(now).Seconds())
}

// schedulerStateLocked собирает снимок состояния для планировщика.
// Вызывается под mu.
func (s *Session) schedulerStateLocked(now time.Time) SchedulerState {
	senders := s.senders
	if s.weSent {
		senders++
	}

	return SchedulerState{
		Bandwidth:     s.bandwidth,
		Members:       s.members,
		Senders:       senders,
		AvgPacketSize: s.avgPacketSize,
		WeSent:        s.weSent,
		Initial:       s.initial,
		Now:           now,
	}
}

// updateAvgSizeLocked обновляет средний размер составного пакета
// экспоненциальным взвешиванием 1/16 (RFC 3550 Section 6.3.3).
// Вызывается под mu для каждого отправленного и принятого пакета.
func (s *Session) updateAvgSizeLocked(packetLen int) {
	if s.avgPacketSize == 0 {
		s.avgPacketSize = float64(packetLen)
		return
	}
	s.avgPacketSize = float64(packetLen)/16 + s.avgPacketSize*15/16
}

// buildSenderReport строит Sender Report из текущей статистики
func (s *Session) buildSenderReport(now time.Time) *SenderReport {
	var rtpTime uint32
	if s.rtpClock != nil {
		rtpTime = s.rtpClock()
	}

	sender := s.stats.SenderSnapshot()

	sr := NewSenderReport(
		s.ssrc,
		NTPTimestamp(now),
		rtpTime,
		uint32(sender.ProcessedPkts),
		uint32(sender.ProcessedBytes),
	)

	s.addReceptionReports(func(rr ReceptionReport) { sr.AddReceptionReport(rr) })

	return sr
}

// buildReceiverReport строит Receiver Report из текущей статистики
func (s *Session) buildReceiverReport() *ReceiverReport {
	rr := NewReceiverReport(s.ssrc)

	s.addReceptionReports(func(report ReceptionReport) { rr.AddReceptionReport(report) })

	return rr
}

// addReceptionReports добавляет по одному reception report блоку
// на каждого наблюдаемого удаленного отправителя
func (s *Session) addReceptionReports(add func(ReceptionReport)) {
	for ssrc, stats := range s.stats.ReceiverSnapshot() {
		var fractionLost uint8
		expected := stats.ProcessedPkts + stats.DroppedPkts
		if expected > 0 {
			fraction := stats.DroppedPkts * 256 / expected
			if fraction > 255 {
				fraction = 255
			}
			fractionLost = uint8(fraction)
		}

		add(ReceptionReport{
			SSRC:           ssrc,
			FractionLost:   fractionLost,
			CumulativeLost: uint32(stats.DroppedPkts) & 0x00FFFFFF,
		})
	}
}

// buildSDES строит SDES пакет с CNAME локального участника
func (s *Session) buildSDES() *SourceDescription {
	sdes := NewSourceDescription()
	sdes.AddChunk(s.ssrc, []SDESItem{
		{Type: SDESTypeCNAME, Text: []byte(s.cname)},
	})
	return sdes
}

// sendBye отправляет прощальный BYE пакет в составе compound
// (RR + BYE согласно RFC 3550 Section 6.1)
func (s *Session) sendBye() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	compound := &CompoundPacket{Packets: []Packet{
		NewReceiverReport(s.ssrc),
		NewByePacket([]uint32{s.ssrc}, "session terminated"),
	}}

	data, err := compound.Marshal()
	if err != nil {
		return err
	}

	if err := s.transport.Send(data); err != nil {
		metricSendErrors.WithLabelValues(s.cname).Inc()
		return err
	}

	metricReportsSent.WithLabelValues(s.cname, "bye").Inc()

	return nil
}

// === Обработка входящих пакетов ===

// HandleIncomingPacket проверяет, что буфер - синтаксически корректный
// составной RTCP пакет, декодирует вложенные пакеты по порядку и
// диспетчеризует каждый соответствующему обработчику.
//
// Некорректный буфер целиком отбрасывается без частичной обработки:
// статистика и реестр участников не изменяются, сессия продолжает
// слушать. Ошибка локальна и не фатальна.
func (s *Session) HandleIncomingPacket(data []byte, addr net.Addr) error {
	if !s.lifecycle.Is(StateRunning) {
		return newError(ErrorCodeSessionNotRunning,
			fmt.Sprintf("прием невозможен в состоянии %s", s.lifecycle.Current()))
	}

	compound, err := ParseCompound(data)
	if err != nil {
		metricInvalidPackets.WithLabelValues(s.cname).Inc()
		return err
	}

	for _, packet := range compound.Packets {
		switch p := packet.(type) {
		case *SenderReport:
			s.handleSenderReport(p, addr)
		case *ReceiverReport:
			s.handleReceiverReport(p, addr)
		case *SourceDescription:
			s.handleSDES(p, addr)
		case *ByePacket:
			s.handleBye(p, addr)
		case *AppPacket:
			s.handleApp(p, addr)
		}

		metricPacketsReceived.WithLabelValues(s.cname,
			packetKindLabel(packet.Header().PacketType)).Inc()

		if s.onPacket != nil {
			s.onPacket(packet, addr)
		}
	}

	// Средний размер учитывает и принятые составные пакеты
	s.mu.Lock()
	s.updateAvgSizeLocked(len(data))
	s.mu.Unlock()

	return nil
}

// handleSenderReport обрабатывает входящий Sender Report: лениво
// создает запись статистики для нового SSRC и учитывает отправителя
// в оценке senders. Оценка members при этом не растет - участники
// добавляются только явным AddParticipant.
func (s *Session) handleSenderReport(sr *SenderReport, addr net.Addr) {
	s.stats.EnsureReceiver(sr.SSRC)

	if s.registry.ObserveSSRC(sr.SSRC, addr) {
		s.mu.Lock()
		s.senders++
		s.mu.Unlock()
	}
}

// handleReceiverReport обрабатывает входящий Receiver Report.
// Блоки о нашей собственной передаче пригодны для адаптации битрейта
// на вышележащем уровне; движок их только доставляет через OnPacket.
func (s *Session) handleReceiverReport(rr *ReceiverReport, addr net.Addr) {
	s.registry.ObserveSSRC(rr.SSRC, addr)
}

// handleSDES сохраняет каноническое имя участника
func (s *Session) handleSDES(sdes *SourceDescription, addr net.Addr) {
	for _, chunk := range sdes.Chunks {
		for _, item := range chunk.Items {
			if item.Type == SDESTypeCNAME {
				s.registry.SetCNAME(addr, string(item.Text))
			}
		}
	}
}

// handleBye фиксирует выход участника. Оценка members не уменьшается:
// индивидуального удаления участников в этом дизайне нет, состав
// убывает только через агрегатную математику reconsideration.
func (s *Session) handleBye(bye *ByePacket, addr net.Addr) {
	slog.Debug("rtcp: участник покинул сессию",
		"cname", s.cname, "sources", bye.Sources, "reason", bye.Reason)
}

// handleApp доставляет application-defined пакет приложению
func (s *Session) handleApp(app *AppPacket, addr net.Addr) {
	slog.Debug("rtcp: получен APP пакет",
		"cname", s.cname, "name", string(app.Name[:]), "subtype", app.Subtype)
}

// === Runner ===

// runLoop основной цикл фонового runner'а: ждет ближайшее из двух
// событий - дедлайн таймера отчетов или входящий пакет - и вызывает
// генерацию отчета либо диспетчеризацию. Работает до выхода сессии
// из состояния running; остановка кооперативная.
func (s *Session) runLoop() {
	defer s.wg.Done()

	slog.Debug("rtcp: runner запущен", "cname", s.cname)
	defer slog.Debug("rtcp: runner остановлен", "cname", s.cname)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		s.mu.Lock()
		deadline := s.tn
		s.mu.Unlock()

		data, addr, err := s.transport.Receive(s.ctx, deadline)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			slog.Warn("rtcp: ошибка приема", "cname", s.cname, "error", err)
			continue
		}

		if data == nil {
			// Дедлайн таймера: пора отправлять отчет
			if err := s.GenerateReport(); err != nil {
				if s.ctx.Err() != nil {
					return
				}
				// Ошибка отправки не фатальна: следующий отчет
				// уйдет по новому таймеру
				slog.Warn("rtcp: ошибка генерации отчета",
					"cname", s.cname, "error", err)
				s.rescheduleAfterFailure()
			}
			continue
		}

		if err := s.HandleIncomingPacket(data, addr); err != nil {
			slog.Debug("rtcp: отброшен некорректный пакет",
				"cname", s.cname, "error", err)
		}
	}
}

// rescheduleAfterFailure переносит tn вперед после неудачной передачи,
// чтобы runner не зациклился на истекшем дедлайне
func (s *Session) rescheduleAfterFailure() {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tn.After(now) {
		result := Schedule(s.schedulerStateLocked(now))
		s.tn = result.NextDeadline
		s.pmembers = result.PMembers
	}
}
