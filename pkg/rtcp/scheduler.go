// scheduler.go - адаптивный расчет интервала RTCP согласно RFC 3550
//
// Реализует reconsideration алгоритм (RFC 3550 Section 6.2 и Appendix A.7):
// интервал между отчетами масштабируется от числа участников и среднего
// размера пакета так, чтобы суммарный RTCP трафик всех участников
// оставался в пределах целевой полосы.
//
// Планировщик - чистая функция состояния сессии: не обращается к часам,
// сокетам и генератору случайных чисел. Это ключевое свойство дизайна,
// обеспечивающее детерминированную тестируемость.
package rtcp

import "time"

const (
	// Минимальный интервал между отчетами согласно RFC 3550 Section 6.2
	minReportInterval = 5 * time.Second

	// Доля RTCP полосы, зарезервированная за отправителями, когда их
	// меньше четверти участников (RFC 3550 Section 6.2)
	senderBandwidthFraction = 0.25

	// Компенсация того, что детерминированный таймер срабатывает
	// в среднем раньше рандомизированного: e - 1.5 (RFC 3550 A.7)
	timerCompensation = 2.71828 - 1.5

	// Средний размер RTCP пакета до первой отправки (октеты)
	defaultAvgPacketSize = 200
)

// SchedulerState входные данные планировщика: снимок состояния сессии
// на момент пересчета. Все поля заполняет сессия под своим мьютексом.
type SchedulerState struct {
	Bandwidth     float64   // Целевая RTCP полоса, октеты в секунду
	Members       int       // Текущая оценка числа участников
	Senders       int       // Текущая оценка числа отправителей
	AvgPacketSize float64   // Средний размер составного RTCP пакета, октеты
	WeSent        bool      // Отправляли ли мы данные с предпоследнего отчета
	Initial       bool      // Еще не отправлен ни один RTCP пакет
	Now           time.Time // Текущее время (tc)
}

// ScheduleResult результат пересчета: дедлайн следующей передачи
// и обновленная оценка pmembers.
type ScheduleResult struct {
	NextDeadline time.Time // tn - время следующей запланированной передачи
	PMembers     int       // Оценка участников на момент пересчета tn
}

// ComputeInterval вычисляет детерминированный интервал до следующего
// отчета согласно RFC 3550 Appendix A.7. Отправители и получатели
// взвешиваются раздельно: когда отправителей меньше четверти участников,
// им достается 25% полосы, чтобы меньшинство отправителей не вытесняло
// отчеты получателей.
func ComputeInterval(state SchedulerState) time.Duration {
	bandwidth := state.Bandwidth
	if bandwidth <= 0 {
		bandwidth = 1
	}

	avgSize := state.AvgPacketSize
	if avgSize <= 0 {
		avgSize = defaultAvgPacketSize
	}

	members := state.Members
	if members < 1 {
		members = 1
	}

	n := float64(members)
	if state.Senders > 0 && float64(state.Senders) < float64(members)*senderBandwidthFraction {
		if state.WeSent {
			bandwidth *= senderBandwidthFraction
			n = float64(state.Senders)
		} else {
			bandwidth *= 1 - senderBandwidthFraction
			n -= float64(state.Senders)
		}
	}

	t := avgSize * n / bandwidth
	if t < minReportInterval.Seconds() {
		t = minReportInterval.Seconds()
	}

	// Первый отчет отправляется раньше, чтобы новые участники
	// быстрее анонсировали себя (RFC 3550 Section 6.2)
	if state.Initial {
		t /= 2
	}

	t /= timerCompensation

	return time.Duration(t * float64(time.Second))
}

// Schedule вычисляет время следующей передачи и синхронизирует pmembers
// с текущей оценкой members. Вызывается сессией при каждой передаче
// отчета и при изменении состава участников.
func Schedule(state SchedulerState) ScheduleResult {
	return ScheduleResult{
		NextDeadline: state.Now.Add(ComputeInterval(state)),
		PMembers:     state.Members,
	}
}

// Reconsider пересчитывает дедлайн при изменении оценки участников между
// передачами (reverse reconsideration, RFC 3550 Section 6.3.4): уже
// запланированное время tn масштабируется отношением members/pmembers.
func Reconsider(tn, tc time.Time, members, pmembers int) time.Time {
	if pmembers <= 0 || members == pmembers {
		return tn
	}

	remaining := tn.Sub(tc)
	scaled := time.Duration(float64(remaining) * float64(members) / float64(pmembers))

	return tc.Add(scaled)
}
