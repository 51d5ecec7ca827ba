// statistics.go - таблица счетчиков для RTCP отчетов
//
// Хранит счетчики локального отправителя и каждого наблюдаемого
// удаленного отправителя. Счетчики только растут; обнуление происходит
// лишь при создании таблицы. Записи принадлежат таблице целиком:
// наружу отдаются только копии-снимки, указатели не покидают таблицу.
package rtcp

import "sync"

// SourceStatistics счетчики одного источника для построения отчетов.
// Все значения монотонно возрастают.
type SourceStatistics struct {
	ProcessedBytes uint64 // Полезная нагрузка, байты
	OverheadBytes  uint64 // Заголовки RTP/UDP/IP, байты
	TotalBytes     uint64 // Полный размер пакетов, байты
	ProcessedPkts  uint64 // Успешно обработанные пакеты
	DroppedPkts    uint64 // Отброшенные пакеты
}

// StatisticsTable таблица статистики сессии: одна запись локального
// отправителя и записи удаленных отправителей по SSRC. Запись удаленного
// отправителя создается лениво при первом наблюдении SSRC.
//
// Все операции thread-safe: мутаторы вызываются из data-plane потоков,
// снимки читает runner при генерации отчетов.
type StatisticsTable struct {
	mutex sync.Mutex

	sender    SourceStatistics
	receivers map[uint32]*SourceStatistics
}

// NewStatisticsTable создает пустую таблицу с записью локального отправителя
func NewStatisticsTable() *StatisticsTable {
	return &StatisticsTable{
		receivers: make(map[uint32]*SourceStatistics),
	}
}

// checkSender гарантирует существование записи для SSRC удаленного
// отправителя. Вызывается под мьютексом.
func (st *StatisticsTable) checkSender(ssrc uint32) *SourceStatistics {
	stats, exists := st.receivers[ssrc]
	if !exists {
		stats = &SourceStatistics{}
		st.receivers[ssrc] = stats
	}
	return stats
}

// SenderIncProcessedBytes увеличивает счетчик полезных байт отправителя
func (st *StatisticsTable) SenderIncProcessedBytes(n uint64) {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	st.sender.ProcessedBytes += n
}

// SenderIncOverheadBytes увеличивает счетчик служебных байт отправителя
func (st *StatisticsTable) SenderIncOverheadBytes(n uint64) {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	st.sender.OverheadBytes += n
}

// SenderIncTotalBytes увеличивает счетчик всех байт отправителя
func (st *StatisticsTable) SenderIncTotalBytes(n uint64) {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	st.sender.TotalBytes += n
}

// SenderIncProcessedPkts увеличивает счетчик пакетов отправителя
func (st *StatisticsTable) SenderIncProcessedPkts(n uint64) {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	st.sender.ProcessedPkts += n
}

// ReceiverIncProcessedBytes увеличивает счетчик полезных байт для SSRC
func (st *StatisticsTable) ReceiverIncProcessedBytes(ssrc uint32, n uint64) {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	st.checkSender(ssrc).ProcessedBytes += n
}

// ReceiverIncOverheadBytes увеличивает счетчик служебных байт для SSRC
func (st *StatisticsTable) ReceiverIncOverheadBytes(ssrc uint32, n uint64) {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	st.checkSender(ssrc).OverheadBytes += n
}

// ReceiverIncTotalBytes увеличивает счетчик всех байт для SSRC
func (st *StatisticsTable) ReceiverIncTotalBytes(ssrc uint32, n uint64) {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	st.checkSender(ssrc).TotalBytes += n
}

// ReceiverIncProcessedPkts увеличивает счетчик пакетов для SSRC
func (st *StatisticsTable) ReceiverIncProcessedPkts(ssrc uint32, n uint64) {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	st.checkSender(ssrc).ProcessedPkts += n
}

// ReceiverIncDroppedPkts увеличивает счетчик отброшенных пакетов для SSRC
func (st *StatisticsTable) ReceiverIncDroppedPkts(ssrc uint32, n uint64) {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	st.checkSender(ssrc).DroppedPkts += n
}

// EnsureReceiver создает запись для SSRC если ее еще нет.
// Используется при получении отчета от ранее неизвестного отправителя.
func (st *StatisticsTable) EnsureReceiver(ssrc uint32) {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	st.checkSender(ssrc)
}

// SenderSnapshot возвращает копию статистики локального отправителя
func (st *StatisticsTable) SenderSnapshot() SourceStatistics {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	return st.sender
}

// ReceiverSnapshot возвращает копию статистики всех удаленных отправителей.
// Снимок внутренне согласован: берется под тем же мьютексом что и мутаторы.
func (st *StatisticsTable) ReceiverSnapshot() map[uint32]SourceStatistics {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	snapshot := make(map[uint32]SourceStatistics, len(st.receivers))
	for ssrc, stats := range st.receivers {
		snapshot[ssrc] = *stats
	}

	return snapshot
}

// ReceiverCount возвращает число наблюдаемых удаленных отправителей
func (st *StatisticsTable) ReceiverCount() int {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	return len(st.receivers)
}
