// metrics.go - Prometheus метрики RTCP движка
//
// Экспортирует счетчики контрольного трафика для внешнего мониторинга:
// отправленные отчеты, принятые пакеты по типам, отброшенные некорректные
// буферы, текущую оценку числа участников.
//
// Метрики регистрируются в глобальном реестре один раз на процесс
// и разделяются всеми сессиями через label cname.
package rtcp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricReportsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtp",
		Subsystem: "rtcp",
		Name:      "reports_sent_total",
		Help:      "Total number of RTCP reports transmitted",
	}, []string{"cname", "kind"})

	metricPacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtp",
		Subsystem: "rtcp",
		Name:      "packets_received_total",
		Help:      "Total number of RTCP packets received by kind",
	}, []string{"cname", "kind"})

	metricInvalidPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtp",
		Subsystem: "rtcp",
		Name:      "invalid_packets_total",
		Help:      "Total number of malformed RTCP buffers discarded",
	}, []string{"cname"})

	metricSendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtp",
		Subsystem: "rtcp",
		Name:      "send_errors_total",
		Help:      "Total number of failed RTCP transmissions",
	}, []string{"cname"})

	metricMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rtp",
		Subsystem: "rtcp",
		Name:      "members",
		Help:      "Current session membership estimate",
	}, []string{"cname"})

	metricReportInterval = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rtp",
		Subsystem: "rtcp",
		Name:      "report_interval_seconds",
		Help:      "Computed adaptive report intervals",
		Buckets:   []float64{1, 2.5, 5, 7.5, 10, 15, 30, 60},
	}, []string{"cname"})
)

// packetKindLabel возвращает label значение для типа пакета
func packetKindLabel(packetType uint8) string {
	switch packetType {
	case TypeSR:
		return "sender_report"
	case TypeRR:
		return "receiver_report"
	case TypeSDES:
		return "sdes"
	case TypeBYE:
		return "bye"
	case TypeAPP:
		return "app"
	default:
		return "unknown"
	}
}
