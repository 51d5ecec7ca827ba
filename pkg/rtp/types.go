// Package rtp реализует транспортный уровень медиапотока: доставку
// RTP-пакетов по UDP и DTLS, отдельный управляющий транспорт для
// служебных отчетов и сессию отправки/приема с монотонной нумерацией.
package rtp

import (
	"time"
)

// Direction определяет направление медиапотока.
type Direction int

const (
	// DirectionSendRecv - отправка и прием
	DirectionSendRecv Direction = iota
	// DirectionSendOnly - только отправка
	DirectionSendOnly
	// DirectionRecvOnly - только прием
	DirectionRecvOnly
	// DirectionInactive - поток неактивен
	DirectionInactive
)

// String возвращает строковое представление направления
func (d Direction) String() string {
	switch d {
	case DirectionSendRecv:
		return "sendrecv"
	case DirectionSendOnly:
		return "sendonly"
	case DirectionRecvOnly:
		return "recvonly"
	case DirectionInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// PayloadType описывает тип полезной нагрузки RTP
type PayloadType uint8

// Стандартные типы полезной нагрузки для аудио
const (
	PayloadTypePCMU PayloadType = 0  // G.711 μ-law
	PayloadTypeGSM  PayloadType = 3  // GSM 06.10
	PayloadTypeG722 PayloadType = 9  // G.722
	PayloadTypePCMA PayloadType = 8  // G.711 A-law
	PayloadTypeG729 PayloadType = 18 // G.729
)

// ClockRate возвращает частоту дискретизации для типа нагрузки
func (pt PayloadType) ClockRate() uint32 {
	switch pt {
	case PayloadTypePCMU, PayloadTypePCMA, PayloadTypeGSM, PayloadTypeG729:
		return 8000
	case PayloadTypeG722:
		// G.722: RTP clock исторически 8000, несмотря на 16 кГц дискретизацию
		return 8000
	default:
		return 8000
	}
}

const (
	// defaultReadTimeout - таймаут чтения из сокета по умолчанию
	defaultReadTimeout = 500 * time.Millisecond

	// maxPacketSize - максимальный размер UDP-датаграммы с RTP-пакетом
	maxPacketSize = 1500
)
