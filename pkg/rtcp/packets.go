// packets.go - кодек RTCP пакетов согласно RFC 3550 Section 6
//
// Реализует кодирование и декодирование пяти типов RTCP пакетов
// (SR, RR, SDES, BYE, APP) и составных (compound) пакетов.
// Все многобайтовые поля - в сетевом порядке байт.
//
// Кодек не содержит состояния: пакеты декодируются во временные
// объекты, обрабатываются сессией и отбрасываются.
package rtcp

import (
	"encoding/binary"
	"fmt"
	"time"
)

// RTCP Packet Type согласно RFC 3550 Section 6.1
const (
	TypeSR   uint8 = 200 // Sender Report
	TypeRR   uint8 = 201 // Receiver Report
	TypeSDES uint8 = 202 // Source Description
	TypeBYE  uint8 = 203 // Goodbye
	TypeAPP  uint8 = 204 // Application-Defined
)

// SDES Types согласно RFC 3550 Section 6.5
const (
	SDESTypeCNAME uint8 = 1 // Canonical name
	SDESTypeName  uint8 = 2 // User name
	SDESTypeEmail uint8 = 3 // Email address
	SDESTypePhone uint8 = 4 // Phone number
	SDESTypeLoc   uint8 = 5 // Geographic location
	SDESTypeTool  uint8 = 6 // Application/tool name
	SDESTypeNote  uint8 = 7 // Notice/status
	SDESTypePriv  uint8 = 8 // Private extensions
)

const (
	headerSize = 4 // Общий заголовок RTCP пакета

	srFixedSize = 28 // SR без RR блоков
	rrFixedSize = 8  // RR без RR блоков
	rrBlockSize = 24 // Один reception report блок

	// Максимальная длина reason строки в BYE пакете:
	// длина кодируется одним байтом
	MaxByeReasonLength = 255
)

// Header представляет общий заголовок RTCP пакета согласно RFC 3550 Section 6.1
type Header struct {
	Version    uint8  // Version (V): 2 bits
	Padding    bool   // Padding (P): 1 bit
	Count      uint8  // Reception report count (RC) or Source count (SC): 5 bits
	PacketType uint8  // Packet type (PT): 8 bits
	Length     uint16 // Length: 16 bits (в 32-битных словах минус 1)
}

// marshalTo записывает заголовок в первые 4 байта буфера.
// totalLen - полная длина пакета в байтах, кратная 4.
func (h *Header) marshalTo(data []byte, totalLen int) {
	b := uint8(2) << 6
	if h.Padding {
		b |= 1 << 5
	}
	data[0] = b | (h.Count & 0x1F)
	data[1] = h.PacketType
	binary.BigEndian.PutUint16(data[2:4], uint16(totalLen/4-1))
}

// unmarshalHeader разбирает общий заголовок и проверяет версию.
func unmarshalHeader(h *Header, data []byte) error {
	if len(data) < headerSize {
		return wrapError(ErrorCodeTruncatedPacket,
			fmt.Sprintf("недостаточно данных для заголовка: %d байт", len(data)), nil)
	}

	h.Version = (data[0] >> 6) & 0x03
	h.Padding = (data[0]>>5)&0x01 == 1
	h.Count = data[0] & 0x1F
	h.PacketType = data[1]
	h.Length = binary.BigEndian.Uint16(data[2:4])

	if h.Version != 2 {
		return newError(ErrorCodeInvalidPacket,
			fmt.Sprintf("неподдерживаемая версия RTCP: %d", h.Version))
	}

	return nil
}

// Packet интерфейс для всех типов RTCP пакетов
type Packet interface {
	Header() Header
	Marshal() ([]byte, error)
	Unmarshal(data []byte) error
}

// SenderReport согласно RFC 3550 Section 6.4.1
type SenderReport struct {
	Hdr              Header
	SSRC             uint32 // SSRC of sender
	NTPTimestamp     uint64 // NTP timestamp
	RTPTimestamp     uint32 // RTP timestamp
	SenderPackets    uint32 // Sender's packet count
	SenderOctets     uint32 // Sender's octet count
	ReceptionReports []ReceptionReport
}

// ReceiverReport согласно RFC 3550 Section 6.4.2
type ReceiverReport struct {
	Hdr              Header
	SSRC             uint32 // SSRC of packet sender
	ReceptionReports []ReceptionReport
}

// ReceptionReport представляет один reception report блок
type ReceptionReport struct {
	SSRC             uint32 // SSRC of source
	FractionLost     uint8  // Fraction lost (8 bits)
	CumulativeLost   uint32 // Cumulative number of packets lost (24 bits)
	HighestSeqNum    uint32 // Extended highest sequence number received
	Jitter           uint32 // Interarrival jitter
	LastSR           uint32 // Last SR timestamp
	DelaySinceLastSR uint32 // Delay since last SR
}

// SourceDescription согласно RFC 3550 Section 6.5
type SourceDescription struct {
	Hdr    Header
	Chunks []SDESChunk
}

// SDESChunk представляет один chunk в SDES пакете
type SDESChunk struct {
	Source uint32 // SSRC/CSRC
	Items  []SDESItem
}

// SDESItem представляет элемент описания источника
type SDESItem struct {
	Type uint8  // SDES type
	Text []byte // Text data
}

// ByePacket согласно RFC 3550 Section 6.6
type ByePacket struct {
	Hdr     Header
	Sources []uint32 // Список покидающих SSRC/CSRC
	Reason  string   // Опциональная причина выхода
}

// AppPacket согласно RFC 3550 Section 6.7
type AppPacket struct {
	Hdr     Header
	Subtype uint8   // Subtype: 5 bits из поля count
	SSRC    uint32  // SSRC/CSRC
	Name    [4]byte // 4 ASCII символа, уникальные для приложения
	Payload []byte  // Application-dependent data, кратно 4 байтам
}

// CompoundPacket представляет составной RTCP пакет: конкатенацию
// нескольких пакетов в одной UDP датаграмме. По соглашению RFC 3550
// составной пакет начинается с SR или RR и может заканчиваться BYE.
type CompoundPacket struct {
	Packets []Packet
}

// === SENDER REPORT ===

// NewSenderReport создает новый Sender Report
func NewSenderReport(ssrc uint32, ntpTime uint64, rtpTime uint32, packets, octets uint32) *SenderReport {
	return &SenderReport{
		Hdr: Header{
			Version:    2,
			PacketType: TypeSR,
			Length:     6,
		},
		SSRC:          ssrc,
		NTPTimestamp:  ntpTime,
		RTPTimestamp:  rtpTime,
		SenderPackets: packets,
		SenderOctets:  octets,
	}
}

// AddReceptionReport добавляет reception report блок к Sender Report
func (sr *SenderReport) AddReceptionReport(rr ReceptionReport) {
	sr.ReceptionReports = append(sr.ReceptionReports, rr)
	sr.Hdr.Count = uint8(len(sr.ReceptionReports))
	sr.Hdr.Length = 6 + uint16(len(sr.ReceptionReports)*6)
}

// Header возвращает заголовок RTCP пакета
func (sr *SenderReport) Header() Header {
	return sr.Hdr
}

// Marshal кодирует Sender Report в байты
func (sr *SenderReport) Marshal() ([]byte, error) {
	length := srFixedSize + len(sr.ReceptionReports)*rrBlockSize
	data := make([]byte, length)

	sr.Hdr.Count = uint8(len(sr.ReceptionReports))
	sr.Hdr.marshalTo(data, length)

	binary.BigEndian.PutUint32(data[4:8], sr.SSRC)
	binary.BigEndian.PutUint64(data[8:16], sr.NTPTimestamp)
	binary.BigEndian.PutUint32(data[16:20], sr.RTPTimestamp)
	binary.BigEndian.PutUint32(data[20:24], sr.SenderPackets)
	binary.BigEndian.PutUint32(data[24:28], sr.SenderOctets)

	offset := srFixedSize
	for _, rr := range sr.ReceptionReports {
		marshalReceptionReport(data[offset:], &rr)
		offset += rrBlockSize
	}

	return data, nil
}

// Unmarshal декодирует байты в Sender Report
func (sr *SenderReport) Unmarshal(data []byte) error {
	if err := unmarshalHeader(&sr.Hdr, data); err != nil {
		return err
	}

	if sr.Hdr.PacketType != TypeSR {
		return newError(ErrorCodeInvalidPacket,
			fmt.Sprintf("неверный тип пакета для SR: %d", sr.Hdr.PacketType))
	}

	if len(data) < srFixedSize {
		return wrapError(ErrorCodeTruncatedPacket,
			fmt.Sprintf("SR пакет слишком короткий: %d байт", len(data)), nil)
	}

	sr.SSRC = binary.BigEndian.Uint32(data[4:8])
	sr.NTPTimestamp = binary.BigEndian.Uint64(data[8:16])
	sr.RTPTimestamp = binary.BigEndian.Uint32(data[16:20])
	sr.SenderPackets = binary.BigEndian.Uint32(data[20:24])
	sr.SenderOctets = binary.BigEndian.Uint32(data[24:28])

	sr.ReceptionReports = make([]ReceptionReport, sr.Hdr.Count)
	offset := srFixedSize

	for i := 0; i < int(sr.Hdr.Count); i++ {
		if offset+rrBlockSize > len(data) {
			return wrapError(ErrorCodeTruncatedPacket,
				"недостаточно данных для RR блока", nil)
		}
		unmarshalReceptionReport(&sr.ReceptionReports[i], data[offset:])
		offset += rrBlockSize
	}

	return nil
}

// === RECEIVER REPORT ===

// NewReceiverReport создает новый Receiver Report
func NewReceiverReport(ssrc uint32) *ReceiverReport {
	return &ReceiverReport{
		Hdr: Header{
			Version:    2,
			PacketType: TypeRR,
			Length:     1,
		},
		SSRC: ssrc,
	}
}

// AddReceptionReport добавляет reception report блок к Receiver Report
func (rr *ReceiverReport) AddReceptionReport(report ReceptionReport) {
	rr.ReceptionReports = append(rr.ReceptionReports, report)
	rr.Hdr.Count = uint8(len(rr.ReceptionReports))
	rr.Hdr.Length = 1 + uint16(len(rr.ReceptionReports)*6)
}

// Header возвращает заголовок RTCP пакета
func (rr *ReceiverReport) Header() Header {
	return rr.Hdr
}

// Marshal кодирует Receiver Report в байты
func (rr *ReceiverReport) Marshal() ([]byte, error) {
	length := rrFixedSize + len(rr.ReceptionReports)*rrBlockSize
	data := make([]byte, length)

	rr.Hdr.Count = uint8(len(rr.ReceptionReports))
	rr.Hdr.marshalTo(data, length)

	binary.BigEndian.PutUint32(data[4:8], rr.SSRC)

	offset := rrFixedSize
	for _, report := range rr.ReceptionReports {
		marshalReceptionReport(data[offset:], &report)
		offset += rrBlockSize
	}

	return data, nil
}

// Unmarshal декодирует байты в Receiver Report
func (rr *ReceiverReport) Unmarshal(data []byte) error {
	if err := unmarshalHeader(&rr.Hdr, data); err != nil {
		return err
	}

	if rr.Hdr.PacketType != TypeRR {
		return newError(ErrorCodeInvalidPacket,
			fmt.Sprintf("неверный тип пакета для RR: %d", rr.Hdr.PacketType))
	}

	if len(data) < rrFixedSize {
		return wrapError(ErrorCodeTruncatedPacket,
			fmt.Sprintf("RR пакет слишком короткий: %d байт", len(data)), nil)
	}

	rr.SSRC = binary.BigEndian.Uint32(data[4:8])

	rr.ReceptionReports = make([]ReceptionReport, rr.Hdr.Count)
	offset := rrFixedSize

	for i := 0; i < int(rr.Hdr.Count); i++ {
		if offset+rrBlockSize > len(data) {
			return wrapError(ErrorCodeTruncatedPacket,
				"недостаточно данных для RR блока", nil)
		}
		unmarshalReceptionReport(&rr.ReceptionReports[i], data[offset:])
		offset += rrBlockSize
	}

	return nil
}

// marshalReceptionReport кодирует один reception report блок (24 байта)
func marshalReceptionReport(data []byte, rr *ReceptionReport) {
	binary.BigEndian.PutUint32(data[0:4], rr.SSRC)
	data[4] = rr.FractionLost

	// Cumulative lost занимает 24 бита
	data[5] = uint8(rr.CumulativeLost >> 16)
	data[6] = uint8(rr.CumulativeLost >> 8)
	data[7] = uint8(rr.CumulativeLost)

	binary.BigEndian.PutUint32(data[8:12], rr.HighestSeqNum)
	binary.BigEndian.PutUint32(data[12:16], rr.Jitter)
	binary.BigEndian.PutUint32(data[16:20], rr.LastSR)
	binary.BigEndian.PutUint32(data[20:24], rr.DelaySinceLastSR)
}

// unmarshalReceptionReport декодирует один reception report блок (24 байта)
func unmarshalReceptionReport(rr *ReceptionReport, data []byte) {
	rr.SSRC = binary.BigEndian.Uint32(data[0:4])
	rr.FractionLost = data[4]
	rr.CumulativeLost = uint32(data[5])<<16 | uint32(data[6])<<8 | uint32(data[7])
	rr.HighestSeqNum = binary.BigEndian.Uint32(data[8:12])
	rr.Jitter = binary.BigEndian.Uint32(data[12:16])
	rr.LastSR = binary.BigEndian.Uint32(data[16:20])
	rr.DelaySinceLastSR = binary.BigEndian.Uint32(data[20:24])
}

// === SOURCE DESCRIPTION ===

// NewSourceDescription создает новый SDES пакет
func NewSourceDescription() *SourceDescription {
	return &SourceDescription{
		Hdr: Header{
			Version:    2,
			PacketType: TypeSDES,
			Length:     1,
		},
	}
}

// AddChunk добавляет новый chunk к SDES пакету
func (sdes *SourceDescription) AddChunk(ssrc uint32, items []SDESItem) {
	sdes.Chunks = append(sdes.Chunks, SDESChunk{Source: ssrc, Items: items})
	sdes.Hdr.Count = uint8(len(sdes.Chunks))
}

// Header возвращает заголовок RTCP пакета
func (sdes *SourceDescription) Header() Header {
	return sdes.Hdr
}

// Marshal кодирует SDES пакет в байты
func (sdes *SourceDescription) Marshal() ([]byte, error) {
	totalSize := headerSize
	for _, chunk := range sdes.Chunks {
		totalSize += 4 // SSRC
		for _, item := range chunk.Items {
			if len(item.Text) > 255 {
				return nil, newError(ErrorCodeInvalidValue,
					fmt.Sprintf("SDES item длиннее 255 байт: %d", len(item.Text)))
			}
			totalSize += 2 + len(item.Text) // Type + Length + Text
		}
		totalSize++ // NULL terminator

		// Выравнивание к 32-битной границе
		if totalSize%4 != 0 {
			totalSize += 4 - (totalSize % 4)
		}
	}

	data := make([]byte, totalSize)

	sdes.Hdr.Count = uint8(len(sdes.Chunks))
	sdes.Hdr.marshalTo(data, totalSize)

	offset := headerSize
	for _, chunk := range sdes.Chunks {
		binary.BigEndian.PutUint32(data[offset:offset+4], chunk.Source)
		offset += 4

		for _, item := range chunk.Items {
			data[offset] = item.Type
			data[offset+1] = uint8(len(item.Text))
			copy(data[offset+2:], item.Text)
			offset += 2 + len(item.Text)
		}

		// NULL terminator
		data[offset] = 0
		offset++

		for offset%4 != 0 {
			data[offset] = 0
			offset++
		}
	}

	return data, nil
}

// Unmarshal декодирует байты в SDES пакет
func (sdes *SourceDescription) Unmarshal(data []byte) error {
	if err := unmarshalHeader(&sdes.Hdr, data); err != nil {
		return err
	}

	if sdes.Hdr.PacketType != TypeSDES {
		return newError(ErrorCodeInvalidPacket,
			fmt.Sprintf("неверный тип пакета для SDES: %d", sdes.Hdr.PacketType))
	}

	sdes.Chunks = make([]SDESChunk, 0, sdes.Hdr.Count)
	offset := headerSize

	for i := 0; i < int(sdes.Hdr.Count); i++ {
		if offset+4 > len(data) {
			return wrapError(ErrorCodeTruncatedPacket,
				"недостаточно данных для SDES chunk", nil)
		}

		chunk := SDESChunk{
			Source: binary.BigEndian.Uint32(data[offset : offset+4]),
		}
		offset += 4

		for offset < len(data) {
			if data[offset] == 0 {
				offset++ // NULL terminator
				break
			}

			if offset+2 > len(data) {
				return wrapError(ErrorCodeTruncatedPacket,
					"недостаточно данных для SDES item", nil)
			}

			itemType := data[offset]
			itemLen := int(data[offset+1])
			offset += 2

			if offset+itemLen > len(data) {
				return wrapError(ErrorCodeTruncatedPacket,
					"недостаточно данных для SDES text", nil)
			}

			item := SDESItem{Type: itemType, Text: make([]byte, itemLen)}
			copy(item.Text, data[offset:offset+itemLen])
			offset += itemLen

			chunk.Items = append(chunk.Items, item)
		}

		// Пропускаем выравнивание
		for offset%4 != 0 && offset < len(data) {
			offset++
		}

		sdes.Chunks = append(sdes.Chunks, chunk)
	}

	return nil
}

// === BYE ===

// NewByePacket создает новый BYE пакет для заданных источников
func NewByePacket(sources []uint32, reason string) *ByePacket {
	return &ByePacket{
		Hdr: Header{
			Version:    2,
			Count:      uint8(len(sources)),
			PacketType: TypeBYE,
		},
		Sources: sources,
		Reason:  reason,
	}
}

// Header возвращает заголовок RTCP пакета
func (bye *ByePacket) Header() Header {
	return bye.Hdr
}

// Marshal кодирует BYE пакет в байты
func (bye *ByePacket) Marshal() ([]byte, error) {
	if len(bye.Sources) > 31 {
		return nil, newError(ErrorCodeInvalidValue,
			fmt.Sprintf("слишком много источников в BYE: %d", len(bye.Sources)))
	}
	if len(bye.Reason) > MaxByeReasonLength {
		return nil, newError(ErrorCodeInvalidValue,
			fmt.Sprintf("reason строка длиннее %d байт: %d", MaxByeReasonLength, len(bye.Reason)))
	}

	totalSize := headerSize + len(bye.Sources)*4
	if bye.Reason != "" {
		totalSize += 1 + len(bye.Reason)
		if totalSize%4 != 0 {
			totalSize += 4 - (totalSize % 4)
		}
	}

	data := make([]byte, totalSize)

	bye.Hdr.Count = uint8(len(bye.Sources))
	bye.Hdr.marshalTo(data, totalSize)

	offset := headerSize
	for _, ssrc := range bye.Sources {
		binary.BigEndian.PutUint32(data[offset:offset+4], ssrc)
		offset += 4
	}

	if bye.Reason != "" {
		data[offset] = uint8(len(bye.Reason))
		copy(data[offset+1:], bye.Reason)
	}

	return data, nil
}

// Unmarshal декодирует байты в BYE пакет
func (bye *ByePacket) Unmarshal(data []byte) error {
	if err := unmarshalHeader(&bye.Hdr, data); err != nil {
		return err
	}

	if bye.Hdr.PacketType != TypeBYE {
		return newError(ErrorCodeInvalidPacket,
			fmt.Sprintf("неверный тип пакета для BYE: %d", bye.Hdr.PacketType))
	}

	offset := headerSize
	bye.Sources = make([]uint32, bye.Hdr.Count)

	for i := 0; i < int(bye.Hdr.Count); i++ {
		if offset+4 > len(data) {
			return wrapError(ErrorCodeTruncatedPacket,
				"недостаточно данных для SSRC в BYE", nil)
		}
		bye.Sources[i] = binary.BigEndian.Uint32(data[offset : offset+4])
		offset += 4
	}

	bye.Reason = ""
	if offset < len(data) {
		reasonLen := int(data[offset])
		offset++
		if offset+reasonLen > len(data) {
			return wrapError(ErrorCodeTruncatedPacket,
				"недостаточно данных для reason строки в BYE", nil)
		}
		bye.Reason = string(data[offset : offset+reasonLen])
	}

	return nil
}

// === APP ===

// NewAppPacket создает новый Application-Defined пакет
func NewAppPacket(ssrc uint32, subtype uint8, name [4]byte, payload []byte) *AppPacket {
	return &AppPacket{
		Hdr: Header{
			Version:    2,
			Count:      subtype & 0x1F,
			PacketType: TypeAPP,
		},
		Subtype: subtype & 0x1F,
		SSRC:    ssrc,
		Name:    name,
		Payload: payload,
	}
}

// Header возвращает заголовок RTCP пакета
func (app *AppPacket) Header() Header {
	return app.Hdr
}

// Marshal кодирует APP пакет в байты
func (app *AppPacket) Marshal() ([]byte, error) {
	if len(app.Payload)%4 != 0 {
		return nil, newError(ErrorCodeInvalidValue,
			fmt.Sprintf("APP payload должен быть кратен 4 байтам: %d", len(app.Payload)))
	}

	totalSize := headerSize + 8 + len(app.Payload)
	data := make([]byte, totalSize)

	app.Hdr.Count = app.Subtype & 0x1F
	app.Hdr.marshalTo(data, totalSize)

	binary.BigEndian.PutUint32(data[4:8], app.SSRC)
	copy(data[8:12], app.Name[:])
	copy(data[12:], app.Payload)

	return data, nil
}

// Unmarshal декодирует байты в APP пакет
func (app *AppPacket) Unmarshal(data []byte) error {
	if err := unmarshalHeader(&app.Hdr, data); err != nil {
		return err
	}

	if app.Hdr.PacketType != TypeAPP {
		return newError(ErrorCodeInvalidPacket,
			fmt.Sprintf("неверный тип пакета для APP: %d", app.Hdr.PacketType))
	}

	if len(data) < headerSize+8 {
		return wrapError(ErrorCodeTruncatedPacket,
			fmt.Sprintf("APP пакет слишком короткий: %d байт", len(data)), nil)
	}

	app.Subtype = app.Hdr.Count
	app.SSRC = binary.BigEndian.Uint32(data[4:8])
	copy(app.Name[:], data[8:12])

	app.Payload = make([]byte, len(data)-12)
	copy(app.Payload, data[12:])

	return nil
}

// === COMPOUND ===

// Marshal кодирует составной пакет: конкатенация всех вложенных пакетов
func (cp *CompoundPacket) Marshal() ([]byte, error) {
	if len(cp.Packets) == 0 {
		return nil, newError(ErrorCodeInvalidValue, "пустой составной пакет")
	}

	first := cp.Packets[0].Header().PacketType
	if first != TypeSR && first != TypeRR {
		return nil, newError(ErrorCodeInvalidValue,
			fmt.Sprintf("составной пакет должен начинаться с SR или RR, получен тип %d", first))
	}

	var data []byte
	for _, p := range cp.Packets {
		encoded, err := p.Marshal()
		if err != nil {
			return nil, err
		}
		data = append(data, encoded...)
	}

	return data, nil
}

// ParseCompound разбирает буфер как составной RTCP пакет: цепочку
// пакетов, каждый из которых объявляет свою длину в заголовке.
// Возвращает ошибку если любой из вложенных пакетов некорректен -
// весь буфер при этом отбрасывается, частичной обработки нет.
func ParseCompound(data []byte) (*CompoundPacket, error) {
	if len(data) < headerSize {
		return nil, wrapError(ErrorCodeTruncatedPacket,
			fmt.Sprintf("буфер слишком короткий для RTCP: %d байт", len(data)), nil)
	}

	cp := &CompoundPacket{}
	offset := 0

	for offset < len(data) {
		remaining := data[offset:]
		if len(remaining) < headerSize {
			return nil, wrapError(ErrorCodeTruncatedPacket,
				"обрезанный заголовок вложенного пакета", nil)
		}

		var hdr Header
		if err := unmarshalHeader(&hdr, remaining); err != nil {
			return nil, err
		}

		// Объявленная длина пакета в байтах
		packetLen := (int(hdr.Length) + 1) * 4
		if packetLen > len(remaining) {
			return nil, wrapError(ErrorCodeTruncatedPacket,
				fmt.Sprintf("объявленная длина %d превышает остаток буфера %d",
					packetLen, len(remaining)), nil)
		}

		packet, err := parsePacket(hdr.PacketType, remaining[:packetLen])
		if err != nil {
			return nil, err
		}

		// Первый пакет составного должен быть SR или RR
		if offset == 0 && hdr.PacketType != TypeSR && hdr.PacketType != TypeRR {
			return nil, newError(ErrorCodeInvalidPacket,
				fmt.Sprintf("составной пакет начинается с типа %d вместо SR/RR", hdr.PacketType))
		}

		cp.Packets = append(cp.Packets, packet)
		offset += packetLen
	}

	return cp, nil
}

// parsePacket декодирует один пакет по его типу
func parsePacket(packetType uint8, data []byte) (Packet, error) {
	var packet Packet

	switch packetType {
	case TypeSR:
		packet = &SenderReport{}
	case TypeRR:
		packet = &ReceiverReport{}
	case TypeSDES:
		packet = &SourceDescription{}
	case TypeBYE:
		packet = &ByePacket{}
	case TypeAPP:
		packet = &AppPacket{}
	default:
		return nil, newError(ErrorCodeUnknownPacketType,
			fmt.Sprintf("неизвестный тип RTCP пакета: %d", packetType))
	}

	if err := packet.Unmarshal(data); err != nil {
		return nil, err
	}

	return packet, nil
}

// IsRTCPPacket проверяет, похож ли буфер на RTCP пакет.
// Используется при мультиплексировании RTP/RTCP на одном порту.
func IsRTCPPacket(data []byte) bool {
	if len(data) < headerSize {
		return false
	}

	version := (data[0] >> 6) & 0x03
	packetType := data[1]

	return version == 2 && packetType >= TypeSR && packetType <= TypeAPP
}

// NTPTimestamp конвертирует время в NTP timestamp согласно RFC 3550
func NTPTimestamp(t time.Time) uint64 {
	// NTP epoch начинается 1 января 1900
	ntpEpoch := time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	duration := t.Sub(ntpEpoch)

	seconds := uint64(duration.Seconds())
	fraction := uint64((duration.Nanoseconds() % 1e9) * (1 << 32) / 1e9)

	return (seconds << 32) | fraction
}

// NTPTimestampToTime конвертирует NTP timestamp в time.Time
func NTPTimestampToTime(ntp uint64) time.Time {
	ntpEpoch := time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	seconds := int64(ntp >> 32)
	fraction := int64(ntp & 0xFFFFFFFF)
	nanoseconds := (fraction * 1e9) >> 32

	return ntpEpoch.Add(time.Duration(seconds)*time.Second + time.Duration(nanoseconds)*time.Nanosecond)
}
