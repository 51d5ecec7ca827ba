package rtcp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSenderReportRoundTrip проверяет кодирование и декодирование
// Sender Report с разным числом reception report блоков
func TestSenderReportRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		blocks []ReceptionReport
	}{
		{
			name:   "Без reception report блоков",
			blocks: nil,
		},
		{
			name: "Один блок",
			blocks: []ReceptionReport{
				{
					SSRC:             0xAABBCCDD,
					FractionLost:     12,
					CumulativeLost:   0x00FFFFFF, // Максимум для 24 бит
					HighestSeqNum:    0x00010042,
					Jitter:           1500,
					LastSR:           0x12345678,
					DelaySinceLastSR: 65536,
				},
			},
		},
		{
			name: "Несколько блоков",
			blocks: []ReceptionReport{
				{SSRC: 1, FractionLost: 1, CumulativeLost: 10},
				{SSRC: 2, FractionLost: 255, CumulativeLost: 0},
				{SSRC: 3, HighestSeqNum: 0xFFFFFFFF, Jitter: 0xFFFFFFFF},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := NewSenderReport(0x11223344, 0xABCDEF0123456789, 160000, 1000, 160000)
			for _, block := range tt.blocks {
				sr.AddReceptionReport(block)
			}

			data, err := sr.Marshal()
			require.NoError(t, err)
			require.Equal(t, 0, len(data)%4, "RTCP пакет должен быть кратен 4 байтам")

			decoded := &SenderReport{}
			require.NoError(t, decoded.Unmarshal(data))

			assert.Equal(t, sr.SSRC, decoded.SSRC)
			assert.Equal(t, sr.NTPTimestamp, decoded.NTPTimestamp)
			assert.Equal(t, sr.RTPTimestamp, decoded.RTPTimestamp)
			assert.Equal(t, sr.SenderPackets, decoded.SenderPackets)
			assert.Equal(t, sr.SenderOctets, decoded.SenderOctets)
			require.Len(t, decoded.ReceptionReports, len(tt.blocks))
			for i, block := range tt.blocks {
				assert.Equal(t, block, decoded.ReceptionReports[i])
			}
		})
	}
}

// TestReceiverReportRoundTrip проверяет RR включая граничный случай
// нулевого числа блоков
func TestReceiverReportRoundTrip(t *testing.T) {
	rr := NewReceiverReport(0xDEADBEEF)

	data, err := rr.Marshal()
	require.NoError(t, err)
	assert.Len(t, data, 8, "RR без блоков занимает 8 байт")

	decoded := &ReceiverReport{}
	require.NoError(t, decoded.Unmarshal(data))
	assert.Equal(t, rr.SSRC, decoded.SSRC)
	assert.Empty(t, decoded.ReceptionReports)

	rr.AddReceptionReport(ReceptionReport{SSRC: 42, CumulativeLost: 7})
	data, err = rr.Marshal()
	require.NoError(t, err)

	decoded = &ReceiverReport{}
	require.NoError(t, decoded.Unmarshal(data))
	require.Len(t, decoded.ReceptionReports, 1)
	assert.Equal(t, uint32(42), decoded.ReceptionReports[0].SSRC)
	assert.Equal(t, uint32(7), decoded.ReceptionReports[0].CumulativeLost)
}

// TestSourceDescriptionRoundTrip проверяет SDES с разными наборами items
func TestSourceDescriptionRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		items []SDESItem
	}{
		{
			name:  "Пустой список items",
			items: nil,
		},
		{
			name: "Только CNAME",
			items: []SDESItem{
				{Type: SDESTypeCNAME, Text: []byte("user@host.example.com")},
			},
		},
		{
			name: "Несколько items",
			items: []SDESItem{
				{Type: SDESTypeCNAME, Text: []byte("a@b")},
				{Type: SDESTypeName, Text: []byte("Test User")},
				{Type: SDESTypeTool, Text: []byte("rtpstack")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sdes := NewSourceDescription()
			sdes.AddChunk(0x01020304, tt.items)

			data, err := sdes.Marshal()
			require.NoError(t, err)
			require.Equal(t, 0, len(data)%4)

			decoded := &SourceDescription{}
			require.NoError(t, decoded.Unmarshal(data))

			require.Len(t, decoded.Chunks, 1)
			assert.Equal(t, uint32(0x01020304), decoded.Chunks[0].Source)
			require.Len(t, decoded.Chunks[0].Items, len(tt.items))
			for i, item := range tt.items {
				assert.Equal(t, item.Type, decoded.Chunks[0].Items[i].Type)
				assert.Equal(t, item.Text, decoded.Chunks[0].Items[i].Text)
			}
		})
	}
}

// TestByePacketRoundTrip проверяет BYE включая максимальную длину reason
func TestByePacketRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		sources []uint32
		reason  string
	}{
		{
			name:    "Один источник без reason",
			sources: []uint32{0x11111111},
		},
		{
			name:    "Несколько источников с reason",
			sources: []uint32{1, 2, 3},
			reason:  "camera malfunction",
		},
		{
			name:    "Максимальная длина reason",
			sources: []uint32{42},
			reason:  strings.Repeat("x", MaxByeReasonLength),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bye := NewByePacket(tt.sources, tt.reason)

			data, err := bye.Marshal()
			require.NoError(t, err)
			require.Equal(t, 0, len(data)%4)

			decoded := &ByePacket{}
			require.NoError(t, decoded.Unmarshal(data))

			assert.Equal(t, tt.sources, decoded.Sources)
			assert.Equal(t, tt.reason, decoded.Reason)
		})
	}
}

// TestByePacketReasonTooLong проверяет отказ кодировать слишком
// длинную reason строку
func TestByePacketReasonTooLong(t *testing.T) {
	bye := NewByePacket([]uint32{1}, strings.Repeat("x", MaxByeReasonLength+1))

	_, err := bye.Marshal()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

// TestAppPacketRoundTrip проверяет Application-Defined пакет
func TestAppPacketRoundTrip(t *testing.T) {
	app := NewAppPacket(0xCAFEBABE, 7, [4]byte{'T', 'E', 'S', 'T'},
		[]byte{1, 2, 3, 4, 5, 6, 7, 8})

	data, err := app.Marshal()
	require.NoError(t, err)

	decoded := &AppPacket{}
	require.NoError(t, decoded.Unmarshal(data))

	assert.Equal(t, app.SSRC, decoded.SSRC)
	assert.Equal(t, app.Subtype, decoded.Subtype)
	assert.Equal(t, app.Name, decoded.Name)
	assert.Equal(t, app.Payload, decoded.Payload)
}

// TestAppPacketUnalignedPayload проверяет отказ кодировать payload
// не кратный 4 байтам
func TestAppPacketUnalignedPayload(t *testing.T) {
	app := NewAppPacket(1, 0, [4]byte{'B', 'A', 'D', '!'}, []byte{1, 2, 3})

	_, err := app.Marshal()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

// TestCompoundRoundTrip проверяет составной пакет: RR + SDES + BYE
func TestCompoundRoundTrip(t *testing.T) {
	rr := NewReceiverReport(100)
	sdes := NewSourceDescription()
	sdes.AddChunk(100, []SDESItem{{Type: SDESTypeCNAME, Text: []byte("cname@test")}})
	bye := NewByePacket([]uint32{100}, "bye")

	compound := &CompoundPacket{Packets: []Packet{rr, sdes, bye}}

	data, err := compound.Marshal()
	require.NoError(t, err)

	decoded, err := ParseCompound(data)
	require.NoError(t, err)
	require.Len(t, decoded.Packets, 3)

	assert.IsType(t, &ReceiverReport{}, decoded.Packets[0])
	assert.IsType(t, &SourceDescription{}, decoded.Packets[1])
	assert.IsType(t, &ByePacket{}, decoded.Packets[2])
}

// TestCompoundMustStartWithReport проверяет, что составной пакет
// обязан начинаться с SR или RR
func TestCompoundMustStartWithReport(t *testing.T) {
	bye := NewByePacket([]uint32{1}, "")
	compound := &CompoundPacket{Packets: []Packet{bye}}

	_, err := compound.Marshal()
	require.Error(t, err)

	// И при разборе тоже
	data, err := bye.Marshal()
	require.NoError(t, err)

	_, err = ParseCompound(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPacket)
}

// TestParseCompoundMalformed проверяет устойчивость к обрезанным
// и испорченным буферам: всегда локальная ошибка, никакой паники
func TestParseCompoundMalformed(t *testing.T) {
	rr := NewReceiverReport(7)
	rr.AddReceptionReport(ReceptionReport{SSRC: 8})
	valid, err := rr.Marshal()
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"Пустой буфер", nil},
		{"Короче заголовка", []byte{0x80, 200}},
		{"Обрезанный после заголовка", valid[:4]},
		{"Обрезанный посередине блока", valid[:12]},
		{"Неверная версия", append([]byte{0x40}, valid[1:]...)},
		{"Длина больше буфера", func() []byte {
			corrupted := make([]byte, len(valid))
			copy(corrupted, valid)
			corrupted[2] = 0xFF
			corrupted[3] = 0xFF
			return corrupted
		}()},
		{"Неизвестный тип пакета", func() []byte {
			corrupted := make([]byte, len(valid))
			copy(corrupted, valid)
			corrupted[1] = 250
			return corrupted
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCompound(tt.data)
			require.Error(t, err)

			var rtcpErr *Error
			require.ErrorAs(t, err, &rtcpErr)
		})
	}
}

// TestIsRTCPPacket проверяет эвристику распознавания RTCP при
// мультиплексировании
func TestIsRTCPPacket(t *testing.T) {
	rr := NewReceiverReport(1)
	data, err := rr.Marshal()
	require.NoError(t, err)

	assert.True(t, IsRTCPPacket(data))
	assert.False(t, IsRTCPPacket(nil))
	assert.False(t, IsRTCPPacket([]byte{0x80, 96, 0, 0})) // RTP payload type
	assert.False(t, IsRTCPPacket([]byte{0x00, 200, 0, 0}))
}

// TestNTPTimestampRoundTrip проверяет конвертацию времени в NTP формат
func TestNTPTimestampRoundTrip(t *testing.T) {
	original := time.Date(2024, 6, 15, 12, 30, 45, 500000000, time.UTC)

	ntp := NTPTimestamp(original)
	restored := NTPTimestampToTime(ntp)

	diff := restored.Sub(original)
	if diff < 0 {
		diff = -diff
	}
	assert.Less(t, diff, time.Millisecond, "NTP конвертация теряет не больше миллисекунды")
}
