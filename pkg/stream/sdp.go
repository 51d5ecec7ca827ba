package stream

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/rtpstack/pkg/rtp"
)

// codecName возвращает имя кодека для rtpmap атрибута
func codecName(pt rtp.PayloadType) string {
	switch pt {
	case rtp.PayloadTypePCMU:
		return "PCMU"
	case rtp.PayloadTypePCMA:
		return "PCMA"
	case rtp.PayloadTypeG722:
		return "G722"
	case rtp.PayloadTypeGSM:
		return "GSM"
	case rtp.PayloadTypeG729:
		return "G729"
	default:
		return ""
	}
}

// Describe строит SDP-описание запущенного медиапотока.
// Используется сигнализацией для offer/answer обмена.
func (m *MediaStream) Describe(sessionName string) (*sdp.SessionDescription, error) {
	if m.rtpTransport == nil {
		return nil, fmt.Errorf("медиапоток не запущен")
	}

	host, rtpPort, err := splitAddr(m.rtpTransport.LocalAddr().String())
	if err != nil {
		return nil, fmt.Errorf("не удалось разобрать локальный адрес: %w", err)
	}
	_, ctrlPort, err := splitAddr(m.ctrlTransport.LocalAddr().String())
	if err != nil {
		return nil, fmt.Errorf("не удалось разобрать управляющий адрес: %w", err)
	}

	sessionID := uint64(time.Now().Unix())

	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sessionID,
			SessionVersion: sessionID,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: host,
		},
		SessionName: sdp.SessionName(sessionName),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: host},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}

	pt := m.config.PayloadType
	format := strconv.Itoa(int(pt))

	audio := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   "audio",
			Port:    sdp.RangedPort{Value: rtpPort},
			Protos:  []string{"RTP", "AVP"},
			Formats: []string{format},
		},
	}

	if name := codecName(pt); name != "" {
		audio = audio.WithValueAttribute("rtpmap",
			fmt.Sprintf("%s %s/%d", format, name, pt.ClockRate()))
	}

	ptime := m.config.Ptime
	if ptime == 0 {
		ptime = defaultPtime
	}
	audio = audio.WithValueAttribute("ptime", strconv.Itoa(int(ptime.Milliseconds())))

	// Нестандартный управляющий порт объявляется явно
	if ctrlPort != rtpPort+1 {
		audio = audio.WithValueAttribute("rtcp", strconv.Itoa(ctrlPort))
	}

	audio = audio.WithPropertyAttribute(m.Direction().String())

	desc.MediaDescriptions = append(desc.MediaDescriptions, audio)
	return desc, nil
}
