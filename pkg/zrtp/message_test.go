package zrtp

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDHPart(msgType MessageType) *DHPart {
	msg := &DHPart{Type: msgType}
	for i := range msg.HashImage {
		msg.HashImage[i] = byte(i)
	}
	for i := 0; i < secretIDSize; i++ {
		msg.RS1ID[i] = 0x11
		msg.RS2ID[i] = 0x22
		msg.AuxSecretID[i] = 0x33
		msg.PBXSecretID[i] = 0x44
	}
	for i := range msg.PublicKey {
		msg.PublicKey[i] = byte(i % 251)
	}
	return msg
}

func TestDHPartRoundTrip(t *testing.T) {
	for _, msgType := range []MessageType{MessageTypeDHPart1, MessageTypeDHPart2} {
		t.Run(string(msgType[:]), func(t *testing.T) {
			original := sampleDHPart(msgType)
			original.Sign([]byte("mac-key"))

			data, err := original.Marshal()
			require.NoError(t, err)
			assert.Len(t, data, dhPartSize)

			var decoded DHPart
			require.NoError(t, decoded.Unmarshal(data))
			assert.Equal(t, *original, decoded)
			assert.NoError(t, decoded.VerifyMAC([]byte("mac-key")))
		})
	}
}

func TestDHPartMarshalUnknownType(t *testing.T) {
	msg := sampleDHPart(MessageType{'B', 'o', 'g', 'u', 's', ' ', ' ', ' '})
	_, err := msg.Marshal()
	assert.ErrorIs(t, err, ErrUnknownMessageType)
}

func TestDHPartUnmarshalErrors(t *testing.T) {
	valid, err := sampleDHPart(MessageTypeDHPart1).Marshal()
	require.NoError(t, err)

	t.Run("короткий буфер", func(t *testing.T) {
		var msg DHPart
		assert.ErrorIs(t, msg.Unmarshal(valid[:8]), ErrTruncatedMessage)
	})

	t.Run("усеченный кадр", func(t *testing.T) {
		var msg DHPart
		assert.ErrorIs(t, msg.Unmarshal(valid[:dhPartSize-10]), ErrTruncatedMessage)
	})

	t.Run("неверная преамбула", func(t *testing.T) {
		corrupted := append([]byte(nil), valid...)
		corrupted[0] = 0x00
		var msg DHPart
		assert.ErrorIs(t, msg.Unmarshal(corrupted), ErrBadPreamble)
	})

	t.Run("неизвестный тип", func(t *testing.T) {
		corrupted := append([]byte(nil), valid...)
		copy(corrupted[4:12], "Mystery ")
		var msg DHPart
		assert.ErrorIs(t, msg.Unmarshal(corrupted), ErrUnknownMessageType)
	})

	t.Run("неверная длина", func(t *testing.T) {
		corrupted := append([]byte(nil), valid...)
		binary.BigEndian.PutUint16(corrupted[2:4], 10)
		var msg DHPart
		assert.ErrorIs(t, msg.Unmarshal(corrupted), ErrTruncatedMessage)
	})

	t.Run("битый CRC", func(t *testing.T) {
		corrupted := append([]byte(nil), valid...)
		corrupted[len(corrupted)-1] ^= 0xFF
		var msg DHPart
		assert.ErrorIs(t, msg.Unmarshal(corrupted), ErrBadCRC)
	})
}

func TestDHPartMACVerification(t *testing.T) {
	msg := sampleDHPart(MessageTypeDHPart1)
	msg.Sign([]byte("correct-key"))

	assert.NoError(t, msg.VerifyMAC([]byte("correct-key")))
	assert.ErrorIs(t, msg.VerifyMAC([]byte("wrong-key")), ErrBadMAC)

	// подмена тела инвалидирует MAC
	msg.PublicKey[0] ^= 0xFF
	assert.ErrorIs(t, msg.VerifyMAC([]byte("correct-key")), ErrBadMAC)
}
