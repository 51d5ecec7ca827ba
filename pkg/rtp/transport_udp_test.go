package rtp

import (
	"context"
	"testing"
	"time"

	pionrtp "github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransportPair(t *testing.T) (*UDPTransport, *UDPTransport) {
	t.Helper()

	a, err := NewUDPTransport(TransportConfig{LocalAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	b, err := NewUDPTransport(TransportConfig{
		LocalAddr:  "127.0.0.1:0",
		RemoteAddr: a.LocalAddr().String(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, a.SetRemoteAddr(b.LocalAddr().String()))
	return a, b
}

func testPacket(seq uint16) *pionrtp.Packet {
	return &pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        2,
			PayloadType:    uint8(PayloadTypePCMU),
			SequenceNumber: seq,
			Timestamp:      160,
			SSRC:           0xDEADBEEF,
		},
		Payload: []byte{0x01, 0x02, 0x03, 0x04},
	}
}

func TestUDPTransportSendReceive(t *testing.T) {
	a, b := newTransportPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, a.Send(testPacket(100)))

	packet, addr, err := b.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, packet)
	assert.Equal(t, uint16(100), packet.SequenceNumber)
	assert.Equal(t, uint32(0xDEADBEEF), packet.SSRC)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, packet.Payload)
	assert.Equal(t, a.LocalAddr().String(), addr.String())
}

func TestUDPTransportLearnsRemoteAddr(t *testing.T) {
	// транспорт без удаленного адреса учится по первому входящему пакету
	a, err := NewUDPTransport(TransportConfig{LocalAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	require.Nil(t, a.RemoteAddr())
	assert.ErrorIs(t, a.Send(testPacket(1)), ErrNoRemoteAddr)

	b, err := NewUDPTransport(TransportConfig{
		LocalAddr:  "127.0.0.1:0",
		RemoteAddr: a.LocalAddr().String(),
	})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	require.NoError(t, b.Send(testPacket(2)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err = a.Receive(ctx)
	require.NoError(t, err)

	require.NotNil(t, a.RemoteAddr())
	assert.Equal(t, b.LocalAddr().String(), a.RemoteAddr().String())
	assert.NoError(t, a.Send(testPacket(3)))
}

func TestUDPTransportReceiveContextCancel(t *testing.T) {
	a, err := NewUDPTransport(TransportConfig{LocalAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, _, err = a.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUDPTransportClosed(t *testing.T) {
	a, _ := newTransportPair(t)
	require.NoError(t, a.Close())

	assert.ErrorIs(t, a.Send(testPacket(1)), ErrTransportClosed)

	_, _, err := a.Receive(context.Background())
	assert.ErrorIs(t, err, ErrTransportClosed)

	// повторное закрытие безопасно
	assert.NoError(t, a.Close())
}

func TestUDPTransportPacketTooLarge(t *testing.T) {
	a, _ := newTransportPair(t)

	packet := testPacket(1)
	packet.Payload = make([]byte, maxPacketSize)
	assert.ErrorIs(t, a.Send(packet), ErrPacketTooLarge)
}

func TestClassifyNetworkError(t *testing.T) {
	assert.Nil(t, classifyNetworkError("op", nil))

	cls := classifyNetworkError("op", assert.AnError)
	require.NotNil(t, cls)
	assert.Equal(t, NetworkErrorUnknown, cls.Kind)
	assert.ErrorIs(t, cls, assert.AnError)
	assert.False(t, cls.Timeout())
}
