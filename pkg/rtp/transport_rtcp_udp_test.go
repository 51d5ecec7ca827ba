package rtp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/rtpstack/pkg/rtcp"
)

var _ rtcp.Transport = (*UDPControlTransport)(nil)

func newControlPair(t *testing.T) (*UDPControlTransport, *UDPControlTransport) {
	t.Helper()

	a, err := NewUDPControlTransport(TransportConfig{LocalAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	b, err := NewUDPControlTransport(TransportConfig{
		LocalAddr:  "127.0.0.1:0",
		RemoteAddr: a.LocalAddr().String(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, a.SetRemoteAddr(b.LocalAddr().String()))
	return a, b
}

func TestUDPControlTransportSendReceive(t *testing.T) {
	a, b := newControlPair(t)

	payload := []byte{0x80, 0xC9, 0x00, 0x01, 0x12, 0x34, 0x56, 0x78}
	require.NoError(t, a.Send(payload))

	ctx := context.Background()
	data, addr, err := b.Receive(ctx, time.Now().Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, a.LocalAddr().String(), addr.String())
}

func TestUDPControlTransportDeadlineExpiry(t *testing.T) {
	// по истечении дедлайна без данных возвращается (nil, nil, nil)
	a, _ := newControlPair(t)

	start := time.Now()
	data, addr, err := a.Receive(context.Background(), start.Add(150*time.Millisecond))
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Nil(t, addr)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestUDPControlTransportPastDeadline(t *testing.T) {
	a, _ := newControlPair(t)

	data, addr, err := a.Receive(context.Background(), time.Now().Add(-time.Second))
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Nil(t, addr)
}

func TestUDPControlTransportContextCancel(t *testing.T) {
	a, _ := newControlPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := a.Receive(ctx, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUDPControlTransportClosed(t *testing.T) {
	a, _ := newControlPair(t)
	require.NoError(t, a.Close())

	assert.ErrorIs(t, a.Send([]byte{0x80}), ErrTransportClosed)

	_, _, err := a.Receive(context.Background(), time.Now().Add(time.Second))
	assert.ErrorIs(t, err, ErrTransportClosed)
}
