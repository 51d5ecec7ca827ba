package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/rtpstack/pkg/rtcp"
	"github.com/arzzra/rtpstack/pkg/rtp"
)

func startStreamPair(t *testing.T) (*MediaStream, *MediaStream) {
	t.Helper()
	ctx := context.Background()

	alice, err := New(Config{
		LocalAddr:   "127.0.0.1:0",
		CNAME:       "alice@example.com",
		PayloadType: rtp.PayloadTypePCMU,
	})
	require.NoError(t, err)
	require.NoError(t, alice.Start(ctx))
	t.Cleanup(func() { _ = alice.Close() })

	bob, err := New(Config{
		LocalAddr:         "127.0.0.1:0",
		RemoteAddr:        alice.LocalRTPAddr().String(),
		ControlRemoteAddr: alice.LocalControlAddr().String(),
		CNAME:             "bob@example.com",
		PayloadType:       rtp.PayloadTypePCMU,
	})
	require.NoError(t, err)
	require.NoError(t, bob.Start(ctx))
	t.Cleanup(func() { _ = bob.Close() })

	require.NoError(t, alice.SetRemoteAddr(
		bob.LocalRTPAddr().String(), bob.LocalControlAddr().String()))

	return alice, bob
}

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name   string
		config Config
	}{
		{"пустой CNAME", Config{}},
		{"отрицательный ptime", Config{CNAME: "a", Ptime: -time.Millisecond}},
		{"отрицательная полоса", Config{CNAME: "a", Bandwidth: -1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.config)
			assert.ErrorIs(t, err, rtcp.ErrInvalidValue)
		})
	}
}

func TestStreamPushPull(t *testing.T) {
	alice, bob := startStreamPair(t)

	payload := []byte{0x10, 0x20, 0x30, 0x40}
	require.NoError(t, bob.PushFrame(payload))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	frame, err := alice.PullFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, payload, frame.Payload)
	assert.Equal(t, bob.ControlSession().SSRC(), frame.SSRC)
}

func TestStreamOnFrameHook(t *testing.T) {
	alice, bob := startStreamPair(t)

	var mu sync.Mutex
	var frames []*Frame
	alice.OnFrame(func(frame *Frame) {
		mu.Lock()
		frames = append(frames, frame)
		mu.Unlock()
	})

	require.NoError(t, bob.PushFrame([]byte{0x01}))
	require.NoError(t, bob.PushFrame([]byte{0x02}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// хук установлен, очередь PullFrame пуста
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := alice.PullFrame(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStreamDirectionEnforcement(t *testing.T) {
	alice, _ := startStreamPair(t)

	alice.SetDirection(rtp.DirectionRecvOnly)
	assert.ErrorIs(t, alice.PushFrame([]byte{0x01}), rtcp.ErrInvalidValue)

	alice.SetDirection(rtp.DirectionInactive)
	assert.ErrorIs(t, alice.PushFrame([]byte{0x01}), rtcp.ErrInvalidValue)

	alice.SetDirection(rtp.DirectionSendRecv)
	assert.NoError(t, alice.PushFrame([]byte{0x01}))
}

func TestStreamStatisticsFlow(t *testing.T) {
	alice, bob := startStreamPair(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, bob.PushFrame([]byte{0xAA, 0xBB}))
	}

	// у боба растет счетчик отправителя
	require.Eventually(t, func() bool {
		return bob.Statistics().SenderSnapshot().ProcessedPkts == 5
	}, 2*time.Second, 10*time.Millisecond)

	// у алисы появляется учет источника боба
	bobSSRC := bob.ControlSession().SSRC()
	require.Eventually(t, func() bool {
		recv, ok := alice.Statistics().ReceiverSnapshot()[bobSSRC]
		return ok && recv.ProcessedPkts == 5
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamPushAfterClose(t *testing.T) {
	alice, _ := startStreamPair(t)
	require.NoError(t, alice.Close())

	assert.ErrorIs(t, alice.PushFrame([]byte{0x01}), rtcp.ErrSessionNotRunning)

	_, err := alice.PullFrame(context.Background())
	assert.ErrorIs(t, err, rtcp.ErrSessionNotRunning)

	// повторное закрытие безопасно
	assert.NoError(t, alice.Close())
}

func TestStreamCloseTerminatesControlSession(t *testing.T) {
	_, bob := startStreamPair(t)

	require.NoError(t, bob.PushFrame([]byte{0x01}))
	require.NoError(t, bob.Close())
	assert.False(t, bob.ControlSession().Active())

	// после завершения отчеты не генерируются
	var rtcpErr *rtcp.Error
	err := bob.ControlSession().GenerateReport()
	require.Error(t, err)
	assert.True(t, errors.As(err, &rtcpErr))
	assert.Equal(t, rtcp.ErrorCodeSessionNotRunning, rtcpErr.Code)
}

func TestStreamStartTwice(t *testing.T) {
	alice, _ := startStreamPair(t)
	assert.Error(t, alice.Start(context.Background()))
}
