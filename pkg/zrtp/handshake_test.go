package zrtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeypairSharedSecretAgreement(t *testing.T) {
	alice, err := GenerateKeypair()
	require.NoError(t, err)
	bob, err := GenerateKeypair()
	require.NoError(t, err)

	secretA, err := alice.SharedSecret(bob.PublicKey())
	require.NoError(t, err)
	secretB, err := bob.SharedSecret(alice.PublicKey())
	require.NoError(t, err)

	assert.Equal(t, secretA, secretB)
	assert.Len(t, secretA, 32)
}

func TestKeypairRejectsDegeneratePublicKey(t *testing.T) {
	alice, err := GenerateKeypair()
	require.NoError(t, err)

	// ключ 0 и ключ 1 вырождены
	var zero [publicKeySize]byte
	_, err = alice.SharedSecret(zero)
	assert.Error(t, err)

	var one [publicKeySize]byte
	one[publicKeySize-1] = 1
	_, err = alice.SharedSecret(one)
	assert.Error(t, err)
}

func TestHandshakeExchange(t *testing.T) {
	macKey := []byte("session-mac-key")

	initiator, err := NewHandshake(HandshakeConfig{Role: RoleInitiator, MACKey: macKey})
	require.NoError(t, err)
	responder, err := NewHandshake(HandshakeConfig{Role: RoleResponder, MACKey: macKey})
	require.NoError(t, err)

	assert.Equal(t, StateIdle, initiator.State())

	// responder отправляет DHPart1
	part1, err := responder.LocalMessage()
	require.NoError(t, err)
	assert.Equal(t, MessageTypeDHPart1, part1.Type)
	assert.Equal(t, StateSent, responder.State())

	// initiator принимает DHPart1 и отвечает DHPart2
	require.NoError(t, initiator.HandleMessage(part1))
	assert.Equal(t, StateReceived, initiator.State())

	part2, err := initiator.LocalMessage()
	require.NoError(t, err)
	assert.Equal(t, MessageTypeDHPart2, part2.Type)
	assert.True(t, initiator.Completed())

	require.NoError(t, responder.HandleMessage(part2))
	assert.True(t, responder.Completed())

	// обе стороны выводят один секрет
	secretI, err := initiator.SharedSecret()
	require.NoError(t, err)
	secretR, err := responder.SharedSecret()
	require.NoError(t, err)
	assert.Equal(t, secretI, secretR)
}

func TestHandshakeOverWire(t *testing.T) {
	initiator, err := NewHandshake(HandshakeConfig{Role: RoleInitiator})
	require.NoError(t, err)
	responder, err := NewHandshake(HandshakeConfig{Role: RoleResponder})
	require.NoError(t, err)

	part1, err := responder.LocalMessage()
	require.NoError(t, err)
	wire, err := part1.Marshal()
	require.NoError(t, err)

	var received DHPart
	require.NoError(t, received.Unmarshal(wire))
	require.NoError(t, initiator.HandleMessage(&received))

	part2, err := initiator.LocalMessage()
	require.NoError(t, err)
	wire2, err := part2.Marshal()
	require.NoError(t, err)

	var received2 DHPart
	require.NoError(t, received2.Unmarshal(wire2))
	require.NoError(t, responder.HandleMessage(&received2))

	secretI, err := initiator.SharedSecret()
	require.NoError(t, err)
	secretR, err := responder.SharedSecret()
	require.NoError(t, err)
	assert.Equal(t, secretI, secretR)
}

func TestHandshakeRejectsWrongMessageType(t *testing.T) {
	initiator, err := NewHandshake(HandshakeConfig{Role: RoleInitiator})
	require.NoError(t, err)
	other, err := NewHandshake(HandshakeConfig{Role: RoleInitiator})
	require.NoError(t, err)

	// initiator ожидает DHPart1, а не DHPart2
	part2, err := other.LocalMessage()
	require.NoError(t, err)
	assert.ErrorIs(t, initiator.HandleMessage(part2), ErrUnexpectedMessage)
	assert.Equal(t, StateIdle, initiator.State())
}

func TestHandshakeRejectsBadMAC(t *testing.T) {
	initiator, err := NewHandshake(HandshakeConfig{Role: RoleInitiator, MACKey: []byte("key-a")})
	require.NoError(t, err)
	responder, err := NewHandshake(HandshakeConfig{Role: RoleResponder, MACKey: []byte("key-b")})
	require.NoError(t, err)

	part1, err := responder.LocalMessage()
	require.NoError(t, err)
	assert.ErrorIs(t, initiator.HandleMessage(part1), ErrBadMAC)
}

func TestHandshakeFailsOnDegenerateKey(t *testing.T) {
	initiator, err := NewHandshake(HandshakeConfig{Role: RoleInitiator})
	require.NoError(t, err)
	responder, err := NewHandshake(HandshakeConfig{Role: RoleResponder})
	require.NoError(t, err)

	part1, err := responder.LocalMessage()
	require.NoError(t, err)
	part1.PublicKey = [publicKeySize]byte{}

	require.Error(t, initiator.HandleMessage(part1))
	assert.Equal(t, StateFailed, initiator.State())

	_, err = initiator.SharedSecret()
	assert.ErrorIs(t, err, ErrHandshakeNotCompleted)
}

func TestSharedSecretBeforeCompletion(t *testing.T) {
	h, err := NewHandshake(HandshakeConfig{Role: RoleResponder})
	require.NoError(t, err)

	_, err = h.SharedSecret()
	assert.ErrorIs(t, err, ErrHandshakeNotCompleted)
}
