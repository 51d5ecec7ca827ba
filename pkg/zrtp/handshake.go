package zrtp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/looplab/fsm"
)

// Role - роль стороны в обмене ключами
type Role int

const (
	// RoleResponder отправляет DHPart1
	RoleResponder Role = iota
	// RoleInitiator отправляет DHPart2
	RoleInitiator
)

// Состояния рукопожатия
const (
	StateIdle      = "idle"      // Обмен не начат
	StateSent      = "sent"      // Свое сообщение отправлено
	StateReceived  = "received"  // Сообщение удаленной стороны принято
	StateCompleted = "completed" // Общий секрет вычислен
	StateFailed    = "failed"    // Обмен провален
)

const (
	eventSend    = "send"
	eventReceive = "receive"
	eventFail    = "fail"
)

// Ошибки рукопожатия
var (
	// ErrHandshakeNotCompleted - общий секрет еще не вычислен
	ErrHandshakeNotCompleted = errors.New("обмен ключами не завершен")
	// ErrUnexpectedMessage - сообщение не соответствует роли удаленной стороны
	ErrUnexpectedMessage = errors.New("неожиданный тип сообщения для роли")
)

// HandshakeConfig - конфигурация рукопожатия
type HandshakeConfig struct {
	// Role - роль локальной стороны
	Role Role

	// MACKey - ключ подписи сообщений (опционально). Если задан,
	// исходящие сообщения подписываются, входящие проверяются.
	MACKey []byte
}

// Handshake - конечный автомат обмена ключами Диффи-Хеллмана
type Handshake struct {
	role    Role
	macKey  []byte
	keypair *Keypair

	hashImage [hashImageSize]byte
	rs1ID     [secretIDSize]byte
	rs2ID     [secretIDSize]byte
	auxID     [secretIDSize]byte
	pbxID     [secretIDSize]byte

	state *fsm.FSM

	mu     sync.Mutex
	secret []byte
}

// NewHandshake создает рукопожатие: генерирует ключевую пару,
// звено хеш-цепочки и идентификаторы секретов.
func NewHandshake(config HandshakeConfig) (*Handshake, error) {
	keypair, err := GenerateKeypair()
	if err != nil {
		return nil, err
	}

	h := &Handshake{
		role:    config.Role,
		macKey:  config.MACKey,
		keypair: keypair,
	}

	// H1 = SHA256(H0), H0 остается секретом локальной стороны
	var h0 [hashImageSize]byte
	if _, err := rand.Read(h0[:]); err != nil {
		return nil, fmt.Errorf("не удалось создать хеш-цепочку: %w", err)
	}
	h.hashImage = sha256.Sum256(h0[:])

	for _, id := range []*[secretIDSize]byte{&h.rs1ID, &h.rs2ID, &h.auxID, &h.pbxID} {
		if _, err := rand.Read(id[:]); err != nil {
			return nil, fmt.Errorf("не удалось создать идентификаторы секретов: %w", err)
		}
	}

	h.state = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventSend, Src: []string{StateIdle}, Dst: StateSent},
			{Name: eventSend, Src: []string{StateReceived}, Dst: StateCompleted},
			{Name: eventReceive, Src: []string{StateIdle}, Dst: StateReceived},
			{Name: eventReceive, Src: []string{StateSent}, Dst: StateCompleted},
			{Name: eventFail, Src: []string{StateIdle, StateSent, StateReceived}, Dst: StateFailed},
		}, nil,
	)

	return h, nil
}

// localType возвращает тип исходящего сообщения для роли
func (h *Handshake) localType() MessageType {
	if h.role == RoleInitiator {
		return MessageTypeDHPart2
	}
	return MessageTypeDHPart1
}

// peerType возвращает ожидаемый тип сообщения удаленной стороны
func (h *Handshake) peerType() MessageType {
	if h.role == RoleInitiator {
		return MessageTypeDHPart1
	}
	return MessageTypeDHPart2
}

// LocalMessage строит сообщение локальной стороны и продвигает автомат
func (h *Handshake) LocalMessage() (*DHPart, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := &DHPart{
		Type:        h.localType(),
		HashImage:   h.hashImage,
		RS1ID:       h.rs1ID,
		RS2ID:       h.rs2ID,
		AuxSecretID: h.auxID,
		PBXSecretID: h.pbxID,
		PublicKey:   h.keypair.PublicKey(),
	}
	if len(h.macKey) > 0 {
		msg.Sign(h.macKey)
	}

	if err := h.state.Event(context.Background(), eventSend); err != nil {
		return nil, fmt.Errorf("недопустимый переход рукопожатия: %w", err)
	}
	return msg, nil
}

// HandleMessage обрабатывает сообщение удаленной стороны.
// По получении вычисляется общий секрет; некорректный открытый ключ
// переводит автомат в failed.
func (h *Handshake) HandleMessage(msg *DHPart) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if msg.Type != h.peerType() {
		return fmt.Errorf("%w: %q", ErrUnexpectedMessage, msg.Type[:])
	}
	if len(h.macKey) > 0 {
		if err := msg.VerifyMAC(h.macKey); err != nil {
			return err
		}
	}

	secret, err := h.keypair.SharedSecret(msg.PublicKey)
	if err != nil {
		_ = h.state.Event(context.Background(), eventFail)
		slog.Warn("обмен ключами провален", slog.Any("error", err))
		return err
	}

	if err := h.state.Event(context.Background(), eventReceive); err != nil {
		return fmt.Errorf("недопустимый переход рукопожатия: %w", err)
	}

	h.secret = secret
	return nil
}

// State возвращает текущее состояние рукопожатия
func (h *Handshake) State() string {
	return h.state.Current()
}

// Completed сообщает, вычислен ли общий секрет
func (h *Handshake) Completed() bool {
	return h.state.Current() == StateCompleted
}

// SharedSecret возвращает общий секрет после завершения обмена.
// Пригоден как PSK для шифрованного транспорта.
func (h *Handshake) SharedSecret() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.secret == nil {
		return nil, ErrHandshakeNotCompleted
	}
	out := make([]byte, len(h.secret))
	copy(out, h.secret)
	return out, nil
}
