// Package zrtp реализует обмен ключами Диффи-Хеллмана для медиапотока:
// кодек сообщений DHPart, генерацию ключевых пар группы 3072 бит и
// конечный автомат рукопожатия. Полученный общий секрет используется
// как PSK для шифрованного транспорта.
package zrtp

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// Ошибки разбора сообщений
var (
	// ErrTruncatedMessage - сообщение короче заявленной длины
	ErrTruncatedMessage = errors.New("усеченное ZRTP сообщение")
	// ErrBadPreamble - неверная преамбула сообщения
	ErrBadPreamble = errors.New("неверная преамбула ZRTP сообщения")
	// ErrBadCRC - контрольная сумма кадра не сходится
	ErrBadCRC = errors.New("неверная контрольная сумма ZRTP кадра")
	// ErrUnknownMessageType - неизвестный тип сообщения
	ErrUnknownMessageType = errors.New("неизвестный тип ZRTP сообщения")
	// ErrBadMAC - MAC сообщения не прошел проверку
	ErrBadMAC = errors.New("неверный MAC ZRTP сообщения")
)

const (
	// messagePreamble - магическое значение начала ZRTP сообщения
	messagePreamble uint16 = 0x505A

	// publicKeySize - размер открытого ключа группы DH-3072
	publicKeySize = 384

	// hashImageSize - размер образа хеш-цепочки
	hashImageSize = 32

	// secretIDSize - размер идентификатора разделяемого секрета
	secretIDSize = 8

	// macSize - размер усеченного MAC
	macSize = 8

	// заголовок: преамбула (2) + длина в словах (2) + тип (8)
	messageHeaderSize = 12

	// dhPartSize - полный размер кадра DHPart:
	// заголовок + образ хеша + 4 идентификатора секретов + ключ + MAC + CRC
	dhPartSize = messageHeaderSize + hashImageSize + 4*secretIDSize + publicKeySize + macSize + 4
)

// MessageType - восьмибайтовый тип ZRTP сообщения
type MessageType [8]byte

// Типы сообщений обмена ключами
var (
	MessageTypeDHPart1 = MessageType{'D', 'H', 'P', 'a', 'r', 't', '1', ' '}
	MessageTypeDHPart2 = MessageType{'D', 'H', 'P', 'a', 'r', 't', '2', ' '}
)

// crcTable - полином Кастаньоли, как предписывает RFC 6189 для CRC кадра
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// DHPart - сообщение обмена ключами Диффи-Хеллмана.
// DHPart1 отправляет отвечающая сторона, DHPart2 - инициатор.
type DHPart struct {
	Type MessageType

	// HashImage - очередное звено хеш-цепочки отправителя
	HashImage [hashImageSize]byte

	// Идентификаторы разделяемых секретов предыдущих сессий
	RS1ID       [secretIDSize]byte
	RS2ID       [secretIDSize]byte
	AuxSecretID [secretIDSize]byte
	PBXSecretID [secretIDSize]byte

	// PublicKey - открытый ключ DH отправителя
	PublicKey [publicKeySize]byte

	// MAC - усеченный HMAC-SHA256 тела сообщения
	MAC [macSize]byte
}

// Marshal сериализует сообщение в кадр с CRC
func (d *DHPart) Marshal() ([]byte, error) {
	if d.Type != MessageTypeDHPart1 && d.Type != MessageTypeDHPart2 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, d.Type[:])
	}

	buf := make([]byte, dhPartSize)
	binary.BigEndian.PutUint16(buf[0:2], messagePreamble)
	// длина сообщения в 32-битных словах, без CRC кадра
	binary.BigEndian.PutUint16(buf[2:4], uint16((dhPartSize-4)/4))
	copy(buf[4:12], d.Type[:])

	offset := messageHeaderSize
	copy(buf[offset:], d.HashImage[:])
	offset += hashImageSize
	copy(buf[offset:], d.RS1ID[:])
	offset += secretIDSize
	copy(buf[offset:], d.RS2ID[:])
	offset += secretIDSize
	copy(buf[offset:], d.AuxSecretID[:])
	offset += secretIDSize
	copy(buf[offset:], d.PBXSecretID[:])
	offset += secretIDSize
	copy(buf[offset:], d.PublicKey[:])
	offset += publicKeySize
	copy(buf[offset:], d.MAC[:])
	offset += macSize

	crc := crc32.Checksum(buf[:offset], crcTable)
	binary.BigEndian.PutUint32(buf[offset:], crc)
	return buf, nil
}

// Unmarshal разбирает кадр DHPart с проверкой преамбулы, длины и CRC
func (d *DHPart) Unmarshal(data []byte) error {
	if len(data) < messageHeaderSize {
		return fmt.Errorf("%w: %d байт", ErrTruncatedMessage, len(data))
	}
	if binary.BigEndian.Uint16(data[0:2]) != messagePreamble {
		return ErrBadPreamble
	}

	var msgType MessageType
	copy(msgType[:], data[4:12])
	if msgType != MessageTypeDHPart1 && msgType != MessageTypeDHPart2 {
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, msgType[:])
	}

	if len(data) < dhPartSize {
		return fmt.Errorf("%w: DHPart требует %d байт, получено %d",
			ErrTruncatedMessage, dhPartSize, len(data))
	}

	declaredWords := int(binary.BigEndian.Uint16(data[2:4]))
	if declaredWords*4 != dhPartSize-4 {
		return fmt.Errorf("%w: заявлено %d слов", ErrTruncatedMessage, declaredWords)
	}

	crc := binary.BigEndian.Uint32(data[dhPartSize-4 : dhPartSize])
	if crc32.Checksum(data[:dhPartSize-4], crcTable) != crc {
		return ErrBadCRC
	}

	d.Type = msgType
	offset := messageHeaderSize
	copy(d.HashImage[:], data[offset:])
	offset += hashImageSize
	copy(d.RS1ID[:], data[offset:])
	offset += secretIDSize
	copy(d.RS2ID[:], data[offset:])
	offset += secretIDSize
	copy(d.AuxSecretID[:], data[offset:])
	offset += secretIDSize
	copy(d.PBXSecretID[:], data[offset:])
	offset += secretIDSize
	copy(d.PublicKey[:], data[offset:])
	offset += publicKeySize
	copy(d.MAC[:], data[offset:])
	return nil
}

// ComputeMAC вычисляет усеченный HMAC-SHA256 тела сообщения
func (d *DHPart) ComputeMAC(key []byte) [macSize]byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(d.Type[:])
	mac.Write(d.HashImage[:])
	mac.Write(d.RS1ID[:])
	mac.Write(d.RS2ID[:])
	mac.Write(d.AuxSecretID[:])
	mac.Write(d.PBXSecretID[:])
	mac.Write(d.PublicKey[:])

	var out [macSize]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// Sign проставляет MAC сообщения с указанным ключом
func (d *DHPart) Sign(key []byte) {
	d.MAC = d.ComputeMAC(key)
}

// VerifyMAC проверяет MAC сообщения
func (d *DHPart) VerifyMAC(key []byte) error {
	expected := d.ComputeMAC(key)
	if !bytes.Equal(expected[:], d.MAC[:]) {
		return ErrBadMAC
	}
	return nil
}
