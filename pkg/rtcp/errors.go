package rtcp

import "fmt"

// ErrorCode определяет типизированные коды ошибок RTCP движка.
// Позволяет классифицировать ошибки по категориям и обрабатывать их
// соответствующим образом (фатальные для сессии vs локальные для пакета).
type ErrorCode int

const (
	// Ошибки жизненного цикла сессии
	ErrorCodeAllocation ErrorCode = iota + 2000 // Не удалось создать runner или ресурсы
	ErrorCodeSessionNotRunning
	ErrorCodeSessionAlreadyStarted
	ErrorCodeInvalidValue // Некорректное значение конфигурации

	// Транспортные ошибки
	ErrorCodeSendFailed

	// Ошибки декодирования входящих пакетов
	ErrorCodeInvalidPacket
	ErrorCodeTruncatedPacket
	ErrorCodeUnknownPacketType
)

// String возвращает строковое представление кода ошибки
func (code ErrorCode) String() string {
	switch code {
	case ErrorCodeAllocation:
		return "Allocation"
	case ErrorCodeSessionNotRunning:
		return "SessionNotRunning"
	case ErrorCodeSessionAlreadyStarted:
		return "SessionAlreadyStarted"
	case ErrorCodeInvalidValue:
		return "InvalidValue"
	case ErrorCodeSendFailed:
		return "SendFailed"
	case ErrorCodeInvalidPacket:
		return "InvalidPacket"
	case ErrorCodeTruncatedPacket:
		return "TruncatedPacket"
	case ErrorCodeUnknownPacketType:
		return "UnknownPacketType"
	default:
		return fmt.Sprintf("Unknown(%d)", int(code))
	}
}

// Error базовая структура ошибок RTCP движка.
// Предоставляет расширенную информацию об ошибке включая:
//   - Типизированный код ошибки
//   - CNAME сессии для сопоставления с логами
//   - Возможность обертывания других ошибок
type Error struct {
	Code    ErrorCode
	Message string
	CNAME   string
	Wrapped error
}

// Error реализует интерфейс error, возвращая форматированное сообщение об ошибке.
func (e *Error) Error() string {
	if e.CNAME != "" {
		return fmt.Sprintf("[rtcp:%s] сессия %s: %s", e.Code, e.CNAME, e.Message)
	}
	return fmt.Sprintf("[rtcp:%s] %s", e.Code, e.Message)
}

// Unwrap возвращает обернутую ошибку, поддерживая errors.Unwrap.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is поддерживает errors.Is, позволяя сравнивать ошибки по коду.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// newError создает ошибку RTCP движка с заданным кодом
func newError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// wrapError создает ошибку с кодом, оборачивая исходную причину
func wrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Wrapped: cause}
}

// Сентинельные значения для errors.Is проверок.
// Сравнение идет по коду, поэтому эти экземпляры можно использовать
// как target без учета текста сообщения.
var (
	ErrAllocation        = newError(ErrorCodeAllocation, "не удалось выделить ресурсы сессии")
	ErrSessionNotRunning = newError(ErrorCodeSessionNotRunning, "сессия не запущена")
	ErrInvalidValue      = newError(ErrorCodeInvalidValue, "некорректное значение")
	ErrSendFailed        = newError(ErrorCodeSendFailed, "ошибка отправки RTCP")
	ErrInvalidPacket     = newError(ErrorCodeInvalidPacket, "некорректный RTCP пакет")
	ErrTruncatedPacket   = newError(ErrorCodeTruncatedPacket, "обрезанный RTCP пакет")
	ErrUnknownPacketType = newError(ErrorCodeUnknownPacketType, "неизвестный тип RTCP пакета")
)
