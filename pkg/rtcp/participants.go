// participants.go - реестр участников RTCP сессии
//
// Отслеживает известные удаленные endpoints и наблюдаемые у них SSRC.
// Участники только добавляются: индивидуального удаления нет, оценка
// members уменьшается исключительно через агрегатную математику
// reconsideration алгоритма.
package rtcp

import (
	"net"
	"sync"
)

// Participant описывает удаленного участника сессии: адрес endpoint
// и множество SSRC, которые у него наблюдались.
type Participant struct {
	Addr  net.Addr // Адрес для отправки отчетов
	CNAME string   // Каноническое имя из SDES, если получено
	SSRCs []uint32 // Наблюдаемые SSRC этого участника
}

// ParticipantRegistry упорядоченный реестр участников сессии.
// Порядок добавления сохраняется: отчеты рассылаются в том же порядке.
type ParticipantRegistry struct {
	mutex        sync.RWMutex
	participants []*Participant
	byAddr       map[string]*Participant
	ssrcSeen     map[uint32]bool
}

// NewParticipantRegistry создает пустой реестр
func NewParticipantRegistry() *ParticipantRegistry {
	return &ParticipantRegistry{
		byAddr:   make(map[string]*Participant),
		ssrcSeen: make(map[uint32]bool),
	}
}

// Add регистрирует нового участника. Возвращает false если endpoint
// с таким адресом уже зарегистрирован.
func (pr *ParticipantRegistry) Add(addr net.Addr) bool {
	pr.mutex.Lock()
	defer pr.mutex.Unlock()

	key := addr.String()
	if _, exists := pr.byAddr[key]; exists {
		return false
	}

	p := &Participant{Addr: addr}
	pr.participants = append(pr.participants, p)
	pr.byAddr[key] = p

	return true
}

// Has проверяет, зарегистрирован ли endpoint с данным адресом
func (pr *ParticipantRegistry) Has(addr net.Addr) bool {
	pr.mutex.RLock()
	defer pr.mutex.RUnlock()

	_, exists := pr.byAddr[addr.String()]
	return exists
}

// ObserveSSRC отмечает SSRC как наблюдаемый. Возвращает true если
// SSRC встречен впервые. Если addr известен, SSRC приписывается
// соответствующему участнику.
func (pr *ParticipantRegistry) ObserveSSRC(ssrc uint32, addr net.Addr) bool {
	pr.mutex.Lock()
	defer pr.mutex.Unlock()

	if pr.ssrcSeen[ssrc] {
		return false
	}
	pr.ssrcSeen[ssrc] = true

	if addr != nil {
		if p, exists := pr.byAddr[addr.String()]; exists {
			p.SSRCs = append(p.SSRCs, ssrc)
		}
	}

	return true
}

// SetCNAME сохраняет каноническое имя участника, полученное из SDES
func (pr *ParticipantRegistry) SetCNAME(addr net.Addr, cname string) {
	if addr == nil {
		return
	}

	pr.mutex.Lock()
	defer pr.mutex.Unlock()

	if p, exists := pr.byAddr[addr.String()]; exists {
		p.CNAME = cname
	}
}

// List возвращает снимок списка участников в порядке добавления
func (pr *ParticipantRegistry) List() []Participant {
	pr.mutex.RLock()
	defer pr.mutex.RUnlock()

	result := make([]Participant, 0, len(pr.participants))
	for _, p := range pr.participants {
		result = append(result, *p)
	}

	return result
}

// Count возвращает число зарегистрированных участников
func (pr *ParticipantRegistry) Count() int {
	pr.mutex.RLock()
	defer pr.mutex.RUnlock()
	return len(pr.participants)
}
