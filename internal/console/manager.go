package console

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status marks whether a console is still attached.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var ErrNotFound = errors.New("console not found")

// Console is one mounted speech screen: a recognition controller plus a
// speaker are bound to it for the duration of a connection.
type Console struct {
	ID             string    `json:"console_id"`
	Status         Status    `json:"status"`
	Language       string    `json:"language"`
	Voice          string    `json:"voice"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Manager tracks mounted consoles and expires inactive ones so no listening
// session outlives an abandoned screen.
type Manager struct {
	mu                sync.RWMutex
	consoles          map[string]*Console
	inactivityTimeout time.Duration
	onExpire          func(*Console)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	return &Manager{
		consoles:          make(map[string]*Console),
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(*Console)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create(language, voice string) *Console {
	now := time.Now().UTC()
	c := &Console{
		ID:             uuid.NewString(),
		Status:         StatusActive,
		Language:       language,
		Voice:          voice,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.consoles[c.ID] = c
	return clone(c)
}

func (m *Manager) Get(id string) (*Console, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.consoles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(c), nil
}

func (m *Manager) Touch(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.consoles[id]
	if !ok {
		return ErrNotFound
	}
	c.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) End(id string) (*Console, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.consoles[id]
	if !ok {
		return nil, ErrNotFound
	}
	c.Status = StatusEnded
	c.LastActivityAt = time.Now().UTC()
	return clone(c), nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, c := range m.consoles {
		if c.Status == StatusActive {
			count++
		}
	}
	return count
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Console

	m.mu.Lock()
	for _, c := range m.consoles {
		if c.Status != StatusActive {
			continue
		}
		if now.Sub(c.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		c.Status = StatusEnded
		c.LastActivityAt = now
		expired = append(expired, clone(c))
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, c := range expired {
			hook(c)
		}
	}
}

func clone(c *Console) *Console {
	out := *c
	return &out
}
