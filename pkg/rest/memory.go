package rest

import (
	"context"
	"sync"
	"time"

	watt "watt/watt-client"
)

// Memory is a Repository held in process memory. serve --memory uses it
// and so do the tests.
type Memory struct {
	mu         sync.Mutex
	feedback   []watt.Feedback
	appliances []watt.Appliance
	users      map[string]watt.User
	nextID     int64
}

func NewMemory() *Memory {
	return &Memory{users: make(map[string]watt.User)}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (m *Memory) ListFeedback(context.Context) ([]watt.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]watt.Feedback{}, m.feedback...), nil
}

func (m *Memory) InsertFeedback(_ context.Context, _ int64, f watt.Feedback) (watt.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.ID = m.id()
	f.CreatedAt = now()
	m.feedback = append(m.feedback, f)
	return f, nil
}

func (m *Memory) UpdateFeedback(_ context.Context, id int64, message string) (watt.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.feedback {
		if m.feedback[i].ID == id {
			m.feedback[i].Message = message
			return m.feedback[i], nil
		}
	}
	return watt.Feedback{}, watt.ErrNotFound
}

func (m *Memory) DeleteFeedback(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.feedback {
		if m.feedback[i].ID == id {
			m.feedback = append(m.feedback[:i], m.feedback[i+1:]...)
			return nil
		}
	}
	return watt.ErrNotFound
}

func (m *Memory) ListAppliances(context.Context) ([]watt.Appliance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]watt.Appliance{}, m.appliances...), nil
}

func (m *Memory) InsertAppliance(_ context.Context, a watt.Appliance) (watt.Appliance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.id()
	a.RegisteredAt = now()
	m.appliances = append(m.appliances, a)
	return a, nil
}

func (m *Memory) UpdateAppliance(_ context.Context, a watt.Appliance) (watt.Appliance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.appliances {
		if m.appliances[i].ID == a.ID {
			a.RegisteredAt = m.appliances[i].RegisteredAt
			m.appliances[i] = a
			return a, nil
		}
	}
	return watt.Appliance{}, watt.ErrNotFound
}

func (m *Memory) DeleteAppliance(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.appliances {
		if m.appliances[i].ID == id {
			m.appliances = append(m.appliances[:i], m.appliances[i+1:]...)
			return nil
		}
	}
	return watt.ErrNotFound
}

func (m *Memory) NewUser(_ context.Context, user watt.User) (watt.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Username]; ok {
		return watt.User{}, watt.ErrConflict
	}
	user.ID = m.id()
	m.users[user.Username] = user
	return user, nil
}

func (m *Memory) GetUser(_ context.Context, username string) (watt.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[username]
	if !ok {
		return watt.User{}, watt.ErrNotFound
	}
	return user, nil
}
