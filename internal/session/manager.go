package session

import (
	"sync"

	"github.com/pkg/errors"

	pkgLogger "musegen/pkg/logger"
)

// Manager owns the active sessions, keyed by channel. At most one session
// runs per channel; sessions never share state with each other.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *pkgLogger.Logger
}

// NewManager creates an empty session registry.
func NewManager(logger *pkgLogger.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		logger:   logger.WithComponent("sessions"),
	}
}

// Start creates and registers a session for the config's channel. Fails if
// one is already running there.
func (m *Manager) Start(cfg Config, renderer Renderer, poster Poster) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[cfg.ChannelID]; exists {
		return nil, errors.Errorf("a session is already running in channel %s", cfg.ChannelID)
	}

	s, err := New(cfg, renderer, poster, m.logger)
	if err != nil {
		return nil, err
	}
	m.sessions[cfg.ChannelID] = s
	return s, nil
}

// Get returns the active session for a channel.
func (m *Manager) Get(channelID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[channelID]
	return s, ok
}

// Stop deregisters and shuts down the channel's session. The session's
// loops wind down cooperatively; Stop does not wait for them.
func (m *Manager) Stop(channelID string) error {
	m.mu.Lock()
	s, ok := m.sessions[channelID]
	if ok {
		delete(m.sessions, channelID)
	}
	m.mu.Unlock()

	if !ok {
		return errors.Errorf("no session is running in channel %s", channelID)
	}
	s.Stop()
	return nil
}

// StopAll shuts down every active session and waits for their loops to
// finish. Used at process shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.Stop()
	}
	for _, s := range all {
		s.Wait()
	}
}
