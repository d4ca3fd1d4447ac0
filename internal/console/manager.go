package console

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowpbx/voiceswitch/internal/command"
	"github.com/flowpbx/voiceswitch/internal/directory"
	"github.com/flowpbx/voiceswitch/internal/ia"
	"github.com/flowpbx/voiceswitch/internal/matcher"
)

// ErrNotFound is returned when no console has the requested ID.
var ErrNotFound = errors.New("console not found")

// SenderFactory returns the transport sender for a console.
type SenderFactory func(consoleID string) command.Sender

// Manager owns the consoles of this process and the directory snapshot
// they are configured from. Consoles share no mutable state.
type Manager struct {
	ctx     context.Context
	table   *ia.Table
	matcher *matcher.Matcher
	senders SenderFactory
	logger  *slog.Logger

	mu       sync.RWMutex
	consoles map[string]*Console
	dir      *directory.Facility

	statsMu sync.Mutex
	matches map[matcher.Method]uint64
}

// NewManager creates a console manager. ctx bounds every background
// detection started by its consoles.
func NewManager(ctx context.Context, dir *directory.Facility, m *matcher.Matcher, senders SenderFactory, logger *slog.Logger) *Manager {
	if dir == nil {
		dir = &directory.Facility{}
	}
	return &Manager{
		ctx:      ctx,
		table:    ia.MustTable(ia.DefaultFunctions),
		matcher:  m,
		senders:  senders,
		logger:   logger.With("subsystem", "console"),
		consoles: make(map[string]*Console),
		dir:      dir,
		matches:  make(map[matcher.Method]uint64),
	}
}

// Create adds a console. callsign is the configured position used when
// auto-detection finds nothing; it may be empty.
func (m *Manager) Create(callsign string) *Console {
	id := uuid.New().String()
	c := &Console{
		id:        id,
		callsign:  callsign,
		createdAt: time.Now(),
		ctx:       m.ctx,
		directory: m.Directory,
		table:     m.table,
		matcher:   m.matcher,
		sender:    m.senders(id),
		onMatch:   m.recordMatch,
		logger:    m.logger.With("console_id", id),
	}

	m.mu.Lock()
	m.consoles[id] = c
	m.mu.Unlock()

	m.logger.Info("console created", "console_id", id, "callsign", callsign)
	return c
}

// Get returns the console with id.
func (m *Manager) Get(id string) (*Console, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.consoles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// List returns views of all consoles ordered by creation time.
func (m *Manager) List() []View {
	m.mu.RLock()
	consoles := make([]*Console, 0, len(m.consoles))
	for _, c := range m.consoles {
		consoles = append(consoles, c)
	}
	m.mu.RUnlock()

	views := make([]View, 0, len(consoles))
	for _, c := range consoles {
		views = append(views, c.View())
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})
	return views
}

// Delete closes a console's session, cancels its detection and removes it.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	c, ok := m.consoles[id]
	if ok {
		delete(m.consoles, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	c.cancelDetection()
	if err := c.Close(); err != nil && !errors.Is(err, ErrNoSession) {
		m.logger.Warn("closing console session", "console_id", id, "error", err)
	}
	m.logger.Info("console deleted", "console_id", id)
	return nil
}

// Count returns the number of consoles.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.consoles)
}

// Directory returns the current directory snapshot.
func (m *Manager) Directory() *directory.Facility {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dir
}

// SetDirectory replaces the directory snapshot. Sessions already open keep
// the dial codes they started with.
func (m *Manager) SetDirectory(dir *directory.Facility) {
	if dir == nil {
		dir = &directory.Facility{}
	}
	m.mu.Lock()
	m.dir = dir
	m.mu.Unlock()
	m.logger.Info("directory replaced", "positions", dir.Count())
}

// SessionStates counts open dial sessions by state name.
func (m *Manager) SessionStates() map[string]int {
	m.mu.RLock()
	consoles := make([]*Console, 0, len(m.consoles))
	for _, c := range m.consoles {
		consoles = append(consoles, c)
	}
	m.mu.RUnlock()

	states := make(map[string]int)
	for _, c := range consoles {
		if s, ok := c.callState(); ok {
			states[s.String()]++
		}
	}
	return states
}

func (m *Manager) recordMatch(match *matcher.Match) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	m.matches[match.Method]++
}

// MatchCounts returns how many detections resolved by each method.
func (m *Manager) MatchCounts() map[string]uint64 {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	out := make(map[string]uint64, len(m.matches))
	for k, v := range m.matches {
		out[string(k)] = v
	}
	return out
}
