package tactile

import (
	"context"
	"fmt"
	"sync"

	"termcoder/internal/config"
	"termcoder/internal/types"
)

// Kind selects which persistent session a command runs in.
type Kind string

const (
	KindShell      Kind = "shell"
	KindPowerShell Kind = "powershell"
)

// Manager owns at most one live session per kind, created on first use.
type Manager struct {
	base Options

	mu       sync.Mutex
	sessions map[Kind]*Session
	// lookupPowerShell is swapped in tests.
	lookupPowerShell func() (Flavor, error)
}

// NewManager returns a manager whose sessions start from base.
func NewManager(base Options) *Manager {
	return &Manager{
		base:             base,
		sessions:         make(map[Kind]*Session),
		lookupPowerShell: FindPowerShell,
	}
}

// NewManagerFromConfig builds a manager from shell settings.
func NewManagerFromConfig(cfg *config.Config, workspace string, input types.InputFunc) *Manager {
	return NewManager(Options{
		Flavor:      DetectShell(cfg.Shell.Shell),
		Dir:         workspace,
		QuietPeriod: cfg.GetQuietPeriod(),
		IdleQuiet:   cfg.GetIdleQuiet(),
		HardTimeout: cfg.GetHardTimeout(),
		StopGrace:   cfg.GetStopGrace(),
		Input:       input,
	})
}

// Session returns the running session of the given kind, starting it if
// needed. A session whose process died is replaced.
func (m *Manager) Session(ctx context.Context, kind Kind) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[kind]; ok && s.State() == StateRunning {
		return s, nil
	}

	opts := m.base
	switch kind {
	case KindShell:
	case KindPowerShell:
		flavor, err := m.lookupPowerShell()
		if err != nil {
			return nil, err
		}
		opts.Flavor = flavor
	default:
		return nil, fmt.Errorf("unknown session kind %q", kind)
	}

	s := NewSession(opts)
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	m.sessions[kind] = s
	return s, nil
}

// Execute runs a command in the session of the given kind.
func (m *Manager) Execute(ctx context.Context, kind Kind, command string, interactive bool) (*Result, error) {
	s, err := m.Session(ctx, kind)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, command, interactive)
}

// ChangeDirectory changes the working directory of the given session.
func (m *Manager) ChangeDirectory(ctx context.Context, kind Kind, path string) (string, error) {
	s, err := m.Session(ctx, kind)
	if err != nil {
		return "", err
	}
	return s.ChangeDirectory(ctx, path)
}

// CurrentDirectory reports the working directory of the given session.
func (m *Manager) CurrentDirectory(ctx context.Context, kind Kind) (string, error) {
	s, err := m.Session(ctx, kind)
	if err != nil {
		return "", err
	}
	return s.CurrentDirectory(ctx)
}

// ResetDirectory returns the given session to its start directory.
func (m *Manager) ResetDirectory(ctx context.Context, kind Kind) (string, error) {
	s, err := m.Session(ctx, kind)
	if err != nil {
		return "", err
	}
	return s.ResetDirectory(ctx)
}

// Active reports which kinds currently have a running session.
func (m *Manager) Active() []Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kinds []Kind
	for _, k := range []Kind{KindShell, KindPowerShell} {
		if s, ok := m.sessions[k]; ok && s.State() == StateRunning {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// StopAll stops every session. Safe to call more than once.
func (m *Manager) StopAll() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[Kind]*Session)
	m.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		if err := s.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
