package pcm

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var (
	manager     *Manager
	managerOnce sync.Once
)

// Manager reference counts PortAudio initialization across streams and
// device probes.
type Manager struct {
	mu          sync.Mutex
	initialized bool
	refCount    int
	// replaced in tests
	initialize func() error
	terminate  func() error
}

// GetManager returns the process wide manager.
func GetManager() *Manager {
	managerOnce.Do(func() {
		manager = &Manager{
			initialize: portaudio.Initialize,
			terminate:  portaudio.Terminate,
		}
	})
	return manager
}

func (m *Manager) Acquire() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		if err := m.initialize(); err != nil {
			return fmt.Errorf("failed to initialize PortAudio: %w", err)
		}
		m.initialized = true
	}

	m.refCount++
	return nil
}

func (m *Manager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refCount > 0 {
		m.refCount--
	}

	if m.refCount == 0 && m.initialized {
		if err := m.terminate(); err != nil {
			return fmt.Errorf("failed to terminate PortAudio: %w", err)
		}
		m.initialized = false
	}

	return nil
}

func (m *Manager) IsInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}
