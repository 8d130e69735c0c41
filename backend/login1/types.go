package login1

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

// Hooks are run around a system suspend. Suspend runs while the delay lock
// is held, Resume once the system is back.
type Hooks interface {
	Suspend(ctx context.Context) error
	Resume(ctx context.Context) error
}

// SleepWatcher follows logind sleep announcements.
type SleepWatcher struct {
	conn    *dbus.Conn
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	hooks   Hooks
	signals chan *dbus.Signal
	done    chan struct{}

	mu   sync.Mutex
	lock *os.File
}
