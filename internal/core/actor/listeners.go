package actor

import (
	"fmt"

	"github.com/berfenger/glow2mqtt/internal/core/domain"

	"go.uber.org/zap"
)

type listenerEntry struct {
	handle   domain.ListenerHandle
	listener domain.Listener
}

// listenerRegistry keeps listeners in registration order. It is owned by the
// session actor and only touched from its mailbox.
type listenerRegistry struct {
	nextHandle domain.ListenerHandle
	entries    []listenerEntry
}

func (r *listenerRegistry) Register(listener domain.Listener) domain.ListenerHandle {
	r.nextHandle++
	r.entries = append(r.entries, listenerEntry{
		handle:   r.nextHandle,
		listener: listener,
	})
	return r.nextHandle
}

func (r *listenerRegistry) Unregister(handle domain.ListenerHandle) bool {
	for i, e := range r.entries {
		if e.handle == handle {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (r *listenerRegistry) Len() int {
	return len(r.entries)
}

// Notify invokes every listener in order. A panicking listener is logged and
// skipped, the rest still run.
func (r *listenerRegistry) Notify(update domain.TelemetryUpdate, logger *zap.Logger) {
	for _, e := range r.entries {
		invokeListener(e, update, logger)
	}
}

func invokeListener(e listenerEntry, update domain.TelemetryUpdate, logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("listener panicked", zap.Uint64("handle", uint64(e.handle)), zap.String("reason", fmt.Sprint(r)))
		}
	}()
	e.listener(update)
}
