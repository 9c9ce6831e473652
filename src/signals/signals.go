// Package signals implements graceful-shutdown dispatch: a process-wide
// table of callbacks fired when the serving process receives SIGHUP. The
// table is only live while a handler is installed, so Register and
// Unregister are safe no-ops in non-daemon contexts such as tests or the
// client.
package signals

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
)

var hangupCounter = metrics.GetOrCreateCounter("cairn_sighup_received_total")

// registry holds the live callback table. nil means no handler is installed.
type registry struct {
	callbacks *xsync.MapOf[uint64, func()]
}

var (
	installMu sync.Mutex
	active    atomic.Value // *registry, possibly holding (*registry)(nil)
	nextID    uint64
)

func current() *registry {
	r, _ := active.Load().(*registry)
	return r
}

// Register adds a shutdown callback and returns a token for Unregister.
// When no handler is installed the callback is dropped and the zero token
// returned.
func Register(fn func()) uint64 {
	r := current()
	if r == nil {
		return 0
	}
	id := atomic.AddUint64(&nextID, 1)
	r.callbacks.Store(id, fn)
	return id
}

// Unregister removes a previously registered callback. Unknown and zero
// tokens are ignored.
func Unregister(id uint64) {
	if r := current(); r != nil && id != 0 {
		r.callbacks.Delete(id)
	}
}

// InstallHangupHandler installs a SIGHUP handler backed by a fresh callback
// table and returns a restore function that removes the handler and puts the
// previous table back. Installations nest, which tests rely on.
func InstallHangupHandler(logger *logrus.Entry) func() {
	installMu.Lock()
	defer installMu.Unlock()

	prev := current()
	r := &registry{callbacks: xsync.NewMapOf[uint64, func()]()}
	active.Store(r)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	go func() {
		for range ch {
			hangupCounter.Inc()
			logger.Info("Received SIGHUP, firing shutdown callbacks")
			fire(r, logger)
		}
	}()

	return func() {
		installMu.Lock()
		defer installMu.Unlock()
		signal.Stop(ch)
		close(ch)
		active.Store(prev)
	}
}

// FireAll invokes every live callback, as if SIGHUP had been delivered.
func FireAll(logger *logrus.Entry) {
	if r := current(); r != nil {
		fire(r, logger)
	}
}

// fire runs the callbacks one at a time. A panicking callback is logged and
// skipped so the remaining callbacks still run.
func fire(r *registry, logger *logrus.Entry) {
	r.callbacks.Range(func(id uint64, fn func()) bool {
		runCallback(id, fn, logger)
		return true
	})
}

func runCallback(id uint64, fn func(), logger *logrus.Entry) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.WithFields(logrus.Fields{
				"id":    id,
				"error": rec,
			}).Error("Shutdown callback panicked")
		}
	}()
	fn()
}
