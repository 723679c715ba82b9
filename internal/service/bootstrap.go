package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/intent-gate/intentgate/internal/adapter/outbound/watcher"
	"github.com/intent-gate/intentgate/internal/domain/audit"
	"github.com/intent-gate/intentgate/internal/domain/firewall"
)

// RuntimeOptions configures Bootstrap.
type RuntimeOptions struct {
	// WritableDir is the watched rules directory, created if missing.
	WritableDir string
	// ReadOnlyDirs are read once at startup and never watched; changes
	// there take effect on the next restart.
	ReadOnlyDirs []string
	// Watch enables the filesystem watcher on WritableDir.
	Watch bool
	// Sink receives audit records; nil disables auditing.
	Sink audit.Sink
	// DispatchLock is the host dispatcher's coarse lock. Standalone
	// deployments may leave it nil to get a private mutex.
	DispatchLock sync.Locker
}

// Runtime is an assembled firewall: the façade plus the loader, watcher,
// and audit pipeline behind it.
type Runtime struct {
	Firewall *Firewall
	Loader   *LoaderService

	audit   *AuditService
	watcher *watcher.Watcher
	logger  *slog.Logger
}

// Bootstrap assembles and starts a firewall runtime: creates the writable
// rules directory, performs the initial load and publish, and (when
// requested) starts the debounced directory watcher whose reloads build a
// fresh store off-path and publish it atomically.
func Bootstrap(ctx context.Context, env *firewall.Env, identity firewall.IdentityScope,
	opts RuntimeOptions, metrics *Metrics, logger *slog.Logger) (*Runtime, error) {
	if err := os.MkdirAll(opts.WritableDir, 0700); err != nil {
		return nil, fmt.Errorf("create rules directory: %w", err)
	}

	lock := opts.DispatchLock
	if lock == nil {
		lock = &sync.Mutex{}
	}

	var auditSvc *AuditService
	if opts.Sink != nil {
		auditSvc = NewAuditService(opts.Sink, logger, metrics)
		auditSvc.Start(ctx)
	}

	loader := NewLoaderService(opts.WritableDir, opts.ReadOnlyDirs, logger, metrics)
	fw := NewFirewall(env, identity, lock, auditSvc, metrics, logger)

	store, _ := loader.Load(ctx)
	fw.Publish(store)

	rt := &Runtime{
		Firewall: fw,
		Loader:   loader,
		audit:    auditSvc,
		logger:   logger,
	}

	if opts.Watch {
		w, err := watcher.New(opts.WritableDir, func() {
			next, _ := loader.Load(ctx)
			fw.Publish(next)
		}, logger)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("start rules watcher: %w", err)
		}
		rt.watcher = w
	}

	return rt, nil
}

// Close stops the watcher and drains the audit pipeline. The firewall
// itself keeps serving from its last published store.
func (rt *Runtime) Close() {
	if rt.watcher != nil {
		if err := rt.watcher.Close(); err != nil {
			rt.logger.Error("failed to close rules watcher", "error", err)
		}
		rt.watcher = nil
	}
	if rt.audit != nil {
		rt.audit.Stop()
		rt.audit = nil
	}
}
