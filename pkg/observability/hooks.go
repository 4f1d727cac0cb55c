// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers register hooks at startup to
// receive events about bundle stages and installer downloads.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetBundleHooks(&myBundleHooks{})
//	    observability.SetHTTPHooks(&myHTTPHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Bundle().OnStageStart(ctx, runID, "create")
//	// ... create the environment ...
//	observability.Bundle().OnStageComplete(ctx, runID, "create", duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Bundle Hooks
// =============================================================================

// BundleHooks receives events from the bundle pipeline.
type BundleHooks interface {
	// OnStageStart is called before a pipeline stage runs.
	OnStageStart(ctx context.Context, runID, stage string)

	// OnStageComplete is called after a stage finishes, with its error if any.
	OnStageComplete(ctx context.Context, runID, stage string, duration time.Duration, err error)

	// OnRunComplete is called once per run with the published artifact path
	// (empty on failure) and the total duration.
	OnRunComplete(ctx context.Context, runID, artifact string, duration time.Duration, err error)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from HTTP client operations.
type HTTPHooks interface {
	// OnRequest records an outgoing HTTP request.
	OnRequest(ctx context.Context, method, host, path string)

	// OnResponse records an HTTP response.
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records an HTTP error (network failure, timeout).
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopBundleHooks is a no-op implementation of BundleHooks.
type NoopBundleHooks struct{}

func (NoopBundleHooks) OnStageStart(context.Context, string, string) {}
func (NoopBundleHooks) OnStageComplete(context.Context, string, string, time.Duration, error) {
}
func (NoopBundleHooks) OnRunComplete(context.Context, string, string, time.Duration, error) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	bundleHooks BundleHooks = NoopBundleHooks{}
	httpHooks   HTTPHooks   = NoopHTTPHooks{}
	hooksMu     sync.RWMutex
)

// SetBundleHooks registers custom bundle hooks.
// This should be called once at application startup before any run starts.
func SetBundleHooks(h BundleHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		bundleHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks.
// This should be called once at application startup before any HTTP operations.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Bundle returns the registered bundle hooks.
func Bundle() BundleHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return bundleHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	bundleHooks = NoopBundleHooks{}
	httpHooks = NoopHTTPHooks{}
}
