package identity

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// Identity is the local device identity.
type Identity struct {
	Fingerprint string
}

// Provider resolves the identity of the caller. Implementations must return
// the same value for the same environment.
type Provider interface {
	Identity(ctx context.Context) Identity
}

// Static is a Provider that always returns the same fingerprint.
type Static string

// Identity implements Provider.
func (s Static) Identity(context.Context) Identity { return Identity{Fingerprint: string(s)} }

// FingerprintProvider computes the fingerprint from collected signals the
// first time it is asked and returns the cached value afterwards.
type FingerprintProvider struct {
	collect func() Signals

	once sync.Once
	id   Identity
}

// NewFingerprintProvider returns a memoizing provider over collect.
func NewFingerprintProvider(collect func() Signals) *FingerprintProvider {
	return &FingerprintProvider{collect: collect}
}

// Identity implements Provider.
func (p *FingerprintProvider) Identity(context.Context) Identity {
	p.once.Do(func() {
		var s Signals
		if p.collect != nil {
			s = p.collect()
		}
		p.id = Identity{Fingerprint: Generate(s)}
	})
	return p.id
}

// HostSignals describes the running process as an environment. It is the
// identity used for work not attributable to a request.
func HostSignals(appName, version string) Signals {
	_, offset := time.Now().Zone()
	return Signals{
		UserAgent:           appName + "/" + version,
		Language:            "en",
		TimezoneOffset:      -offset / 60,
		HardwareConcurrency: runtime.NumCPU(),
		Platform:            runtime.GOOS + "/" + runtime.GOARCH,
		AppName:             appName,
		AppVersion:          version,
		Product:             runtime.Version(),
		Online:              true,
	}
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity installed by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.Fingerprint != ""
}

// ContextProvider resolves the identity carried by the request context and
// falls back to Fallback when none is present.
type ContextProvider struct {
	Fallback Provider
}

// Identity implements Provider.
func (p ContextProvider) Identity(ctx context.Context) Identity {
	if id, ok := FromContext(ctx); ok {
		return id
	}
	if p.Fallback != nil {
		return p.Fallback.Identity(ctx)
	}
	return Identity{}
}
