package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"

	"github.com/shipfed/navigator/client"
	"github.com/shipfed/navigator/format"
	"github.com/shipfed/navigator/internal/core"
)

// CircuitLoader wraps a Loader with per-warehouse-host circuit breakers,
// so a persistently failing warehouse stops receiving fetches while the
// rest keep loading.
type CircuitLoader struct {
	loader   Loader
	breakers map[string]*circuit.Breaker
	mu       sync.RWMutex
}

// NewCircuitLoader creates a circuit breaker wrapper for a loader.
func NewCircuitLoader(l Loader) *CircuitLoader {
	return &CircuitLoader{
		loader:   l,
		breakers: make(map[string]*circuit.Breaker),
	}
}

// getBreaker returns or creates a circuit breaker for the given host.
func (cl *CircuitLoader) getBreaker(host string) *circuit.Breaker {
	cl.mu.RLock()
	breaker, exists := cl.breakers[host]
	cl.mu.RUnlock()

	if exists {
		return breaker
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if breaker, exists := cl.breakers[host]; exists {
		return breaker
	}

	// Trips after 5 consecutive failures, resets on exponential backoff
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	opts := &circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(5),
	}
	breaker = circuit.NewBreakerWithOptions(opts)

	cl.breakers[host] = breaker
	return breaker
}

// Load wraps the underlying loader's Load with circuit breaker logic. An
// open circuit surfaces as a NetworkError without issuing the fetch.
func (cl *CircuitLoader) Load(ctx context.Context, url string, opts core.LoadOptions) (Exports, error) {
	host := client.Host(url)
	breaker := cl.getBreaker(host)

	if !breaker.Ready() {
		return nil, &core.NetworkError{
			URL:   url,
			Cause: fmt.Errorf("circuit breaker open for %s", host),
		}
	}

	var exports Exports
	err := breaker.Call(func() error {
		var loadErr error
		exports, loadErr = cl.loader.Load(ctx, url, opts)
		return loadErr
	}, 0)

	if err != nil {
		return nil, err
	}
	return exports, nil
}

func (cl *CircuitLoader) IsLoaded(url string) bool {
	return cl.loader.IsLoaded(url)
}

func (cl *CircuitLoader) Preload(ctx context.Context, url string) error {
	return cl.loader.Preload(ctx, url)
}

func (cl *CircuitLoader) ClearCache() {
	cl.loader.ClearCache()
}

func (cl *CircuitLoader) SupportedFormats() []format.Format {
	return cl.loader.SupportedFormats()
}

// BreakerState returns the current state of the circuit breakers, for
// health checks.
func (cl *CircuitLoader) BreakerState() map[string]string {
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	states := make(map[string]string)
	for host, breaker := range cl.breakers {
		if breaker.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}
