package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Dialer opens a session to a cluster.
type Dialer func(ctx context.Context, cfg Config) (Cluster, error)

var (
	dialersMu sync.RWMutex
	dialers   = make(map[string]Dialer)
)

// Register makes a backend available under name. It panics when name is
// registered twice or d is nil, as database/sql does for drivers.
func Register(name string, d Dialer) {
	dialersMu.Lock()
	defer dialersMu.Unlock()
	if d == nil {
		panic("transport: Register dialer is nil")
	}
	if _, dup := dialers[name]; dup {
		panic("transport: Register called twice for " + name)
	}
	dialers[name] = d
}

// Dial opens a session with the backend registered under name.
func Dial(ctx context.Context, name string, cfg Config) (Cluster, error) {
	dialersMu.RLock()
	d, ok := dialers[name]
	dialersMu.RUnlock()
	if !ok {
		return nil, Errorf(StatusInvalid, "dial", fmt.Errorf("unknown transport %q (registered: %v)", name, Backends()))
	}
	if err := CheckContext(ctx, "dial"); err != nil {
		return nil, err
	}
	return d(ctx, cfg)
}

// Backends returns the sorted names of registered backends.
func Backends() []string {
	dialersMu.RLock()
	defer dialersMu.RUnlock()
	names := make([]string, 0, len(dialers))
	for name := range dialers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
