package flatbridge

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// BackendFactory creates a Backend from string configuration.
// The keys are backend specific (bucket, endpoint, root, host, ...).
type BackendFactory func(config map[string]string) (Backend, error)

var registry = struct {
	sync.RWMutex
	factories map[string]BackendFactory
}{factories: map[string]BackendFactory{}}

// Register makes a backend available to Open under name. Backend packages
// call it from init, so a program selects its stores by importing them:
//
//	import _ "github.com/cryptoe/flatbridge/backend/s3"
//
// Register panics if factory is nil or name is taken.
func Register(name string, factory BackendFactory) {
	if factory == nil {
		panic("flatbridge: Register factory is nil")
	}
	registry.Lock()
	defer registry.Unlock()
	if _, dup := registry.factories[name]; dup {
		panic("flatbridge: Register called twice for backend " + name)
	}
	registry.factories[name] = factory
}

// Open constructs the backend registered as name.
//
// An unregistered name yields ErrUnknownBackend together with the names
// that are registered.
//
//	output, err := flatbridge.Open("gcs", map[string]string{
//	    "bucket": "cryptoe-raw-trade-data",
//	})
func Open(name string, config map[string]string) (Backend, error) {
	registry.RLock()
	factory, ok := registry.factories[name]
	registry.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownBackend, name, strings.Join(Backends(), ", "))
	}
	return factory(config)
}

// Backends returns the registered backend names in sorted order.
func Backends() []string {
	registry.RLock()
	defer registry.RUnlock()
	return slices.Sorted(maps.Keys(registry.factories))
}

// IsRegistered reports whether name has been registered.
func IsRegistered(name string) bool {
	registry.RLock()
	defer registry.RUnlock()
	_, ok := registry.factories[name]
	return ok
}

// Unregister removes name and reports whether it was registered.
func Unregister(name string) bool {
	registry.Lock()
	defer registry.Unlock()
	_, ok := registry.factories[name]
	delete(registry.factories, name)
	return ok
}
