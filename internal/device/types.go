package device

import (
	"fmt"
	"slices"
	"sync"
)

// MQTTPublisher is the subset of the MQTT client device types may use.
type MQTTPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// TypeEnv carries process-wide dependencies to device constructors.
// Any field may be nil; constructors that need one must check.
type TypeEnv struct {
	MQTT   MQTTPublisher
	Logger Logger
}

// Constructor builds the output for one device from its raw config map.
// The map holds both the shared Config fields and the type's own options.
type Constructor func(opts map[string]any, env TypeEnv) (Output, error)

// TypeRegistry maps device type names to constructors.
type TypeRegistry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewTypeRegistry creates an empty type registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{ctors: make(map[string]Constructor)}
}

// DefaultTypes holds every device type registered through RegisterType.
var DefaultTypes = NewTypeRegistry()

// Register adds a constructor under name.
func (t *TypeRegistry) Register(name string, ctor Constructor) error {
	if name == "" || ctor == nil {
		return fmt.Errorf("device: registering type %q: empty name or nil constructor", name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.ctors[name]; ok {
		return fmt.Errorf("%w: %s", ErrTypeExists, name)
	}
	t.ctors[name] = ctor
	return nil
}

// Lookup returns the constructor registered under name.
func (t *TypeRegistry) Lookup(name string) (Constructor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ctor, ok := t.ctors[name]
	return ctor, ok
}

// Names returns the registered type names, sorted.
func (t *TypeRegistry) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.ctors))
	for name := range t.ctors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RegisterType registers a device type on DefaultTypes. It is meant to be
// called from an init function and panics on a duplicate name.
func RegisterType(name string, ctor Constructor) {
	if err := DefaultTypes.Register(name, ctor); err != nil {
		panic(err)
	}
}
