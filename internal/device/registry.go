package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-pixels/internal/events"
)

// EventBus is the part of events.Bus the Registry uses.
type EventBus interface {
	Publisher
	Subscribe(t events.Type, handler events.Handler) (func(), error)
}

// Audit actions recorded by the Registry.
const (
	AuditDeviceCreated  = "device_created"
	AuditDeviceRemoved  = "device_removed"
	AuditEffectsCleared = "effects_cleared"
)

// AuditSink records device lifecycle changes. audit.Recorder implements it.
type AuditSink interface {
	Record(ctx context.Context, action, deviceID string, details map[string]any)
}

// RegistryOptions configures a Registry. Every field is optional.
type RegistryOptions struct {
	// Types resolves type names to constructors. Defaults to DefaultTypes.
	Types *TypeRegistry

	// Env is passed to every constructor.
	Env TypeEnv

	// Events receives device updates; the Registry also listens on it for
	// events.Shutdown.
	Events EventBus

	// Repository persists devices created through CreateAndPersist.
	Repository Repository

	// Audit records creations, removals and shutdown clears.
	Audit AuditSink

	Logger      Logger
	MissedTicks MissedTickPolicy
}

// Registry owns every device in the process, keyed by ID.
//
// Devices are kept in registration order; ClearAllEffects and List follow it.
//
// All public methods are thread-safe.
type Registry struct {
	types  *TypeRegistry
	env    TypeEnv
	events EventBus
	repo   Repository
	audit  AuditSink
	logger Logger
	policy MissedTickPolicy

	mu      sync.RWMutex
	devices map[string]*Device
	order   []string

	unsubscribe func()
	closeOnce   sync.Once
}

// NewRegistry creates a device registry and, if an event bus is configured,
// subscribes it to events.Shutdown.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	r := &Registry{
		types:   opts.Types,
		env:     opts.Env,
		events:  opts.Events,
		repo:    opts.Repository,
		audit:   opts.Audit,
		logger:  opts.Logger,
		policy:  opts.MissedTicks,
		devices: make(map[string]*Device),
	}
	if r.types == nil {
		r.types = DefaultTypes
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	if r.env.Logger == nil {
		r.env.Logger = r.logger
	}

	if r.events != nil {
		unsubscribe, err := r.events.Subscribe(events.TypeShutdown, r.handleShutdown)
		if err != nil {
			return nil, fmt.Errorf("subscribing to shutdown events: %w", err)
		}
		r.unsubscribe = unsubscribe
	}

	return r, nil
}

func (r *Registry) handleShutdown(ev events.Event) {
	reason := ""
	if s, ok := ev.(events.Shutdown); ok {
		reason = s.Reason
	}
	n := r.Count()
	r.logger.Info("shutdown received, clearing device effects", "reason", reason, "devices", n)
	r.ClearAllEffects()
	r.record(context.Background(), AuditEffectsCleared, "", map[string]any{"reason": reason, "devices": n})
}

func (r *Registry) record(ctx context.Context, action, deviceID string, details map[string]any) {
	if r.audit != nil {
		r.audit.Record(ctx, action, deviceID, details)
	}
}

// Create builds a device of type typ from raw and registers it under id.
// An empty id gets a generated one.
//
// Returns ErrDeviceExists if id is taken (the existing device is untouched),
// ErrUnknownType if typ is not registered and ErrInvalidConfig if raw fails
// validation.
func (r *Registry) Create(ctx context.Context, id, typ string, raw map[string]any) (*Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if id == "" {
		id = GenerateID()
	}

	if _, exists := r.Get(id); exists {
		return nil, fmt.Errorf("%w: %s", ErrDeviceExists, id)
	}

	ctor, ok := r.types.Lookup(typ)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}

	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", id, err)
	}

	out, err := ctor(raw, r.env)
	if err != nil {
		return nil, fmt.Errorf("constructing %s device %s: %w", typ, id, err)
	}

	dev := New(id, typ, cfg, out, Options{
		Events:      r.events,
		Logger:      r.logger,
		MissedTicks: r.policy,
	})

	r.mu.Lock()
	if _, exists := r.devices[id]; exists {
		r.mu.Unlock()
		// Lost a race with a concurrent Create for the same id.
		if err := dev.Close(); err != nil {
			r.logger.Warn("closing discarded device output", "device_id", id, "error", err)
		}
		return nil, fmt.Errorf("%w: %s", ErrDeviceExists, id)
	}
	r.devices[id] = dev
	r.order = append(r.order, id)
	r.mu.Unlock()

	r.logger.Info("device created",
		"device_id", id,
		"type", typ,
		"name", cfg.Name,
		"pixel_count", out.PixelCount(),
		"refresh_rate", cfg.RefreshRate,
	)
	r.record(ctx, AuditDeviceCreated, id, map[string]any{"type": typ, "name": cfg.Name})
	return dev, nil
}

// CreateAndPersist is Create followed by saving the entry to the repository.
// If saving fails the device is removed again.
func (r *Registry) CreateAndPersist(ctx context.Context, id, typ string, raw map[string]any) (*Device, error) {
	dev, err := r.Create(ctx, id, typ, raw)
	if err != nil {
		return nil, err
	}
	if r.repo == nil {
		return dev, nil
	}

	if err := r.repo.Create(ctx, &Entry{ID: dev.ID(), Type: typ, Config: raw}); err != nil {
		r.unregister(dev.ID())
		if closeErr := dev.Close(); closeErr != nil {
			r.logger.Warn("closing device after failed save", "device_id", dev.ID(), "error", closeErr)
		}
		return nil, fmt.Errorf("saving device %s: %w", dev.ID(), err)
	}
	return dev, nil
}

// Get returns the device registered under id.
func (r *Registry) Get(id string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.devices[id]
	return dev, ok
}

// List returns every device in registration order.
func (r *Registry) List() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]*Device, 0, len(r.order))
	for _, id := range r.order {
		devices = append(devices, r.devices[id])
	}
	return devices
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Remove blanks the device, closes its output, unregisters it and deletes
// its persisted entry if there is one.
// Returns ErrDeviceNotFound if id is not registered.
func (r *Registry) Remove(ctx context.Context, id string) error {
	dev, ok := r.unregister(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	var errs []error
	if err := dev.Close(); err != nil {
		errs = append(errs, err)
	}

	if r.repo != nil {
		if err := r.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrDeviceNotFound) {
			errs = append(errs, fmt.Errorf("deleting stored device %s: %w", id, err))
		}
	}

	r.logger.Info("device removed", "device_id", id)
	r.record(ctx, AuditDeviceRemoved, id, nil)
	return errors.Join(errs...)
}

func (r *Registry) unregister(id string) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[id]
	if !ok {
		return nil, false
	}
	delete(r.devices, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return dev, true
}

// LoadFromConfig creates a device for each entry. A failing entry is logged
// and skipped; the rest still load. It returns the number of devices created.
func (r *Registry) LoadFromConfig(ctx context.Context, entries []Entry) int {
	loaded := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			r.logger.Warn("device loading cancelled", "loaded", loaded, "error", ctx.Err())
			break
		}

		r.logger.Debug("loading device from config", "device_id", e.ID, "type", e.Type)
		if _, err := r.Create(ctx, e.ID, e.Type, e.Config); err != nil {
			r.logger.Error("failed to load device",
				"device_id", e.ID,
				"type", e.Type,
				"error", err,
			)
			continue
		}
		loaded++
	}

	r.logger.Info("devices loaded", "loaded", loaded, "entries", len(entries))
	return loaded
}

// LoadFromRepository loads every persisted entry the same way as
// LoadFromConfig. Entries whose id is already registered are skipped.
func (r *Registry) LoadFromRepository(ctx context.Context) (int, error) {
	if r.repo == nil {
		return 0, nil
	}

	entries, err := r.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading stored devices: %w", err)
	}
	return r.LoadFromConfig(ctx, entries), nil
}

// ClearAllEffects clears the effect of every device in registration order.
// A failure on one device is logged and does not stop the rest.
func (r *Registry) ClearAllEffects() {
	for _, dev := range r.List() {
		if err := dev.ClearEffect(); err != nil {
			r.logger.Error("failed to clear device effect",
				"device_id", dev.ID(),
				"error", err,
			)
		}
	}
}

// Close unsubscribes from the event bus and closes every device. It is safe
// to call more than once.
func (r *Registry) Close() error {
	var errs []error
	r.closeOnce.Do(func() {
		if r.unsubscribe != nil {
			r.unsubscribe()
		}
		for _, dev := range r.List() {
			if err := dev.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing device %s: %w", dev.ID(), err))
			}
		}
	})
	return errors.Join(errs...)
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}
