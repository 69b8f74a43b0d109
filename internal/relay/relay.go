package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-pixels/internal/events"
	"github.com/nerrad567/gray-logic-pixels/internal/infrastructure/mqtt"
)

// frameQoS is the QoS for frame updates. Frames are superseded at the
// refresh rate, so a lost one is never worth a retransmit.
const frameQoS = 0

// DefaultShutdownReason is used when a shutdown command carries no reason.
const DefaultShutdownReason = "mqtt command"

// ErrAlreadyStarted is returned by Start on a running relay.
var ErrAlreadyStarted = errors.New("relay: already started")

// Bus is the subset of events.Bus the relay uses.
type Bus interface {
	Subscribe(t events.Type, handler events.Handler) (func(), error)
	Publish(ev events.Event)
}

// Broker is the subset of the MQTT client the relay uses.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger is the logging interface used by the relay.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// FramePayload is the JSON body published for every device update.
type FramePayload struct {
	DeviceID  string   `json:"device_id"`
	Pixels    [][3]int `json:"pixels"`
	Timestamp string   `json:"timestamp"`
}

// NewFramePayload converts a device update to its wire form. The API's
// websocket stream sends the same shape.
func NewFramePayload(update events.DeviceUpdate) FramePayload {
	return FramePayload{
		DeviceID:  update.DeviceID,
		Pixels:    update.Frame.Ints(),
		Timestamp: update.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// ShutdownCommand is the optional JSON body of a shutdown command.
type ShutdownCommand struct {
	Reason string `json:"reason"`
}

// Metrics are cumulative relay counters.
type Metrics struct {
	FramesForwarded  uint64
	PublishErrors    uint64
	ShutdownCommands uint64
}

// Relay bridges the in-process event bus and MQTT:
//   - every events.DeviceUpdate is published to the device's frame topic
//   - every message on the shutdown command topic becomes an events.Shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Relay struct {
	bus    Bus
	broker Broker
	topics mqtt.Topics

	mu          sync.Mutex
	started     bool
	unsubscribe func()

	forwarded     atomic.Uint64
	publishErrors atomic.Uint64
	shutdowns     atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a relay. Nothing is subscribed until Start.
func New(bus Bus, broker Broker) *Relay {
	return &Relay{bus: bus, broker: broker}
}

// Start subscribes to device updates on the bus and to the shutdown command
// topic on the broker.
func (r *Relay) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrAlreadyStarted
	}

	unsub, err := r.bus.Subscribe(events.TypeDeviceUpdate, r.handleDeviceUpdate)
	if err != nil {
		return fmt.Errorf("subscribe to device updates: %w", err)
	}

	topic := r.topics.ShutdownCommand()
	if err := r.broker.Subscribe(topic, 1, r.handleShutdownCommand); err != nil {
		unsub()
		return fmt.Errorf("subscribe to shutdown command: %w", err)
	}

	r.unsubscribe = unsub
	r.started = true
	r.log().Info("relay started", "command_topic", topic)
	return nil
}

// Stop removes both subscriptions. Safe to call more than once.
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return
	}
	r.started = false

	r.unsubscribe()
	r.unsubscribe = nil

	if err := r.broker.Unsubscribe(r.topics.ShutdownCommand()); err != nil {
		r.log().Debug("unsubscribe from shutdown command failed", "error", err)
	}
	r.log().Info("relay stopped")
}

// handleDeviceUpdate runs on the bus dispatch goroutine.
func (r *Relay) handleDeviceUpdate(ev events.Event) {
	update, ok := ev.(events.DeviceUpdate)
	if !ok {
		return
	}

	payload, err := json.Marshal(NewFramePayload(update))
	if err != nil {
		r.log().Error("encoding frame payload failed", "device_id", update.DeviceID, "error", err)
		return
	}

	topic := r.topics.DeviceFrame(update.DeviceID)
	if err := r.broker.Publish(topic, payload, frameQoS, false); err != nil {
		if r.publishErrors.Add(1) == 1 {
			r.log().Warn("publishing frame failed", "topic", topic, "error", err)
		} else {
			r.log().Debug("publishing frame failed", "topic", topic, "error", err)
		}
		return
	}
	r.forwarded.Add(1)
}

// handleShutdownCommand turns a shutdown command into a bus event.
// An empty body is accepted; a malformed one is rejected.
func (r *Relay) handleShutdownCommand(_ string, payload []byte) error {
	reason, err := parseShutdownCommand(payload)
	if err != nil {
		return err
	}

	r.shutdowns.Add(1)
	r.log().Info("shutdown command received", "reason", reason)
	r.bus.Publish(events.Shutdown{Reason: reason})
	return nil
}

func parseShutdownCommand(payload []byte) (string, error) {
	if len(payload) == 0 {
		return DefaultShutdownReason, nil
	}

	var cmd ShutdownCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return "", fmt.Errorf("relay: parsing shutdown command: %w", err)
	}
	if cmd.Reason == "" {
		return DefaultShutdownReason, nil
	}
	return cmd.Reason, nil
}

// Metrics returns the relay counters.
func (r *Relay) Metrics() Metrics {
	return Metrics{
		FramesForwarded:  r.forwarded.Load(),
		PublishErrors:    r.publishErrors.Load(),
		ShutdownCommands: r.shutdowns.Load(),
	}
}

// SetLogger sets the logger for the relay.
func (r *Relay) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

func (r *Relay) log() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	if r.logger == nil {
		return noopLogger{}
	}
	return r.logger
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
