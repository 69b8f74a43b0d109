// Package mqttpixels provides the "mqtt" device type: each frame is sent as
// packed 8-bit RGB bytes to an MQTT topic, for controllers that subscribe and
// drive the LEDs themselves.
//
// Options (in the device config map):
//
//	pixel_count: 144
//	topic: graylogic/pixels/output/desk/data   # default derived from name
//	qos: 0
//	retained: false
package mqttpixels

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-pixels/internal/device"
	"github.com/nerrad567/gray-logic-pixels/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-pixels/internal/pixel"
)

// TypeName is the registry name of this device type.
const TypeName = "mqtt"

// ErrNoBroker is returned when the process runs without an MQTT client.
var ErrNoBroker = errors.New("mqttpixels: mqtt client not configured")

func init() {
	device.RegisterType(TypeName, New)
}

// Options are the mqtt type's own config fields.
type Options struct {
	Name       string `yaml:"name"`
	PixelCount int    `yaml:"pixel_count"`
	Topic      string `yaml:"topic"`
	QoS        int    `yaml:"qos"`
	Retained   bool   `yaml:"retained"`
}

// Output publishes frames to one topic.
type Output struct {
	client     device.MQTTPublisher
	topic      string
	qos        byte
	retained   bool
	pixelCount int
}

// New builds an MQTT output from a raw device config map.
func New(raw map[string]any, env device.TypeEnv) (device.Output, error) {
	if env.MQTT == nil {
		return nil, ErrNoBroker
	}

	var opts Options
	if err := device.DecodeOptions(raw, &opts); err != nil {
		return nil, err
	}
	if opts.PixelCount < 0 {
		return nil, fmt.Errorf("%w: pixel_count %d must not be negative", device.ErrInvalidConfig, opts.PixelCount)
	}
	if opts.QoS < 0 || opts.QoS > 2 {
		return nil, fmt.Errorf("%w: qos %d must be 0, 1, or 2", device.ErrInvalidConfig, opts.QoS)
	}

	topic := opts.Topic
	if topic == "" {
		topic = mqtt.Topics{}.OutputData(opts.Name)
	}

	return &Output{
		client:     env.MQTT,
		topic:      topic,
		qos:        byte(opts.QoS), // #nosec G115 -- range checked above
		retained:   opts.Retained,
		pixelCount: opts.PixelCount,
	}, nil
}

// PixelCount returns the configured pixel count.
func (o *Output) PixelCount() int { return o.pixelCount }

// Topic returns the topic frames are published to.
func (o *Output) Topic() string { return o.topic }

// Flush publishes frame as len(frame)*3 bytes, R G B per pixel.
func (o *Output) Flush(frame pixel.Frame) error {
	if err := o.client.Publish(o.topic, frame.Bytes(), o.qos, o.retained); err != nil {
		return fmt.Errorf("publishing to %s: %w", o.topic, err)
	}
	return nil
}
