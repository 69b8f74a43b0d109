package mqttpixels

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-pixels/internal/device"
	"github.com/nerrad567/gray-logic-pixels/internal/pixel"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	args := m.Called(topic, payload, qos, retained)
	return args.Error(0)
}

func TestNew(t *testing.T) {
	env := device.TypeEnv{MQTT: &mockPublisher{}}

	tests := []struct {
		name      string
		raw       map[string]any
		wantTopic string
		wantQoS   byte
		wantErr   error
	}{
		{
			name:      "default topic from name",
			raw:       map[string]any{"name": "Desk Strip", "pixel_count": 60},
			wantTopic: "graylogic/pixels/output/desk-strip/data",
		},
		{
			name:      "explicit topic and qos",
			raw:       map[string]any{"name": "desk", "pixel_count": 60, "topic": "wled/desk/raw", "qos": 1},
			wantTopic: "wled/desk/raw",
			wantQoS:   1,
		},
		{
			name:    "bad qos",
			raw:     map[string]any{"name": "desk", "qos": 5},
			wantErr: device.ErrInvalidConfig,
		},
		{
			name:    "negative pixel count",
			raw:     map[string]any{"name": "desk", "pixel_count": -3},
			wantErr: device.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := New(tt.raw, env)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			o := out.(*Output)
			assert.Equal(t, tt.wantTopic, o.Topic())
			assert.Equal(t, tt.wantQoS, o.qos)
		})
	}
}

func TestNew_NoBroker(t *testing.T) {
	_, err := New(map[string]any{"name": "desk"}, device.TypeEnv{})
	assert.ErrorIs(t, err, ErrNoBroker)
}

func TestRegistered(t *testing.T) {
	_, ok := device.DefaultTypes.Lookup(TypeName)
	assert.True(t, ok)
}

func TestFlush(t *testing.T) {
	pub := &mockPublisher{}
	out, err := New(map[string]any{"name": "desk", "pixel_count": 2, "retained": true}, device.TypeEnv{MQTT: pub})
	require.NoError(t, err)

	pub.On("Publish", "graylogic/pixels/output/desk/data", []byte{255, 0, 0, 0, 128, 0}, byte(0), true).
		Return(nil).Once()

	require.NoError(t, out.Flush(pixel.Frame{{255, 0, 0}, {0, 127.6, 0}}))
	pub.AssertExpectations(t)
}

func TestFlush_Error(t *testing.T) {
	pub := &mockPublisher{}
	out, err := New(map[string]any{"name": "desk", "pixel_count": 1}, device.TypeEnv{MQTT: pub})
	require.NoError(t, err)

	broker := errors.New("not connected")
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(broker)

	err = out.Flush(pixel.Frame{{1, 2, 3}})
	assert.ErrorIs(t, err, broker)
	assert.Contains(t, err.Error(), "graylogic/pixels/output/desk/data")
}
