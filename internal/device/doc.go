// Package device provides pixel output devices and the Device Registry for
// Gray Logic Pixels.
//
// A device binds one Output (an LED strip, a network controller, a test
// sink) to at most one Effect and pushes the effect's pixels to the output
// at a fixed refresh rate. The Registry owns every device in the process.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────────────────┐
//	│                          Device Registry                                 │
//	│                                                                          │
//	│  ┌──────────────────┐    ┌──────────────────┐    ┌──────────────────┐   │
//	│  │     Registry     │    │   TypeRegistry   │    │    Repository    │   │
//	│  │   (registry.go)  │───▶│    (types.go)    │    │  (repository.go) │   │
//	│  │                  │    │                  │    │                  │   │
//	│  │ • create / get   │    │ • name → ctor    │    │ • SQLite catalog │   │
//	│  │ • load config    │    │ • init() plugins │    │ • JSON config    │   │
//	│  │ • clear on stop  │    └──────────────────┘    └──────────────────┘   │
//	│  └──────────────────┘                                                    │
//	│           │ owns                                                         │
//	│           ▼                                                              │
//	│  ┌──────────────────┐  tick @ refresh_rate  ┌──────────────────┐        │
//	│  │      Device      │──────────────────────▶│      Output      │        │
//	│  │   (device.go)    │  pixel.Assemble       │ (outputs/* pkgs) │        │
//	│  └──────────────────┘                       └──────────────────┘        │
//	│           │ events.DeviceUpdate                                          │
//	└───────────│──────────────────────────────────────────────────────────────┘
//	            ▼
//	     internal/events ──▶ relay (MQTT), UIs
//
// # Lifecycle
//
// A device starts idle. SetEffect activates it: a dedicated goroutine ticks
// on fixed-rate deadlines, and each tick assembles a frame (brightness,
// clamp, centre offset), flushes it unless preview_only is set and publishes
// a DeviceUpdate. Ticks with nothing new to show do nothing. ClearEffect
// stops the loop, blanks the strip with one zero frame and returns the device
// to idle. Errors inside a tick are logged and counted; the loop keeps going.
//
// # Usage
//
//	registry, err := device.NewRegistry(device.RegistryOptions{
//	    Events: bus,
//	    Logger: log,
//	})
//	if err != nil {
//	    return err
//	}
//	registry.LoadFromConfig(ctx, entries)
//
//	dev, _ := registry.Get("desk")
//	if err := dev.SetEffect(myEffect); err != nil {
//	    return err
//	}
package device
