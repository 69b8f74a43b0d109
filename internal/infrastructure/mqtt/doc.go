// Package mqtt provides MQTT client connectivity for Gray Logic Pixels.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing frames (QoS 0) and status (retained)
//   - Topic subscriptions, restored after reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Topics
//
//	graylogic/pixels/{device_id}/frame     assembled frames as JSON (relay)
//	graylogic/pixels/output/{name}/data    raw RGB bytes (mqtt output type)
//	graylogic/pixels/command/shutdown      blank every device
//	graylogic/system/status                online/offline, retained
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.ShutdownCommand(), 1,
//	    func(topic string, payload []byte) error {
//	        bus.Publish(events.Shutdown{Reason: "mqtt"})
//	        return nil
//	    })
package mqtt
