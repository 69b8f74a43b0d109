// Package relay connects the in-process event bus to MQTT.
//
// Outbound, each events.DeviceUpdate is encoded as
//
//	{"device_id":"desk","pixels":[[255,0,0],...],"timestamp":"2026-03-01T12:00:00.016Z"}
//
// and published to graylogic/pixels/{device_id}/frame at QoS 0, not retained.
//
// Inbound, any message on graylogic/pixels/command/shutdown publishes an
// events.Shutdown on the bus, which blanks every device. The body may be
// empty or {"reason":"..."}.
package relay
