// Package events is the in-process publish/subscribe bus that connects
// devices to the rest of Gray Logic Pixels.
//
// Devices publish a DeviceUpdate every time a frame is pushed to hardware
// (or would have been, in preview mode). The MQTT relay forwards those to
// UIs. A Shutdown event tells the device registry to blank every strip.
//
// Delivery model:
//   - Every subscriber owns a bounded queue and one dispatch goroutine.
//   - Publish never blocks. A full queue drops the event for that subscriber
//     and counts it in Stats.
//   - PublishWait blocks until every matching subscriber has handled the
//     event, or the context ends.
//   - Close stops accepting events and drains what is already queued.
//
// Handlers run on their subscriber's goroutine, one event at a time, in
// publish order. A panicking handler is recovered and logged.
package events
