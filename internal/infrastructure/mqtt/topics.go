package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for Gray Logic Pixels.
const (
	// TopicPrefixPixels is the base for all pixel output topics.
	TopicPrefixPixels = "graylogic/pixels"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"
)

// Topics provides builders for Gray Logic Pixels MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	frameTopic := topics.DeviceFrame("desk-strip")
//	// Returns: "graylogic/pixels/desk-strip/frame"
type Topics struct{}

// DeviceFrame returns the topic carrying a device's assembled frames as JSON.
//
// Example: graylogic/pixels/desk-strip/frame
func (Topics) DeviceFrame(deviceID string) string {
	return fmt.Sprintf("%s/%s/frame", TopicPrefixPixels, TopicSegment(deviceID))
}

// OutputData returns the topic an MQTT output publishes raw RGB bytes to.
//
// Example: graylogic/pixels/output/shelf-leds/data
func (Topics) OutputData(name string) string {
	return fmt.Sprintf("%s/output/%s/data", TopicPrefixPixels, TopicSegment(name))
}

// ShutdownCommand returns the topic that asks the service to blank every device.
//
// Example: graylogic/pixels/command/shutdown
func (Topics) ShutdownCommand() string {
	return TopicPrefixPixels + "/command/shutdown"
}

// SystemStatus returns the topic for the service's online/offline status.
//
// Example: graylogic/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllDeviceFrames returns a wildcard matching every device's frame topic.
//
// Example: graylogic/pixels/+/frame
func (Topics) AllDeviceFrames() string {
	return TopicPrefixPixels + "/+/frame"
}

// AllPixelTopics returns a wildcard matching every pixel topic.
//
// Example: graylogic/pixels/#
func (Topics) AllPixelTopics() string {
	return TopicPrefixPixels + "/#"
}

// TopicSegment turns an arbitrary identifier into a single topic level:
// lower case, with MQTT wildcards, separators and whitespace replaced by "-".
func TopicSegment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unnamed"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', ' ', '\t', '\n', '\r', 0:
			return '-'
		}
		return r
	}, s)
}
