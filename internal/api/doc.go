// Package api provides the HTTP REST API and WebSocket frame stream for
// Gray Logic Pixels.
//
// It exposes the device registry (list, inspect, create, remove, clear
// effect), the device audit trail and a live stream of the frames each
// device pushes to its output.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
