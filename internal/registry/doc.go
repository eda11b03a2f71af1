// Package registry provides the WebSocket client for the configuration
// registry (Home Assistant style), covering the area, device and entity
// registries plus live entity states.
//
// The client speaks a simple request/response protocol over one
// long-lived authenticated connection: each call sends an envelope with
// a monotonically increasing id and waits for the matching result frame.
// All calls are serialized through a single mutex, so no two registry
// operations are ever in flight concurrently.
//
// The connection is established lazily on first use and re-established
// on the next call after a transport failure. Failures are reported as
// either a transport error (wrapping ErrTransport) or an *APIError
// carrying the registry's code and message for logically rejected calls.
//
// Usage:
//
//	client := registry.New(cfg.Registry, log)
//	defer client.Close()
//	areas, err := client.ListAreas(ctx)
//
// Updates use registry.Fields, a JSON object where a nil value is sent
// as an explicit JSON null; the registry requires explicit nulls to
// clear fields such as an entity's area assignment.
package registry
