// internal/app/system/limits/limits.go
package limits

// Request body size limits for various features.
// These limits help prevent memory exhaustion from oversized requests.
const (
	// MaxJSONBody is the maximum size of a REST request body.
	MaxJSONBody = 1 << 20 // 1 MB

	// MaxFrameSize is the maximum size of one inbound websocket frame.
	// Comments are the largest client event.
	MaxFrameSize = 64 << 10 // 64 KB
)
