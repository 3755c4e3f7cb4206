package events

import (
	"net/http"
	"time"
)

// PageStart is emitted when the page handler receives a request.
// The published context carries the request ID.
type PageStart struct {
	Request *http.Request
}

// PageFinish is emitted after the page handler has written its response.
type PageFinish struct {
	Request *http.Request
	Status  int
	// Format is "html" or "json".
	Format   string
	Bytes    int
	Duration time.Duration
}
