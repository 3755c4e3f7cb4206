package events

import "time"

// HydrateNode is emitted when a client resolver settles for one node.
type HydrateNode struct {
	Identity string
	// Source is the state that produced the props: "context", "payload",
	// "self", or "empty".
	Source   string
	Err      error
	Duration time.Duration
}

// PayloadConsumed is emitted the first time the embedded payload is read.
type PayloadConsumed struct {
	Bytes int
	Err   error
}
