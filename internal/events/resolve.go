package events

import "time"

// ResolveStart is emitted before a server-side resolve operation begins.
type ResolveStart struct {
	// Mode is "recursive" or "simple".
	Mode   string
	Method string
}

// ResolveFinish is emitted once a resolve operation settles.
type ResolveFinish struct {
	Mode     string
	Method   string
	Entries  int
	Waves    int
	Err      error
	Duration time.Duration
}

// WaveStart is emitted when a frontier of resolution calls has been collected.
type WaveStart struct {
	ID    uint64
	Depth int
	Size  int
}

// WaveFinish is emitted after every call in the wave and all of its recursive
// sub-resolutions have settled.
type WaveFinish struct {
	ID       uint64
	Depth    int
	Size     int
	Err      error
	Duration time.Duration
}
