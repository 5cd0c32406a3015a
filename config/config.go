// Package config holds the leecher's run-time configuration: a plain
// struct with a package-level default, passed explicitly rather than
// read from a global everywhere.
package config

import "time"

// Config controls one download run. The zero value is not meaningful on
// its own; callers should start from Default and override only the
// fields they care about.
type Config struct {
	// DestDir is the directory the output file is created in. Defaults
	// to the current directory.
	DestDir string
	// Workers caps the number of concurrent peer connections. Zero means
	// "use min(len(peers), runtime.GOMAXPROCS(0))".
	Workers int
	// ShowProgress toggles the live uiprogress bar.
	ShowProgress bool
	// TrackerTimeout bounds the tracker GET request.
	TrackerTimeout time.Duration
}

// Default is progress reporting on, worker count auto-detected, and a
// conservative tracker timeout.
var Default = Config{
	DestDir:        ".",
	Workers:        0,
	ShowProgress:   true,
	TrackerTimeout: 15 * time.Second,
}
