package types

// Version is the canvass release version.
// Update on release; commit hash is injected via ldflags in cmd/canvass.
const Version = "0.1.0"
