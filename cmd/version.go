package cmd

// Version is the application version.
// It is intended to be set at build time using ldflags.
// Example: go build -ldflags "-X github.com/axpilot/axpilot/cmd.Version=1.0.0"
var Version = "0.1"
