package core

// Version is the steward release, set at build time with
// -ldflags "-X github.com/jllopis/steward/pkg/core.Version=...".
var Version = "dev"
