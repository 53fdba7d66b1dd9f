//go:build tools
// +build tools

// Package tools pins the code generators used by `go generate` (mockgen)
// so that they are versioned in go.mod alongside runtime dependencies.
package chat_relay

import (
	_ "go.uber.org/mock/mockgen"
)
