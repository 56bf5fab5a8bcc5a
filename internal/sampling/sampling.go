// Package sampling defines the boundary interface for AI prompt execution
// ("sampling" in MCP terms) and the deterministic failure mode tools fall
// back to when no backend is configured. The core server treats sampling
// exactly as an opaque (promptMessages) -> {text, usage?} call; this
// package's backends are concrete implementations of that same interface
// for deployments that run outside a sampling-capable host.
package sampling

import (
	"context"
	"errors"
)

// Role identifies the speaker of one message in a sampling request, mirroring
// the roles a host-provided sampling call accepts.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a prompt sent to a sampler.
type Message struct {
	Role Role
	Text string
}

// Request is everything a caller supplies to Sample.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	// Model optionally overrides the backend's configured default model.
	Model string
}

// Usage reports token accounting for a completed sampling call, when the
// backend provides it.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Result is a completed sampling call's output.
type Result struct {
	Text  string
	Usage *Usage
}

// Sampler is the boundary every backend implements: an opaque prompt-in,
// text-out call. Tool handlers that need AI assistance depend on this
// interface, never on a concrete backend, so the same handler code runs
// whether sampling comes from this package's backends or a host-native
// implementation.
type Sampler interface {
	Sample(ctx context.Context, req Request) (Result, error)
}

// ErrUnavailable is returned by Unavailable{}.Sample. Tool handlers map it
// to the deterministic "sampling unavailable" envelope rather than a
// generic failure.
var ErrUnavailable = errors.New("sampling unavailable: no AI sampling backend is configured")

// Unavailable is the zero-configuration Sampler: every call fails with
// ErrUnavailable. It is the default so a server started without a backend
// still runs every non-sampling tool normally.
type Unavailable struct{}

func (Unavailable) Sample(context.Context, Request) (Result, error) {
	return Result{}, ErrUnavailable
}

var _ Sampler = Unavailable{}
