// Package funrun hosts user JavaScript in a goja VM standing in for a V8
// isolate (C13): one VM per function call, a deterministic environment,
// a syscall bridge into the transaction layer, and wall-clock timeouts
// enforced by interrupting the VM.
package funrun

import (
	"time"

	"github.com/riftdb/rift/store"
	"github.com/riftdb/rift/value"
)

// Kind distinguishes the three function categories, which gate which
// syscalls and environment features are available (§4.13, §6).
type Kind int

const (
	KindQuery Kind = iota
	KindMutation
	KindAction
)

func (k Kind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindMutation:
		return "mutation"
	case KindAction:
		return "action"
	default:
		return "unknown"
	}
}

// ReadOnly reports whether k forbids writes, per §4.13's "Forbidden
// syscalls for queries (any write) fail with ReadOnlyFunction".
func (k Kind) ReadOnly() bool { return k == KindQuery }

// Limits bounds one function call's environment.
type Limits struct {
	UserTimeout      time.Duration
	SystemTimeout    time.Duration
	MaxLogLines      int
	MaxLogLineLength int
}

// DefaultLimits matches the glossary's named constants at reasonable
// defaults for a single function invocation.
func DefaultLimits() Limits {
	return Limits{
		UserTimeout:      5 * time.Second,
		SystemTimeout:    10 * time.Second,
		MaxLogLines:      256,
		MaxLogLineLength: 4096,
	}
}

// LogLine is one structured console emission (§4.13's "{level, timestamp,
// messages[]}").
type LogLine struct {
	Level     string
	Timestamp float64
	Messages  []string
}

// SyscallCall records one syscall's duration, for the outcome's
// SyscallTrace.
type SyscallCall struct {
	Name     string
	Duration time.Duration
	Err      error
}

// SyscallTrace is every syscall a function invocation made, in order.
type SyscallTrace struct {
	Calls []SyscallCall
}

// JournalEntry records a non-deterministic boundary (async syscall
// ordering) so the sync engine can replay execution if necessary, per
// §4.13's "journal records non-deterministic boundaries".
type JournalEntry struct {
	Seq    int
	Detail string
}

// Outcome is a function invocation's full result, per §4.13's
// `{result|error, log_lines, syscall_trace, observed_identity, journal}`.
type Outcome struct {
	Result           value.Value
	Err              error
	LogLines         []LogLine
	Trace            SyscallTrace
	ObservedIdentity store.Identity
	Journal          []JournalEntry
}

// Source is the function body to execute: module source plus the
// specific exported function name being invoked.
type Source struct {
	ModuleSpecifier string
	ModuleSource    string
	ExportName      string
}
