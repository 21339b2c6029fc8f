// Package topderr defines the error kinds surfaced by the TopDown engine.
// Each kind names the failing node path and phase so a caller can report a
// precise location without the engine needing to know about logging or
// exit codes.
package topderr

import "fmt"

// Kind classifies an engine error into one of six kinds.
type Kind int

const (
	// ConfigError marks missing or conflicting configuration.
	ConfigError Kind = iota
	// InputError marks malformed or missing fields in raw records.
	InputError
	// ParameterError marks a non-positive budget, variance, or unknown level.
	ParameterError
	// InfeasibleError marks user constraints inconsistent with parent sums.
	InfeasibleError
	// SolverError marks a solver failure. It is not retried: the engine
	// returns it to the caller on its first occurrence.
	SolverError
	// StateError marks a checkpoint incompatible with the current configuration.
	StateError
)

func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "ConfigError"
	case InputError:
		return "InputError"
	case ParameterError:
		return "ParameterError"
	case InfeasibleError:
		return "InfeasibleError"
	case SolverError:
		return "SolverError"
	case StateError:
		return "StateError"
	default:
		return "UnknownError"
	}
}

// Error is a typed engine error naming the node path and phase in which it occurred.
type Error struct {
	Kind  Kind
	Phase string
	Path  []string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	path := "<root>"
	if len(e.Path) > 0 {
		path = fmt.Sprintf("%v", e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s in phase %s at %s: %s: %v", e.Kind, e.Phase, path, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s in phase %s at %s: %s", e.Kind, e.Phase, path, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind.
func New(kind Kind, phase string, path []string, msg string) *Error {
	return &Error{Kind: kind, Phase: phase, Path: path, Msg: msg}
}

// Wrap constructs an Error of the given kind wrapping a lower-level cause.
func Wrap(kind Kind, phase string, path []string, msg string, err error) *Error {
	return &Error{Kind: kind, Phase: phase, Path: path, Msg: msg, Err: err}
}

// ExitCode maps a Kind to its process exit code. A nil error maps to 0;
// an error that is not of type *Error maps to 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	te, ok := err.(*Error)
	if !ok {
		return 1
	}
	switch te.Kind {
	case ConfigError:
		return 1
	case InputError:
		return 2
	case InfeasibleError:
		return 3
	case SolverError:
		return 4
	case ParameterError:
		return 1
	case StateError:
		return 1
	default:
		return 1
	}
}
