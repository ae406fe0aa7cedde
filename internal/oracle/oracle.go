// Package oracle wraps the language model behind a narrow interface.
// Callers treat the model as untrusted: every reply goes through
// ExtractJSON or plain-text validation before it influences state.
package oracle

import "context"

// Oracle produces a free-form completion for a prompt.
type Oracle interface {
	Infer(ctx context.Context, prompt string) (string, error)
}

// Error marks a failure talking to the model, as opposed to a failure
// interpreting what it said.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
