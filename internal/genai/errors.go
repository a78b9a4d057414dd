package genai

import "fmt"

// GenerationError wraps failures from the language-model provider so callers
// can distinguish them from transport or storage faults and fall back to
// canned utterances instead of dropping the call.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("genai: %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func generationErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &GenerationError{Op: op, Err: err}
}
