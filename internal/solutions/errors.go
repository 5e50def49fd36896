package solutions

import "fmt"

// NotFoundError is returned when none of the candidate paths exists.
type NotFoundError struct {
	Cwd   string
	Tried []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("JSON file not found. Current dir: %s", e.Cwd)
}

// FormatError is returned when the solutions file cannot be read as a
// ranked solution list. Msg is safe to show to clients.
type FormatError struct {
	Msg string
}

func (e *FormatError) Error() string {
	return e.Msg
}

func formatErrorf(format string, args ...any) error {
	return &FormatError{Msg: fmt.Sprintf(format, args...)}
}
