package automation

import (
	"fmt"
	"runtime"
	"strings"
)

// PanicError is a recovered panic raised by unit logic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// RecoverPanic converts a recovered value into a PanicError, capturing a
// stack trace trimmed to start at the panicking frame. Call it with the
// result of recover() from a deferred function.
func RecoverPanic(value any) *PanicError {
	if value == nil {
		return nil
	}
	stack := make([]byte, 8096)
	n := runtime.Stack(stack, false)
	return &PanicError{Value: value, Stack: cleanStackTrace(stack[:n])}
}

func cleanStackTrace(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")

	panicLineIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			panicLineIndex = i
			break
		}
	}

	// drop the runtime panic() call and its file reference line
	if panicLineIndex >= 0 && panicLineIndex+2 < len(lines) {
		lines = lines[panicLineIndex+2:]
	}

	return []byte(strings.Join(lines, "\n"))
}
