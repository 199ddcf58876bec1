package dedupe

import "fmt"

// ConfigError marks a fatal invocation problem: bad root, conflicting mode
// flags. These surface before any work starts and map to exit code 2; every
// other failure is handled at the per-file boundary and never aborts a run.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string {
	return e.msg
}

func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}
