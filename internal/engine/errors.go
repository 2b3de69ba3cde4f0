package engine

import "fmt"

// UnknownModelError reports an inbound resource whose type is absent from the
// model registry. Fatal for that message: no safe default behavior exists.
type UnknownModelError struct {
	Type string
}

func (e UnknownModelError) Error() string {
	return fmt.Sprintf("engine: unknown model %s", e.Type)
}

// ConfigError reports an invalid engine configuration detected at
// construction time.
type ConfigError struct {
	Field  string
	Reason string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("engine: config %s: %s", e.Field, e.Reason)
}
