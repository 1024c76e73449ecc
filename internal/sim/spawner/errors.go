package spawner

import "fmt"

// ConfigurationError is a spawner whose configuration cannot produce an
// item. The spawner stays EMPTY and retries on a later update.
type ConfigurationError struct {
	SpawnerID string
	Err       error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("spawner %s: configuration: %v", e.SpawnerID, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// StateConsistencyWarning is an operation repeated on an entity that has
// already moved past it. It is logged, never raised to callers.
type StateConsistencyWarning struct {
	EntityID string
	Op       string
	State    string
}

func (w *StateConsistencyWarning) Error() string {
	return fmt.Sprintf("entity %s: %s ignored, already %s", w.EntityID, w.Op, w.State)
}
