package services

// Service error taxonomy. Every operation fails with exactly one of these (or a
// plain wrapped storage error); handlers and the coordinator map them to HTTP
// statuses and websocket error payloads in one place.

type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Validation error"
}

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

// StateConflictError is a rejected lifecycle transition: restarting a completed
// exam type, finishing a session that never started. Reported, user-visible,
// and guaranteed to leave no mutation behind.
type StateConflictError struct{ Message string }

func (e *StateConflictError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }
