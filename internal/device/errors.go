package device

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNotInitialized    = errors.New("device not initialized")
	ErrMalformedResponse = errors.New("response carries no register payload")
	ErrNoTransport       = errors.New("no transport factory configured")
)

// ConnectionError is returned when the connect retry budget is exhausted.
type ConnectionError struct {
	Port     string
	Attempts int
	Cause    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed after %d attempt(s): %v", e.Port, e.Attempts, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// OperationError ties a failure to the named controller operation.
// Its text is what GetLastError reports.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string { return e.Op + " failed: " + e.Err.Error() }

func (e *OperationError) Unwrap() error { return e.Err }

// ErrorState holds the last failure of a controller. The zero value is empty
// and ready to use. One ErrorState may be shared between controllers with
// WithErrorState.
type ErrorState struct {
	mu  sync.RWMutex
	msg string
	err error
}

func NewErrorState() *ErrorState { return &ErrorState{} }

func (s *ErrorState) Set(err error) {
	if err == nil {
		s.Clear()
		return
	}
	s.mu.Lock()
	s.msg = err.Error()
	s.err = err
	s.mu.Unlock()
}

func (s *ErrorState) Clear() {
	s.mu.Lock()
	s.msg = ""
	s.err = nil
	s.mu.Unlock()
}

func (s *ErrorState) Message() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.msg
}

func (s *ErrorState) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
