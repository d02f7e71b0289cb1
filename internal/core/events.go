package core

import (
	"context"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// EventEmitter defines the interface for emitting events to the UI.
type EventEmitter interface {
	Emit(eventName string, data interface{})
}

// WailsEventEmitter emits events using the Wails runtime.
type WailsEventEmitter struct {
	Ctx context.Context
}

// Emit sends an event to the frontend via Wails runtime.
func (e *WailsEventEmitter) Emit(eventName string, data interface{}) {
	if e.Ctx != nil {
		runtime.EventsEmit(e.Ctx, eventName, data)
	}
}

// NoopEventEmitter is a no-op event emitter for testing.
type NoopEventEmitter struct{}

// Emit does nothing (used for tests).
func (e *NoopEventEmitter) Emit(eventName string, data interface{}) {}

// Event names emitted for tab lifecycle changes.
const (
	EventTabOpened       = "tab:opened"
	EventTabConnected    = "tab:connected"
	EventTabDisconnected = "tab:disconnected"
	EventTabClosed       = "tab:closed"
	EventWarning         = "app:warning"
)

// =============================================================================
// Custom Error Types
// =============================================================================

// NotConnectedError indicates an operation was attempted before connect succeeded.
type NotConnectedError struct {
	Target string // tab id or backend name
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("not connected: %s", e.Target)
}

// ProfileNotFoundError indicates a saved connection profile was not found.
type ProfileNotFoundError struct {
	ID string
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("connection profile not found: %s", e.ID)
}

// TabNotFoundError indicates a tab id is not registered.
type TabNotFoundError struct {
	ID string
}

func (e *TabNotFoundError) Error() string {
	return fmt.Sprintf("tab not found: %s", e.ID)
}

// UnsupportedBackendError is returned by the driver factory for unknown or
// not yet implemented backend types. It is never retried.
type UnsupportedBackendError struct {
	Type string
}

func (e *UnsupportedBackendError) Error() string {
	return fmt.Sprintf("unsupported backend type: %q", e.Type)
}

// Reasons attached to a ConnectionError.
const (
	ReasonUnreachable = "unreachable"
	ReasonAuth        = "auth"
	ReasonTLS         = "tls"
	ReasonConfig      = "config"
	ReasonUnknown     = "unknown"
)

// ConnectionError wraps a backend-native failure raised while establishing a connection.
type ConnectionError struct {
	Backend string
	Host    string
	Port    int
	Reason  string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection to %s:%d failed (%s): %v", e.Backend, e.Host, e.Port, e.Reason, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ScanInterruptedError reports a cursor walk aborted part way through.
// Processed counts the keys handled before the failure.
type ScanInterruptedError struct {
	Pattern   string
	Cursor    uint64
	Processed int64
	Err       error
}

func (e *ScanInterruptedError) Error() string {
	return fmt.Sprintf("scan of %q interrupted at cursor %d after %d keys: %v", e.Pattern, e.Cursor, e.Processed, e.Err)
}

func (e *ScanInterruptedError) Unwrap() error { return e.Err }
