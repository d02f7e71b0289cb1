package debug

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// Categories for debug logging (must match frontend DEBUG_CATEGORIES)
const (
	CategoryConnection = "connection"
	CategoryQuery      = "query"
	CategoryKV         = "kv"
	CategoryStorage    = "storage"
)

// Logger mirrors debug messages to the frontend while enabled.
type Logger struct {
	ctx     context.Context
	enabled bool
	mu      sync.RWMutex
}

var globalLogger = &Logger{}

// Init binds the Wails context used to emit events.
func Init(ctx context.Context) {
	globalLogger.mu.Lock()
	globalLogger.ctx = ctx
	globalLogger.mu.Unlock()
}

// SetEnabled enables or disables forwarding to the frontend
func SetEnabled(enabled bool) {
	globalLogger.mu.Lock()
	globalLogger.enabled = enabled
	globalLogger.mu.Unlock()
}

// IsEnabled returns whether frontend forwarding is enabled
func IsEnabled() bool {
	globalLogger.mu.RLock()
	defer globalLogger.mu.RUnlock()
	return globalLogger.enabled
}

// Log writes a debug entry through zerolog and, when enabled, emits it to the frontend.
// details may be nil.
func Log(category, message string, details map[string]interface{}) {
	log.Debug().Str("category", category).Fields(details).Msg(message)

	globalLogger.mu.RLock()
	enabled := globalLogger.enabled
	ctx := globalLogger.ctx
	globalLogger.mu.RUnlock()

	if !enabled || ctx == nil {
		return
	}

	runtime.EventsEmit(ctx, "debug:log", category, message, details)
}

// LogConnection logs a connection-related debug message
func LogConnection(message string, details map[string]interface{}) {
	Log(CategoryConnection, message, details)
}

// LogQuery logs a query-related debug message
func LogQuery(message string, details map[string]interface{}) {
	Log(CategoryQuery, message, details)
}

// LogKV logs a key-value command debug message
func LogKV(message string, details map[string]interface{}) {
	Log(CategoryKV, message, details)
}

// LogStorage logs a profile-store debug message
func LogStorage(message string, details map[string]interface{}) {
	Log(CategoryStorage, message, details)
}
