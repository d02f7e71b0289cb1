// Package performance reports runtime and tab statistics for the debug panel.
package performance

import (
	"runtime"
	"time"
)

// TabCounter reports how many tabs are open and how many hold a live driver.
type TabCounter interface {
	TabCounts() (open, connected int)
}

// Metrics holds runtime statistics plus tab counts.
type Metrics struct {
	// Go runtime
	HeapAlloc      uint64 `json:"heapAlloc"`    // Bytes allocated and in use
	HeapSys        uint64 `json:"heapSys"`      // Bytes obtained from system
	HeapInuse      uint64 `json:"heapInuse"`    // Bytes in non-idle spans
	HeapReleased   uint64 `json:"heapReleased"` // Bytes released to OS
	Goroutines     int    `json:"goroutines"`
	NumGC          uint32 `json:"numGC"`
	LastGCPauseNs  uint64 `json:"lastGCPauseNs"`
	TotalAllocated uint64 `json:"totalAllocated"` // cumulative
	Sys            uint64 `json:"sys"`

	// Tabs
	OpenTabs      int `json:"openTabs"`
	ConnectedTabs int `json:"connectedTabs"` // tabs holding a driver pool

	UptimeSeconds int64  `json:"uptimeSeconds"`
	Timestamp     string `json:"timestamp"`
}

// Service collects Metrics.
type Service struct {
	tabs      TabCounter
	startTime time.Time
	now       func() time.Time
}

// NewService creates a metrics service. tabs may be nil.
func NewService(tabs TabCounter) *Service {
	return &Service{
		tabs:      tabs,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// GetMetrics returns current metrics.
func (s *Service) GetMetrics() *Metrics {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var lastGCPause uint64
	if memStats.NumGC > 0 {
		// PauseNs is a circular buffer
		lastGCPause = memStats.PauseNs[(memStats.NumGC+255)%256]
	}

	var open, connected int
	if s.tabs != nil {
		open, connected = s.tabs.TabCounts()
	}

	now := s.now()
	return &Metrics{
		HeapAlloc:      memStats.HeapAlloc,
		HeapSys:        memStats.HeapSys,
		HeapInuse:      memStats.HeapInuse,
		HeapReleased:   memStats.HeapReleased,
		Goroutines:     runtime.NumGoroutine(),
		NumGC:          memStats.NumGC,
		LastGCPauseNs:  lastGCPause,
		TotalAllocated: memStats.TotalAlloc,
		Sys:            memStats.Sys,
		OpenTabs:       open,
		ConnectedTabs:  connected,
		UptimeSeconds:  int64(now.Sub(s.startTime).Seconds()),
		Timestamp:      now.Format(time.RFC3339),
	}
}

// ForceGC triggers a garbage collection.
func (s *Service) ForceGC() {
	runtime.GC()
}
