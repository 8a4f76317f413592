package health

import (
	"runtime"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Component names tracked by the bridge
const (
	ComponentUplink  = "uplink"
	ComponentPool    = "pool"
	ComponentStorage = "storage"
)

// ComponentHealth represents the health status of a single component
type ComponentHealth struct {
	Name        string      `json:"name"`
	Status      Status      `json:"status"`
	Description string      `json:"description,omitempty"`
	LastChecked time.Time   `json:"last_checked"`
	Details     interface{} `json:"details,omitempty"`
}

// BridgeHealth represents overall bridge health
type BridgeHealth struct {
	Status     Status            `json:"status"`
	Uptime     int64             `json:"uptime_seconds"`
	Timestamp  time.Time         `json:"timestamp"`
	Goroutines int               `json:"goroutines"`
	MemoryMB   uint64            `json:"memory_mb"`
	Components []ComponentHealth `json:"components"`
}

// Monitor tracks bridge health. Components report their own status; the
// overall status is the worst component status. An exhausted uplink or a
// broken store therefore makes the bridge externally observable as
// degraded or unhealthy instead of crashing silently.
type Monitor struct {
	startTime  time.Time
	mu         sync.RWMutex
	components map[string]*ComponentHealth
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		startTime:  time.Now(),
		components: make(map[string]*ComponentHealth),
	}
}

// SetComponentStatus updates the status of a component
func (m *Monitor) SetComponentStatus(name string, status Status, description string) {
	m.SetComponentStatusWithDetails(name, status, description, nil)
}

// SetComponentStatusWithDetails updates component status with additional details
func (m *Monitor) SetComponentStatusWithDetails(name string, status Status, description string, details interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = &ComponentHealth{
		Name:        name,
		Status:      status,
		Description: description,
		LastChecked: time.Now(),
		Details:     details,
	}
}

// ComponentStatus returns the current status of one component
func (m *Monitor) ComponentStatus(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	comp, ok := m.components[name]
	if !ok {
		return "", false
	}
	return comp.Status, true
}

// GetHealth returns the current bridge health snapshot
func (m *Monitor) GetHealth() *BridgeHealth {
	m.mu.RLock()
	components := make([]ComponentHealth, 0, len(m.components))
	overallStatus := StatusHealthy
	for _, comp := range m.components {
		components = append(components, *comp)
		if comp.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
		} else if comp.Status == StatusDegraded && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}
	m.mu.RUnlock()

	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	return &BridgeHealth{
		Status:     overallStatus,
		Uptime:     int64(time.Since(m.startTime).Seconds()),
		Timestamp:  time.Now(),
		Goroutines: runtime.NumGoroutine(),
		MemoryMB:   stats.Alloc / 1024 / 1024,
		Components: components,
	}
}
