package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/nerrad567/gray-logic-device-control/internal/control"
)

// healthCheckTimeout bounds each subsystem check on /health.
const healthCheckTimeout = 3 * time.Second

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Redis      string            `json:"redis"`
	Error      string            `json:"error,omitempty"`
	Version    string            `json:"version,omitempty"`
	Subsystems map[string]string `json:"subsystems,omitempty"`
}

// handleHealth reports store reachability and the state of optional
// subsystems. It always answers 200; the status field carries the verdict.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:  "healthy",
		Redis:   "connected",
		Version: s.version,
	}
	if h := s.control.Health(ctx); !h.Healthy {
		resp.Status = "unhealthy"
		resp.Redis = "disconnected"
		if h.Err != nil {
			resp.Error = h.Err.Error()
		}
	}

	if len(s.subsystems) > 0 {
		names := make([]string, 0, len(s.subsystems))
		for name := range s.subsystems {
			names = append(names, name)
		}
		sort.Strings(names)

		resp.Subsystems = make(map[string]string, len(names))
		for _, name := range names {
			if err := s.subsystems[name].HealthCheck(ctx); err != nil {
				resp.Subsystems[name] = "unhealthy"
				s.logger.Warn("subsystem unhealthy", "subsystem", name, "error", err)
				continue
			}
			resp.Subsystems[name] = "healthy"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// SystemMetrics is the body of GET /metrics.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	Devices       *control.Stats   `json:"devices,omitempty"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// DatabaseMetrics contains history database pool statistics.
type DatabaseMetrics struct {
	OpenConnections int `json:"open_connections"`
	InUse           int `json:"in_use"`
	Idle            int `json:"idle"`
}

// handleMetrics returns runtime, hub, device and database statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
	}

	// Device counts are omitted rather than failing the whole response.
	if stats, err := s.control.Stats(r.Context()); err == nil {
		metrics.Devices = &stats
	} else {
		s.logger.Warn("device stats unavailable", "error", err)
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
