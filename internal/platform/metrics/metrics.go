// Package metrics provides observability for the simulation server.
// Counters are cheap atomics so the tick loop can record freely.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers performance and gameplay metrics.
type Collector struct {
	// Tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTickTime   time.Time

	// Detection metrics
	DetectionChecks int64
	DetectionHits   int64
	PatrolSteps     int64

	// Heat metrics
	HeatAdds           int64
	HeatReductions     int64
	ThresholdCrossings int64
	Investigations     int64

	// Event metrics
	EventsWritten    int64
	EventWriteLatSum int64
	EventWriteLatMax int64
	EventWriteErrors int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSErrors            int64

	// System
	StartTime time.Time
	mu        sync.RWMutex
}

// Global collector instance
var collector = &Collector{
	StartTime: time.Now(),
}

// Get returns the global collector.
func Get() *Collector {
	return collector
}

// RecordTick records a tick cycle completion.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))

	// Update max (non-atomic but acceptable for metrics)
	if int64(latency) > atomic.LoadInt64(&c.TickLatencyMax) {
		atomic.StoreInt64(&c.TickLatencyMax, int64(latency))
	}

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordDetectionCheck records one CheckDetection evaluation.
func (c *Collector) RecordDetectionCheck(hit bool) {
	atomic.AddInt64(&c.DetectionChecks, 1)
	if hit {
		atomic.AddInt64(&c.DetectionHits, 1)
	}
}

// RecordPatrolStep records an observer advancing along its route.
func (c *Collector) RecordPatrolStep() {
	atomic.AddInt64(&c.PatrolSteps, 1)
}

// RecordHeat records heat accumulator mutations.
func (c *Collector) RecordHeat(added bool) {
	if added {
		atomic.AddInt64(&c.HeatAdds, 1)
	} else {
		atomic.AddInt64(&c.HeatReductions, 1)
	}
}

// RecordThresholdCrossing records an upward heat threshold crossing.
func (c *Collector) RecordThresholdCrossing() {
	atomic.AddInt64(&c.ThresholdCrossings, 1)
}

// RecordInvestigation records a Surveillance/Audit/Raid/Warrant trigger.
func (c *Collector) RecordInvestigation() {
	atomic.AddInt64(&c.Investigations, 1)
}

// RecordEventWrite records an event write to the database.
func (c *Collector) RecordEventWrite(latency time.Duration, err error) {
	atomic.AddInt64(&c.EventsWritten, 1)
	atomic.AddInt64(&c.EventWriteLatSum, int64(latency))

	if int64(latency) > atomic.LoadInt64(&c.EventWriteLatMax) {
		atomic.StoreInt64(&c.EventWriteLatMax, int64(latency))
	}

	if err != nil {
		atomic.AddInt64(&c.EventWriteErrors, 1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	eventsWritten := atomic.LoadInt64(&c.EventsWritten)

	var tickAvg, eventAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}
	if eventsWritten > 0 {
		eventAvg = float64(atomic.LoadInt64(&c.EventWriteLatSum)) / float64(eventsWritten) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      c.LastTickTime.Format(time.RFC3339),
		},

		"detection": map[string]interface{}{
			"checks":       atomic.LoadInt64(&c.DetectionChecks),
			"hits":         atomic.LoadInt64(&c.DetectionHits),
			"patrol_steps": atomic.LoadInt64(&c.PatrolSteps),
		},

		"heat": map[string]interface{}{
			"adds":                atomic.LoadInt64(&c.HeatAdds),
			"reductions":          atomic.LoadInt64(&c.HeatReductions),
			"threshold_crossings": atomic.LoadInt64(&c.ThresholdCrossings),
			"investigations":      atomic.LoadInt64(&c.Investigations),
		},

		"events": map[string]interface{}{
			"written":          eventsWritten,
			"avg_write_lat_ms": eventAvg,
			"max_write_lat_ms": float64(atomic.LoadInt64(&c.EventWriteLatMax)) / 1e6,
			"errors":           atomic.LoadInt64(&c.EventWriteErrors),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")

		snapshot := collector.Snapshot()
		json.NewEncoder(w).Encode(snapshot)
	}
}

// PrometheusHandler returns metrics in Prometheus format.
func PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		c := collector

		fmt.Fprintf(w, "# HELP vidadoble_tick_count Total tick cycles\n")
		fmt.Fprintf(w, "# TYPE vidadoble_tick_count counter\n")
		fmt.Fprintf(w, "vidadoble_tick_count %d\n\n", atomic.LoadInt64(&c.TickCount))

		fmt.Fprintf(w, "# HELP vidadoble_tick_latency_max_ms Maximum tick latency\n")
		fmt.Fprintf(w, "# TYPE vidadoble_tick_latency_max_ms gauge\n")
		fmt.Fprintf(w, "vidadoble_tick_latency_max_ms %.2f\n\n", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)

		fmt.Fprintf(w, "# HELP vidadoble_detection_checks Total detection checks\n")
		fmt.Fprintf(w, "# TYPE vidadoble_detection_checks counter\n")
		fmt.Fprintf(w, "vidadoble_detection_checks %d\n\n", atomic.LoadInt64(&c.DetectionChecks))

		fmt.Fprintf(w, "# HELP vidadoble_detection_hits Total positive detections\n")
		fmt.Fprintf(w, "# TYPE vidadoble_detection_hits counter\n")
		fmt.Fprintf(w, "vidadoble_detection_hits %d\n\n", atomic.LoadInt64(&c.DetectionHits))

		fmt.Fprintf(w, "# HELP vidadoble_heat_threshold_crossings Upward heat threshold crossings\n")
		fmt.Fprintf(w, "# TYPE vidadoble_heat_threshold_crossings counter\n")
		fmt.Fprintf(w, "vidadoble_heat_threshold_crossings %d\n\n", atomic.LoadInt64(&c.ThresholdCrossings))

		fmt.Fprintf(w, "# HELP vidadoble_investigations Total investigations triggered\n")
		fmt.Fprintf(w, "# TYPE vidadoble_investigations counter\n")
		fmt.Fprintf(w, "vidadoble_investigations %d\n\n", atomic.LoadInt64(&c.Investigations))

		fmt.Fprintf(w, "# HELP vidadoble_events_written Total events written\n")
		fmt.Fprintf(w, "# TYPE vidadoble_events_written counter\n")
		fmt.Fprintf(w, "vidadoble_events_written %d\n\n", atomic.LoadInt64(&c.EventsWritten))

		fmt.Fprintf(w, "# HELP vidadoble_event_write_errors Total event write errors\n")
		fmt.Fprintf(w, "# TYPE vidadoble_event_write_errors counter\n")
		fmt.Fprintf(w, "vidadoble_event_write_errors %d\n\n", atomic.LoadInt64(&c.EventWriteErrors))

		fmt.Fprintf(w, "# HELP vidadoble_ws_connections Active WebSocket connections\n")
		fmt.Fprintf(w, "# TYPE vidadoble_ws_connections gauge\n")
		fmt.Fprintf(w, "vidadoble_ws_connections %d\n\n", atomic.LoadInt64(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP vidadoble_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE vidadoble_ws_messages_total counter\n")
		fmt.Fprintf(w, "vidadoble_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "vidadoble_ws_messages_total{direction=\"out\"} %d\n", atomic.LoadInt64(&c.WSMessagesOut))
	}
}
