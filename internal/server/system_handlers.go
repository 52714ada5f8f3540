package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ravitejakamalapuram/copytradepro/internal/database"
	"github.com/ravitejakamalapuram/copytradepro/internal/handshake"
)

// SystemHandlers serves health probes and operational stats.
type SystemHandlers struct {
	log           zerolog.Logger
	dataDir       string
	accountsDB    *database.DB
	ordersCacheDB *database.DB
	handshakes    *handshake.Registry
	startedAt     time.Time
}

// NewSystemHandlers creates the system handlers.
func NewSystemHandlers(log zerolog.Logger, dataDir string, accountsDB, ordersCacheDB *database.DB, handshakes *handshake.Registry) *SystemHandlers {
	return &SystemHandlers{
		log:           log.With().Str("handler", "system").Logger(),
		dataDir:       dataDir,
		accountsDB:    accountsDB,
		ordersCacheDB: ordersCacheDB,
		handshakes:    handshakes,
		startedAt:     time.Now(),
	}
}

// HandleHealth is the liveness probe
// GET /health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeSystemJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// HandleSystemHealth pings both databases
// GET /api/system/health
func (h *SystemHandlers) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	status := http.StatusOK

	for _, db := range []*database.DB{h.accountsDB, h.ordersCacheDB} {
		if err := db.QuickCheck(ctx); err != nil {
			checks[db.Name()] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks[db.Name()] = "ok"
		}
	}

	writeSystemJSON(w, status, map[string]interface{}{
		"status":    statusWord(status),
		"databases": checks,
	})
}

// HandleSystemStats returns CPU/RAM usage, database sizes, and
// in-flight handshake count
// GET /api/system/stats
func (h *SystemHandlers) HandleSystemStats(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.getSystemStats()

	stats := map[string]interface{}{
		"cpu_percent":       cpuPercent,
		"ram_percent":       ramPercent,
		"uptime":            time.Since(h.startedAt).Round(time.Second).String(),
		"active_handshakes": h.handshakes.ActiveCount(),
	}

	databases := map[string]interface{}{}
	for _, db := range []*database.DB{h.accountsDB, h.ordersCacheDB} {
		if dbStats, err := db.GetStats(); err == nil {
			databases[db.Name()] = map[string]int64{
				"size_bytes":     dbStats.SizeBytes,
				"wal_size_bytes": dbStats.WALSizeBytes,
				"page_count":     dbStats.PageCount,
			}
		}
	}
	stats["databases"] = databases

	writeSystemJSON(w, http.StatusOK, stats)
}

// getSystemStats calculates CPU and RAM usage percentages.
// Uses a short interval so the stats endpoint answers fast.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	avg := 0.0
	if len(cpuPercent) > 0 {
		avg = cpuPercent[0]
	}
	return avg, memStat.UsedPercent
}

func statusWord(httpStatus int) string {
	if httpStatus == http.StatusOK {
		return "ok"
	}
	return "degraded"
}

func writeSystemJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
