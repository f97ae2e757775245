package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/quantsmith/backcast/internal/backtest"
	"github.com/quantsmith/backcast/internal/domain"
)

type handlers struct {
	summaryData *backtest.Summary
	rows        []domain.DailyRow
	startupTime time.Time
	log         zerolog.Logger
}

func newHandlers(summary *backtest.Summary, rows []domain.DailyRow, log zerolog.Logger) *handlers {
	return &handlers{
		summaryData: summary,
		rows:        rows,
		startupTime: time.Now(),
		log:         log,
	}
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// health reports process uptime and host cpu/memory usage.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	cpuAvg, ramPct := h.systemStats()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.startupTime).Seconds()),
		"run_state":      h.summaryData.State,
		"system": map[string]float64{
			"cpu_percent": cpuAvg,
			"ram_percent": ramPct,
		},
	})
}

func (h *handlers) summary(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.summaryData)
}

func (h *handlers) daily(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.rows)
}

// systemStats samples CPU over a short interval so the endpoint stays fast.
func (h *handlers) systemStats() (float64, float64) {
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

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}
