package server

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/skourtis/boomtown/internal/database"
	"github.com/skourtis/boomtown/internal/domain"
)

// handleSystemStatus handles GET /api/system/status: process and host vitals.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"uptime":     time.Since(s.startedAt).String(),
		"goroutines": runtime.NumGoroutine(),
		"go_version": runtime.Version(),
	}

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		status["cpu_percent"] = cpuPercent[0]
	} else if err != nil {
		s.log.Warn().Err(err).Msg("CPU sample failed")
	}

	if memStat, err := mem.VirtualMemory(); err == nil {
		status["memory"] = map[string]interface{}{
			"total_mb":     memStat.Total / 1024 / 1024,
			"used_mb":      memStat.Used / 1024 / 1024,
			"used_percent": memStat.UsedPercent,
		}
	} else {
		s.log.Warn().Err(err).Msg("Memory sample failed")
	}

	s.writeData(w, http.StatusOK, status)
}

// handleDatabaseStats handles GET /api/system/database/stats.
func (s *Server) handleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	dbs := []*database.DB{s.authDB, s.gameDB, s.socialDB}

	stats := make([]map[string]interface{}, 0, len(dbs))
	totalMB := 0.0
	for _, db := range dbs {
		entry := map[string]interface{}{"name": db.Name()}
		if info, err := os.Stat(db.Path()); err == nil {
			sizeMB := float64(info.Size()) / 1024 / 1024
			totalMB += sizeMB
			entry["size_mb"] = sizeMB
		}
		entry["open_connections"] = db.Conn().Stats().OpenConnections
		stats = append(stats, entry)
	}

	s.writeData(w, http.StatusOK, map[string]interface{}{
		"databases":     stats,
		"total_size_mb": totalMB,
	})
}

// handleDiskUsage handles GET /api/system/disk.
func (s *Server) handleDiskUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := disk.Usage(s.cfg.DataDir)
	if err != nil {
		s.writeError(w, domain.E(domain.KindInternal, "disk usage unavailable"))
		return
	}

	s.writeData(w, http.StatusOK, map[string]interface{}{
		"path":          usage.Path,
		"total_mb":      usage.Total / 1024 / 1024,
		"free_mb":       usage.Free / 1024 / 1024,
		"used_percent":  usage.UsedPercent,
		"data_dir_mb":   dirSizeMB(s.cfg.DataDir),
	})
}

// handleJobsStatus handles GET /api/system/jobs.
func (s *Server) handleJobsStatus(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, http.StatusOK, map[string]interface{}{
		"jobs": []map[string]interface{}{
			{
				"name":     s.tickJob.Name(),
				"schedule": s.cfg.TickCron,
				"workers":  s.cfg.TickWorkers,
			},
		},
	})
}

// handleTriggerTick handles POST /api/system/jobs/tick: runs the global tick
// immediately, outside the cron schedule.
func (s *Server) handleTriggerTick(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.RunNow(s.tickJob); err != nil {
		s.writeError(w, err)
		return
	}
	s.audit.Record(currentUser(r).ID, "tick_triggered", "", "")
	s.writeData(w, http.StatusOK, map[string]string{"status": "completed"})
}

// dirSizeMB totals the size of every file under a directory.
func dirSizeMB(dir string) float64 {
	var total int64
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return float64(total) / 1024 / 1024
}
