package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

var startedAt = time.Now()

// Health handles GET /health
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// GetSystemResources handles GET /api/system/resources.
// Host CPU and memory usage with the number of running samplers.
func GetSystemResources(c *gin.Context) {
	resp := gin.H{
		"uptimeSeconds": int64(time.Since(startedAt).Seconds()),
		"goroutines":    runtime.NumGoroutine(),
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		resp["cpuPercent"] = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp["memoryPercent"] = vm.UsedPercent
		resp["memoryUsedMb"] = vm.Used / 1024 / 1024
		resp["memoryTotalMb"] = vm.Total / 1024 / 1024
	}
	if monitor != nil {
		resp["runningSamplers"] = monitor.RunningCount()
	}

	c.JSON(http.StatusOK, resp)
}
