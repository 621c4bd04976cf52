package crawlers

import (
	"errors"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

func stubMonitor(availableMB, totalMB uint64, cpus int, memErr error) *ResourceMonitor {
	rm := NewResourceMonitor(ResourceMonitorConfig{SessionMemoryMB: 300, SafetyReserveMB: 500})
	rm.virtualMemory = func() (*mem.VirtualMemoryStat, error) {
		if memErr != nil {
			return nil, memErr
		}
		return &mem.VirtualMemoryStat{Available: availableMB * mb, Total: totalMB * mb}, nil
	}
	rm.cpuPercent = func(time.Duration, bool) ([]float64, error) { return []float64{12.5}, nil }
	rm.numCPU = func() int { return cpus }
	return rm
}

func TestResourceMonitor_MaxSessions(t *testing.T) {
	tests := []struct {
		name      string
		available uint64
		cpus      int
		memErr    error
		requested int
		want      int
	}{
		{"资源充足", 16000, 16, nil, 4, 4},
		{"受CPU限制", 16000, 2, nil, 4, 2},
		{"受内存限制", 1500, 16, nil, 8, 3},
		{"内存不足至少为1", 100, 16, nil, 4, 1},
		{"读取内存失败只按CPU", 0, 8, errors.New("no /proc"), 4, 4},
		{"请求为0按1处理", 16000, 16, nil, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := stubMonitor(tt.available, 32000, tt.cpus, tt.memErr)
			if got := rm.MaxSessions(tt.requested); got != tt.want {
				t.Errorf("MaxSessions(%d) = %d, want %d", tt.requested, got, tt.want)
			}
		})
	}
}

func TestResourceMonitor_Snapshot(t *testing.T) {
	tests := []struct {
		name      string
		available uint64
		total     uint64
		want      string
	}{
		{"正常", 4096, 8192, "normal"},
		{"警告", 400, 8192, "warning"},
		{"严重", 250, 8192, "critical"},
		{"紧急", 100, 8192, "emergency"},
		{"未知", 0, 0, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := stubMonitor(tt.available, tt.total, 4, nil).Snapshot()
			if snap.MemoryPressure != tt.want {
				t.Errorf("MemoryPressure = %s, want %s", snap.MemoryPressure, tt.want)
			}
			if snap.NumCPU != 4 || snap.CPUPercent != 12.5 {
				t.Errorf("snap = %+v", snap)
			}
		})
	}
}
