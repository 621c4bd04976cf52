package crawlers

import (
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const mb = 1024 * 1024

// ResourceMonitor 系统资源监控器
// 职责: 根据可用内存和CPU核数限制浏览器会话数量
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 可替换的采样函数
	virtualMemory func() (*mem.VirtualMemoryStat, error)
	cpuPercent    func(interval time.Duration, perCPU bool) ([]float64, error)
	numCPU        func() int
}

// ResourceMonitorConfig 资源监控器配置
type ResourceMonitorConfig struct {
	SafetyReserveMB int64 // 为系统保留的内存(MB)
	SessionMemoryMB int64 // 单个浏览器会话平均内存消耗(MB)
}

// ResourceSnapshot 一次资源采样结果
type ResourceSnapshot struct {
	TotalMemory     uint64  // 系统总内存(字节)
	AvailableMemory uint64  // 可用内存(字节)
	CPUPercent      float64 // 全部核心平均使用率
	NumCPU          int     // CPU核数
	MemoryPressure  string  // 内存压力等级
}

// NewResourceMonitor 创建资源监控器实例
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.SessionMemoryMB <= 0 {
		config.SessionMemoryMB = 300
	}
	if config.SafetyReserveMB < 0 {
		config.SafetyReserveMB = 0
	}
	return &ResourceMonitor{
		config:        config,
		virtualMemory: mem.VirtualMemory,
		cpuPercent:    cpu.Percent,
		numCPU:        runtime.NumCPU,
	}
}

// MaxSessions 计算允许同时运行的会话数
// 结果不超过requested,不超过CPU核数,不超过可用内存能容纳的数量,至少为1
func (rm *ResourceMonitor) MaxSessions(requested int) int {
	if requested < 1 {
		requested = 1
	}
	result := requested

	if n := rm.numCPU(); n > 0 && n < result {
		result = n
	}

	vmStat, err := rm.virtualMemory()
	if err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败,不按内存限制会话数")
	} else {
		available := int64(vmStat.Available)/mb - rm.config.SafetyReserveMB
		byMemory := int(available / rm.config.SessionMemoryMB)
		if byMemory < result {
			result = byMemory
		}
	}

	if result < 1 {
		result = 1
	}
	if result < requested {
		log.Warn().Msgf("受系统资源限制,会话数由%d调整为%d", requested, result)
	}
	return result
}

// Snapshot 采样当前内存和CPU状态
func (rm *ResourceMonitor) Snapshot() ResourceSnapshot {
	snap := ResourceSnapshot{NumCPU: rm.numCPU()}

	if vmStat, err := rm.virtualMemory(); err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败")
	} else {
		snap.TotalMemory = vmStat.Total
		snap.AvailableMemory = vmStat.Available
	}

	// 100毫秒采样,perCPU=false返回所有核心的平均使用率
	if percentages, err := rm.cpuPercent(100*time.Millisecond, false); err != nil {
		log.Warn().Err(err).Msg("获取CPU使用率失败")
	} else if len(percentages) > 0 {
		snap.CPUPercent = percentages[0]
	}

	availableMB := int64(snap.AvailableMemory) / mb
	switch {
	case snap.TotalMemory == 0:
		snap.MemoryPressure = "unknown"
	case availableMB < 200:
		snap.MemoryPressure = "emergency"
	case availableMB < 300:
		snap.MemoryPressure = "critical"
	case availableMB < 500:
		snap.MemoryPressure = "warning"
	default:
		snap.MemoryPressure = "normal"
	}
	return snap
}
