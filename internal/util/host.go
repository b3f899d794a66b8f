package util

import (
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Version is the application version, set at build time with -ldflags.
var Version = "0.1.0"

const (
	mib = 1 << 20
	gib = 1 << 30
)

// HostInfo describes the machine the server runs on. It is gathered once at
// startup and attached to telemetry and the system API route.
type HostInfo struct {
	Hostname     string `json:"hostname"`
	Platform     string `json:"platform"`
	Architecture string `json:"architecture"`
	GoVersion    string `json:"go_version"`
	CPUModel     string `json:"cpu_model"`
	CPUCores     int    `json:"cpu_cores"`
	MemoryMB     uint64 `json:"memory_mb"`
	BootTime     int64  `json:"boot_time,omitempty"`
}

// DescribeHost collects HostInfo. Probes that fail leave their field at the
// runtime fallback or zero.
func DescribeHost() HostInfo {
	info := HostInfo{
		Platform:     runtime.GOOS,
		Architecture: runtime.GOARCH,
		GoVersion:    runtime.Version(),
		CPUCores:     runtime.NumCPU(),
	}
	info.Hostname, _ = os.Hostname()

	if hi, err := host.Info(); err == nil {
		info.Platform = strings.TrimSpace(hi.Platform + " " + hi.PlatformVersion)
		info.BootTime = int64(hi.BootTime)
	}
	if ci, err := cpu.Info(); err == nil && len(ci) > 0 {
		info.CPUModel = ci[0].ModelName
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryMB = vm.Total / mib
	}
	return info
}

// MemoryStat is system memory in megabytes.
type MemoryStat struct {
	TotalMB     uint64  `json:"total_mb"`
	UsedMB      uint64  `json:"used_mb"`
	AvailableMB uint64  `json:"available_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskStat is filesystem usage in gigabytes for one path.
type DiskStat struct {
	Path        string  `json:"path"`
	TotalGB     uint64  `json:"total_gb"`
	FreeGB      uint64  `json:"free_gb"`
	UsedPercent float64 `json:"used_percent"`
}

// ResourceSample is one reading of host load. A nil section means its probe
// failed.
type ResourceSample struct {
	TakenAt    time.Time   `json:"taken_at"`
	CPUPercent *float64    `json:"cpu_percent,omitempty"`
	Memory     *MemoryStat `json:"memory,omitempty"`
	Disk       *DiskStat   `json:"disk,omitempty"`
	Goroutines int         `json:"goroutines"`
}

// Probe reads host load. Its fields are swappable so callers can test
// threshold logic without touching the real machine.
type Probe struct {
	CPU    func() (float64, error)
	Memory func() (MemoryStat, error)
	Disk   func(path string) (DiskStat, error)
}

// HostProbe returns a Probe backed by gopsutil.
func HostProbe() Probe {
	return Probe{CPU: cpuPercent, Memory: memoryStat, Disk: diskStat}
}

// Sample takes a reading with the disk probe pointed at path.
func (p Probe) Sample(path string) ResourceSample {
	s := ResourceSample{TakenAt: time.Now(), Goroutines: runtime.NumGoroutine()}
	if v, err := p.CPU(); err == nil {
		s.CPUPercent = &v
	}
	if m, err := p.Memory(); err == nil {
		s.Memory = &m
	}
	if d, err := p.Disk(path); err == nil {
		s.Disk = &d
	}
	return s
}

func cpuPercent() (float64, error) {
	pct, err := cpu.Percent(0, false)
	if err != nil || len(pct) == 0 {
		return 0, err
	}
	return pct[0], nil
}

func memoryStat() (MemoryStat, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return MemoryStat{}, err
	}
	return MemoryStat{
		TotalMB:     vm.Total / mib,
		UsedMB:      vm.Used / mib,
		AvailableMB: vm.Available / mib,
		UsedPercent: vm.UsedPercent,
	}, nil
}

func diskStat(path string) (DiskStat, error) {
	du, err := disk.Usage(path)
	if err != nil {
		return DiskStat{}, err
	}
	return DiskStat{
		Path:        path,
		TotalGB:     du.Total / gib,
		FreeGB:      du.Free / gib,
		UsedPercent: du.UsedPercent,
	}, nil
}
