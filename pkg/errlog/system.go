package errlog

import (
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemProbe reports host facts. Static facts are read once, usage figures
// are sampled on every call when enabled.
type SystemProbe struct {
	withUsage bool
	diskPath  string

	once   sync.Once
	static SystemInfo
}

func NewSystemProbe(withUsage bool) *SystemProbe {
	return &SystemProbe{
		withUsage: withUsage,
		diskPath:  rootPath(),
	}
}

// Info returns a fresh copy so callers may attach it to a record.
func (p *SystemProbe) Info() *SystemInfo {
	p.once.Do(p.loadStatic)

	info := p.static
	if !p.withUsage {
		return &info
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		info.CPUPercent = &pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryPercent = &vm.UsedPercent
	}
	if du, err := disk.Usage(p.diskPath); err == nil {
		info.DiskPercent = &du.UsedPercent
	}
	return &info
}

func (p *SystemProbe) loadStatic() {
	p.static = SystemInfo{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
	}

	if hostname, err := os.Hostname(); err == nil {
		p.static.Hostname = hostname
	}

	hi, err := host.Info()
	if err != nil {
		return
	}
	if hi.OS != "" {
		p.static.OS = hi.OS
	}
	if p.static.Hostname == "" {
		p.static.Hostname = hi.Hostname
	}
	p.static.Platform = hi.Platform
	p.static.PlatformVersion = hi.PlatformVersion
	p.static.KernelVersion = hi.KernelVersion
}

func rootPath() string {
	if runtime.GOOS == "windows" {
		if wd, err := os.Getwd(); err == nil && len(wd) >= 2 {
			return wd[:2] + `\`
		}
		return `C:\`
	}
	return "/"
}
