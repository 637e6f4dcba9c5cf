// Package cpuspec inspects the host CPU to size inference thread pools.
package cpuspec

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec describes the processor the interpreters run on.
type CPUSpec struct {
	BrandName     string
	PhysicalCores int
	LogicalCores  int
	AVX2          bool // XNNPACK fast paths need AVX2 on x86
	NEON          bool
}

// GetCPUSpec reads the processor description.
func GetCPUSpec() CPUSpec {
	return CPUSpec{
		BrandName:     cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		AVX2:          cpuid.CPU.Supports(cpuid.AVX2),
		NEON:          cpuid.CPU.Supports(cpuid.ASIMD),
	}
}

// GetOptimalThreadCount returns the thread count for one interpreter,
// preferring physical cores when they are known.
func (c CPUSpec) GetOptimalThreadCount() int {
	available := runtime.NumCPU()

	switch {
	case c.PhysicalCores > 0:
		return min(c.PhysicalCores, available)
	case c.LogicalCores > 0:
		return min(c.LogicalCores, available)
	default:
		return available
	}
}

// ThreadCount resolves a configured thread count: 0 selects the optimal
// count, larger values are capped at the number of CPUs.
func ThreadCount(configured int) int {
	available := runtime.NumCPU()
	if configured <= 0 {
		return GetCPUSpec().GetOptimalThreadCount()
	}
	return min(configured, available)
}
