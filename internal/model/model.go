package model

// CycleContext carries values produced by one collector and consumed by a
// later one during a single refresh of a single target. The orchestrator
// creates a fresh context per refresh, so a value can never leak into
// another cycle or another target.
type CycleContext struct {
	totalMemoryBytes float64
	totalMemorySet   bool
}

// SetTotalMemoryBytes records the total amount of memory of the target.
func (c *CycleContext) SetTotalMemoryBytes(v float64) {
	c.totalMemoryBytes = v
	c.totalMemorySet = true
}

// TotalMemoryBytes returns the recorded total memory and whether it was
// recorded during this cycle.
func (c *CycleContext) TotalMemoryBytes() (float64, bool) {
	return c.totalMemoryBytes, c.totalMemorySet
}
