package browser

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"
)

// hostMemoryPercent returns host-wide used memory as a percentage. The engine
// process tree is opaque to us, so the monitor watches the whole host.
func hostMemoryPercent() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("read memory stats: %w", err)
	}
	return vm.UsedPercent, nil
}
