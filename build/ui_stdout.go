package build

import (
	"fmt"
	"sync"
)

// StdoutUI implements BuildUI with plain stdout output.
type StdoutUI struct {
	mu sync.Mutex
}

// NewStdoutUI returns a ready-to-use StdoutUI.
func NewStdoutUI() *StdoutUI { return &StdoutUI{} }

func (ui *StdoutUI) Start() error { return nil }

func (ui *StdoutUI) Stop() {
	fmt.Println()
}

func (ui *StdoutUI) UpdateProgress(stats Stats) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	fmt.Printf("\r[%d/%d] finished, %d failed%-10s", stats.NumFinished, stats.NumTotal, stats.NumFailed, "")
}

func (ui *StdoutUI) LogEvent(message string) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	fmt.Printf("\r%-80s\n", message)
}
