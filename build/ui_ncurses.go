package build

import (
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// NcursesUI implements BuildUI with a tview/tcell live dashboard: a header
// showing job totals, and a scrolling event log below it. Toggled off by
// config.Config.DisableUI.
type NcursesUI struct {
	app           *tview.Application
	headerText    *tview.TextView
	eventsText    *tview.TextView
	layout        *tview.Flex
	mu            sync.Mutex
	eventLines    []string
	maxEventLines int
	stopped       bool
	startTime     time.Time
}

// NewNcursesUI returns a ready-to-use NcursesUI.
func NewNcursesUI() *NcursesUI {
	return &NcursesUI{maxEventLines: 200}
}

func (ui *NcursesUI) Start() error {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	ui.startTime = time.Now()
	ui.app = tview.NewApplication()

	ui.headerText = tview.NewTextView().SetDynamicColors(true)
	ui.headerText.SetBorder(true).SetTitle(" driver ")
	ui.headerText.SetText("[yellow]planning...[white]")

	ui.eventsText = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() { ui.app.Draw() })
	ui.eventsText.SetBorder(true).SetTitle(" jobs ")

	ui.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.headerText, 3, 0, false).
		AddItem(ui.eventsText, 0, 1, false)

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune && (event.Rune() == 'q' || event.Rune() == 'Q') {
			ui.app.Stop()
			return nil
		}
		return event
	})

	go func() {
		ui.app.SetRoot(ui.layout, true).EnableMouse(true).Run()
	}()

	time.Sleep(50 * time.Millisecond)
	return nil
}

func (ui *NcursesUI) Stop() {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if ui.stopped {
		return
	}
	ui.stopped = true
	if ui.app != nil {
		ui.app.Stop()
	}
}

func (ui *NcursesUI) UpdateProgress(stats Stats) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if ui.app == nil || ui.stopped {
		return
	}
	header := fmt.Sprintf("[yellow]Progress:[white] %d/%d  [red]Failed:[white] %d  [green]Elapsed:[white] %s",
		stats.NumFinished, stats.NumTotal, stats.NumFailed, time.Since(ui.startTime).Round(time.Second))
	ui.app.QueueUpdateDraw(func() {
		ui.headerText.SetText(header)
	})
}

func (ui *NcursesUI) LogEvent(message string) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if ui.app == nil || ui.stopped {
		return
	}
	ui.eventLines = append(ui.eventLines, fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), message))
	if len(ui.eventLines) > ui.maxEventLines {
		ui.eventLines = ui.eventLines[1:]
	}
	text := ""
	for _, line := range ui.eventLines {
		text += line + "\n"
	}
	ui.app.QueueUpdateDraw(func() {
		ui.eventsText.SetText(text)
		ui.eventsText.ScrollToEnd()
	})
}
