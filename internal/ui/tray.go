// Package ui is the system tray presence: save status at a glance,
// pause/resume of auto-saves, quit. All state comes from the engine; the
// tray holds none of its own.
package ui

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"

	"github.com/cutline/cutline-agent/internal/autosave"
)

type Tray struct {
	engine *autosave.Engine
	logger *slog.Logger

	statusItem   *systray.MenuItem
	projectsItem *systray.MenuItem
	networkItem  *systray.MenuItem
	pauseItem    *systray.MenuItem

	mu sync.Mutex

	onQuit func()
}

type TrayConfig struct {
	Engine *autosave.Engine
	Logger *slog.Logger
	OnQuit func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		engine: cfg.Engine,
		logger: cfg.Logger,
		onQuit: cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Cutline")
	systray.SetTooltip("Cutline Agent")

	t.statusItem = systray.AddMenuItem("Saves: Idle", "Current auto-save status")
	t.statusItem.Disable()

	t.projectsItem = systray.AddMenuItem("Projects: 0", "Projects with auto-save active")
	t.projectsItem.Disable()

	t.networkItem = systray.AddMenuItem("Network: Online", "Remote store reachability")
	t.networkItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause Auto-Save", "Suspend automatic saves")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Cutline Agent")

	go func() {
		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.engine == nil {
		return
	}

	if t.engine.IsPaused() {
		t.engine.Resume()
		t.pauseItem.SetTitle("Pause Auto-Save")
		t.statusItem.SetTitle("Saves: Idle")
	} else {
		t.engine.Pause()
		t.pauseItem.SetTitle("Resume Auto-Save")
		t.statusItem.SetTitle("Saves: Paused")
	}
}

// UpdateStatus reflects save activity; suppressed while paused so the menu
// does not flicker between Paused and transient states.
func (t *Tray) UpdateStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.engine != nil && t.engine.IsPaused() {
		return
	}
	t.statusItem.SetTitle("Saves: " + status)
}

func (t *Tray) UpdateProjectCount(count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.projectsItem.SetTitle(fmt.Sprintf("Projects: %d", count))
}

func (t *Tray) UpdateNetwork(online bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if online {
		t.networkItem.SetTitle("Network: Online")
	} else {
		t.networkItem.SetTitle("Network: Offline")
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}
