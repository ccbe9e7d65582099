/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package reload implements the debounced, batched state machine that
// coordinates the watcher, the compile coordinator, and the supervised
// child: the reload controller.
package reload

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-tsrun/tsrun/internal/logging"
)

// debounceWindow is the trailing-edge debounce applied to enqueueReload.
const debounceWindow = 15 * time.Millisecond

// Batch is the pending work accumulated between flushes. Invalidate is
// monotonic within a batch: once true it stays true until the batch is
// flushed.
type Batch struct {
	Paths      []string
	Invalidate bool
}

// Coordinator is the subset of coordinator.Coordinator the controller
// drives, expressed locally so this package depends only on primitive
// types.
type Coordinator interface {
	InvalidateBuildSet()
	Rebuild() error
}

// Supervisor is the subset of supervisor.Supervisor the controller drives.
type Supervisor interface {
	Restart() error
	Stop()
}

// Controller holds the current Batch and owns the supervisor, the compile
// coordinator, and the shutdown-cleanup list. A Controller is constructed
// first with Supervisor left nil and back-filled via SetSupervisor once
// the supervisor exists; the controller's reference to it is non-owning,
// for dispatch only.
type Controller struct {
	mu          sync.Mutex
	batch       Batch
	timer       *time.Timer
	coordinator Coordinator
	supervisor  Supervisor
	log         logging.Logger
	cleanups    []func()
	exit        func(code int)
}

// New constructs a controller around coordinator. The supervisor is
// injected afterward via SetSupervisor.
func New(coordinator Coordinator, log logging.Logger) *Controller {
	return &Controller{
		coordinator: coordinator,
		log:         log,
		exit:        defaultExit,
	}
}

func defaultExit(code int) {
	// Overridden by cmd's main wiring; kept as a plain function value here
	// so tests can substitute their own without an os.Exit in the package.
}

// SetExit overrides the function called by Shutdown, letting callers (main,
// or tests) observe the exit code without the process actually exiting.
func (c *Controller) SetExit(exit func(code int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exit = exit
}

// SetSupervisor backfills the non-owning supervisor handle after
// construction.
func (c *Controller) SetSupervisor(s Supervisor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supervisor = s
}

// RegisterCleanup appends fn to the shutdown-cleanup list, run in
// registration order by Shutdown.
func (c *Controller) RegisterCleanup(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups = append(c.cleanups, fn)
}

// EnqueueReload appends path to the current batch, folds invalidate into
// the batch's monotonic flag, and (re)schedules the trailing-edge debounce.
func (c *Controller) EnqueueReload(path string, invalidate bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.batch.Paths = append(c.batch.Paths, path)
	c.batch.Invalidate = c.batch.Invalidate || invalidate

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(debounceWindow, c.reloadNow)
}

// reloadNow snapshots and clears the batch atomically with respect to
// further EnqueueReload calls, then runs invalidate -> rebuild -> restart in
// strict sequence so a restart never observes a partially compiled
// build-set.
func (c *Controller) reloadNow() {
	c.mu.Lock()
	batch := c.batch
	c.batch = Batch{}
	coordinator := c.coordinator
	supervisor := c.supervisor
	c.mu.Unlock()

	if len(batch.Paths) == 0 {
		return
	}

	c.log.Info("%s", summaryLine(batch.Paths, batch.Invalidate))

	if batch.Invalidate {
		coordinator.InvalidateBuildSet()
	}
	if err := coordinator.Rebuild(); err != nil {
		c.log.Error("rebuild failed: %v", err)
	}
	if supervisor != nil {
		if err := supervisor.Restart(); err != nil {
			c.log.Error("restart failed: %v", err)
		}
	}
}

// InvalidateBuildSetAndReload runs the unconditional invalidate -> rebuild
// -> restart sequence, used for initial boot and for the stdin "rs"
// command.
func (c *Controller) InvalidateBuildSetAndReload() {
	c.mu.Lock()
	coordinator := c.coordinator
	supervisor := c.supervisor
	c.mu.Unlock()

	coordinator.InvalidateBuildSet()
	if err := coordinator.Rebuild(); err != nil {
		c.log.Error("rebuild failed: %v", err)
	}
	if supervisor != nil {
		if err := supervisor.Restart(); err != nil {
			c.log.Error("restart failed: %v", err)
		}
	}
}

// Shutdown stops the supervisor, runs every registered cleanup callback in
// registration order, and terminates with code. Cleanup runs best-effort:
// no callback's failure stops the rest from running.
func (c *Controller) Shutdown(code int) {
	c.mu.Lock()
	supervisor := c.supervisor
	cleanups := c.cleanups
	exit := c.exit
	c.mu.Unlock()

	if supervisor != nil {
		supervisor.Stop()
	}
	for _, fn := range cleanups {
		fn()
	}
	exit(code)
}

func summaryLine(paths []string, invalidate bool) string {
	verb := "restarting"
	if invalidate {
		verb = "reinitializing and restarting"
	}
	first := filepath.Base(paths[0])
	if len(paths) == 1 {
		return fmt.Sprintf("%s changed, %s…", first, verb)
	}
	return fmt.Sprintf("%s and %d others changed, %s…", first, len(paths)-1, verb)
}
