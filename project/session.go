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

// Package project wires together the compile coordinator, the watcher, the
// IPC server, the supervisor and the reload controller into one explicitly
// constructed session object, in place of ambient process-wide globals.
package project

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-tsrun/tsrun/buildset"
	"github.com/go-tsrun/tsrun/config"
	"github.com/go-tsrun/tsrun/coordinator"
	"github.com/go-tsrun/tsrun/internal/logging"
	"github.com/go-tsrun/tsrun/internal/platform"
	"github.com/go-tsrun/tsrun/ipcserver"
	"github.com/go-tsrun/tsrun/reload"
	"github.com/go-tsrun/tsrun/supervisor"
	"github.com/go-tsrun/tsrun/transform"
	"github.com/go-tsrun/tsrun/watcher"
)

// Options configures a Session, one per CLI invocation.
type Options struct {
	UserArgv  []string
	Watch     bool
	Supervise bool
	Commands  bool
	SWC       bool
}

// Session owns every long-lived piece of one tsrun run: the temp work
// directory, the IPC socket, the staging tree, and the object graph wired
// around them.
type Session struct {
	WorkDir    string
	SocketPath string
	StageDir   string

	Coordinator *coordinator.Coordinator
	Watcher     *watcher.Watcher
	Server      *ipcserver.Server
	Supervisor  *supervisor.Supervisor
	Controller  *reload.Controller

	opts Options
	log  logging.Logger
}

// New allocates the session's temp work directory and constructs the full
// object graph. The controller, supervisor, and server reference each
// other, so the controller is built first with its supervisor left nil,
// and SetSupervisor back-fills it once the supervisor exists.
func New(opts Options, log logging.Logger) (*Session, error) {
	workDir, err := os.MkdirTemp("", "tsrun-")
	if err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}

	stageDir := filepath.Join(workDir, "staging")
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	socketPath := socketPathFor(workDir)

	fs := platform.NewOSFileSystem()
	var backend transform.Backend
	if opts.SWC {
		backend = transform.NewPerFileBackend(fs)
	} else {
		backend = transform.NewGroupBuildBackend(stageDir, fs, log)
	}
	coord := coordinator.New(backend)

	w, err := watcher.New(log)
	if err != nil {
		return nil, fmt.Errorf("start watcher: %w", err)
	}

	controller := reload.New(coord, log)

	srv, err := ipcserver.New(socketPath, coord, w, log)
	if err != nil {
		return nil, fmt.Errorf("start IPC server: %w", err)
	}

	extensions := config.DefaultExtensions
	if len(opts.UserArgv) > 0 {
		if root := nearestPackageRootOf(opts.UserArgv[0]); root != "" {
			if cfg, err := config.Load(root); err == nil {
				extensions = cfg.ExtensionsOrDefault()
			}
		}
	}

	sup := supervisor.New(loaderArgv(opts.UserArgv), socketPath, extensions, !opts.Commands, log)
	controller.SetSupervisor(sup)

	sess := &Session{
		WorkDir:     workDir,
		SocketPath:  socketPath,
		StageDir:    stageDir,
		Coordinator: coord,
		Watcher:     w,
		Server:      srv,
		Supervisor:  sup,
		Controller:  controller,
		opts:        opts,
		log:         log,
	}

	sup.OnExit(func(code int) {
		if opts.Supervise {
			log.Warning("child exited with code %d; awaiting next restart", code)
			return
		}
		controller.Shutdown(code)
	})

	controller.RegisterCleanup(func() { _ = srv.Close() })
	controller.RegisterCleanup(func() { _ = w.Close() })
	controller.RegisterCleanup(func() { _ = os.RemoveAll(workDir) })

	return sess, nil
}

// loaderArgv prepends the arguments that would install the synchronous
// module-load hook in the child runtime. Registering that hook into the
// host loader is the assumed external integration point this tool doesn't
// own, so there is nothing to prepend; userArgv passes through unchanged.
func loaderArgv(userArgv []string) []string {
	return userArgv
}

// socketPathFor returns the IPC endpoint path for a work directory. Windows
// named pipes require the `\\?\pipe\` prefix; the pipe name itself still
// needs validating against the temp-dir path's length and character set,
// which is left as an open question.
func socketPathFor(workDir string) string {
	if runtime.GOOS == "windows" {
		return `\\?\pipe\` + workDir + `\ipc.sock`
	}
	return filepath.Join(workDir, "ipc.sock")
}

func nearestPackageRootOf(entry string) string {
	abs, err := filepath.Abs(entry)
	if err != nil {
		return ""
	}
	return string(transform.NearestPackageRoot(buildset.SourcePath(abs)))
}

// Start runs the IPC server and, if enabled, the watch and stdin-commands
// loops, then performs the initial unconditional compile/restart.
func (s *Session) Start() {
	go func() {
		if err := s.Server.Serve(); err != nil {
			s.log.Error("IPC server stopped: %v", err)
		}
	}()

	if s.opts.Watch {
		go s.watchLoop()
	}
	if s.opts.Commands {
		go s.commandsLoop()
	}

	s.Controller.InvalidateBuildSetAndReload()
}

// watchLoop translates classified watcher events into reload batches: a
// content change keeps the cached build set and leaves the refresh to the
// controller's Rebuild, but a structural change (file added or removed) may
// shift group membership and so drops the whole build set, forcing every
// group to be enumerated again.
func (s *Session) watchLoop() {
	for ev := range s.Watcher.Events() {
		invalidate := ev.Type != watcher.Change
		s.Controller.EnqueueReload(ev.Path, invalidate)
	}
}

// commandsLoop reads stdin lines, treating "rs" as a request for an
// unconditional invalidate/rebuild/restart.
func (s *Session) commandsLoop() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "rs" {
			s.Controller.InvalidateBuildSetAndReload()
		} else if line != "" {
			s.log.Debug("ignoring unrecognized command %q", line)
		}
	}
}
