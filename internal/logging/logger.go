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

// Package logging provides the colored status logger shared by the reload
// controller, the supervisor and the IPC server.
package logging

import (
	"fmt"
	"sync"

	"github.com/pterm/pterm"
)

// Logger is the logging interface used throughout tsrun.
type Logger interface {
	Info(msg string, args ...any)
	Warning(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// ptermLogger implements Logger using pterm's styled printers. There is no
// live-area renderer: a supervised child process owns the terminal's scroll
// region, so log lines are simply printed in order rather than redrawn in
// place.
type ptermLogger struct {
	mu    sync.RWMutex
	debug bool
	quiet bool
}

// New creates the default logger. debug enables Debug-level output, quiet
// suppresses Info output (Warning/Error are never suppressed).
func New(debug, quiet bool) Logger {
	return &ptermLogger{debug: debug, quiet: quiet}
}

func (l *ptermLogger) SetDebugEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug = enabled
}

func (l *ptermLogger) SetQuietEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.quiet = enabled
}

func (l *ptermLogger) Info(msg string, args ...any) {
	l.mu.RLock()
	quiet := l.quiet
	l.mu.RUnlock()
	if quiet {
		return
	}
	pterm.Info.Println(fmt.Sprintf(msg, args...))
}

func (l *ptermLogger) Warning(msg string, args ...any) {
	pterm.Warning.Println(fmt.Sprintf(msg, args...))
}

func (l *ptermLogger) Error(msg string, args ...any) {
	pterm.Error.Println(fmt.Sprintf(msg, args...))
}

func (l *ptermLogger) Debug(msg string, args ...any) {
	l.mu.RLock()
	debug := l.debug
	quiet := l.quiet
	l.mu.RUnlock()
	if !debug || quiet {
		return
	}
	pterm.Debug.Println(fmt.Sprintf(msg, args...))
}

// nopLogger discards everything. Used by tests that don't care about output.
type nopLogger struct{}

// Nop returns a Logger that discards everything.
func Nop() Logger { return nopLogger{} }

func (nopLogger) Info(string, ...any)    {}
func (nopLogger) Warning(string, ...any) {}
func (nopLogger) Error(string, ...any)   {}
func (nopLogger) Debug(string, ...any)   {}
