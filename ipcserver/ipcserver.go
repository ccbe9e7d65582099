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

// Package ipcserver is the request/response endpoint the child's sync-bridge
// worker calls into: HTTP/1.1-style JSON bodies over a Unix-domain socket.
// It answers "compile this file" and "register these paths as required".
// New always listens with net.Listen("unix", ...); there is no Windows
// named-pipe listener.
package ipcserver

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/go-tsrun/tsrun/buildset"
	"github.com/go-tsrun/tsrun/internal/logging"
	"github.com/go-tsrun/tsrun/transform"
)

// Coordinator is the subset of coordinator.Coordinator the server drives.
type Coordinator interface {
	Compile(path buildset.SourcePath) (*buildset.BuildGroup, error)
	FileGroup(path buildset.SourcePath) (map[buildset.SourcePath]string, error)
}

// Watcher is the subset of watcher.Watcher the server drives: every path
// the child required gets registered so future edits to it trigger a
// reload.
type Watcher interface {
	Add(path string) error
}

// Server is a minimal JSON request/response server bound to a local
// endpoint.
type Server struct {
	socketPath  string
	coordinator Coordinator
	watcher     Watcher
	log         logging.Logger
	listener    net.Listener
	httpServer  *http.Server
}

// New binds socketPath and prepares the server; call Serve to accept
// connections. A stale socket file from a previous crashed run is removed
// first since net.Listen("unix", ...) refuses to bind over an existing one.
func New(socketPath string, coordinator Coordinator, watcher Watcher, log logging.Logger) (*Server, error) {
	_ = os.Remove(socketPath)

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", socketPath, err)
	}

	s := &Server{
		socketPath:  socketPath,
		coordinator: coordinator,
		watcher:     watcher,
		log:         log,
		listener:    ln,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/compile", s.handleCompile)
	mux.HandleFunc("/file-required", s.handleFileRequired)
	s.httpServer = &http.Server{Handler: mux}

	return s, nil
}

// Serve blocks accepting connections until Close is called.
func (s *Server) Serve() error {
	err := s.httpServer.Serve(s.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close stops accepting connections and removes the socket file.
func (s *Server) Close() error {
	err := s.httpServer.Close()
	_ = os.Remove(s.socketPath)
	return err
}

type compileResponse struct {
	Filenames map[buildset.SourcePath]string `json:"filenames"`
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var path string
	if err := json.NewDecoder(r.Body).Decode(&path); err != nil {
		s.writeError(w, http.StatusBadRequest, "IPCFailure", err.Error())
		return
	}
	sourcePath := buildset.SourcePath(path)

	if _, err := s.coordinator.Compile(sourcePath); err != nil {
		s.writeCompileError(w, err)
		return
	}

	filenames, err := s.coordinator.FileGroup(sourcePath)
	if err != nil {
		s.writeCompileError(w, err)
		return
	}

	if err := s.watcher.Add(path); err != nil {
		s.log.Warning("registering %s with watcher: %v", path, err)
	}

	s.writeJSON(w, http.StatusOK, compileResponse{Filenames: filenames})
}

func (s *Server) handleFileRequired(w http.ResponseWriter, r *http.Request) {
	var paths []string
	if err := json.NewDecoder(r.Body).Decode(&paths); err != nil {
		s.writeError(w, http.StatusBadRequest, "IPCFailure", err.Error())
		return
	}

	for _, p := range paths {
		if strings.Contains(filepathToSlash(p), "/node_modules/") {
			continue
		}
		if err := s.watcher.Add(p); err != nil {
			s.log.Warning("registering %s with watcher: %v", p, err)
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

func (s *Server) writeCompileError(w http.ResponseWriter, err error) {
	switch e := err.(type) {
	case *transform.MissingDestination:
		s.writeError(w, http.StatusUnprocessableEntity, "MissingDestination", e.Error())
	case *transform.OutsideProject:
		s.writeError(w, http.StatusUnprocessableEntity, "OutsideProject", e.Error())
	case *transform.CompileError:
		s.writeError(w, http.StatusUnprocessableEntity, "CompileError", e.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, "CompileError", err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, kind, message string) {
	s.writeJSON(w, status, errorResponse{Kind: kind, Message: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("encoding response: %v", err)
	}
}
