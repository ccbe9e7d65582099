package ipcserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-tsrun/tsrun/buildset"
	"github.com/go-tsrun/tsrun/internal/logging"
	"github.com/go-tsrun/tsrun/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCoordinator struct {
	compileErr error
	group      map[buildset.SourcePath]string
}

func (f *fakeCoordinator) Compile(path buildset.SourcePath) (*buildset.BuildGroup, error) {
	if f.compileErr != nil {
		return nil, f.compileErr
	}
	return &buildset.BuildGroup{Root: "/repo"}, nil
}

func (f *fakeCoordinator) FileGroup(path buildset.SourcePath) (map[buildset.SourcePath]string, error) {
	if f.compileErr != nil {
		return nil, f.compileErr
	}
	return f.group, nil
}

type fakeWatcher struct {
	added []string
}

func (f *fakeWatcher) Add(path string) error {
	f.added = append(f.added, path)
	return nil
}

func newTestClient(socketPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", socketPath)
			},
		},
		Timeout: 2 * time.Second,
	}
}

func startServer(t *testing.T, coord Coordinator, watcher Watcher) (*Server, *http.Client) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "ipc.sock")

	srv, err := New(socketPath, coord, watcher, logging.Nop())
	require.NoError(t, err)

	go srv.Serve()
	t.Cleanup(func() { srv.Close() })

	return srv, newTestClient(socketPath)
}

func TestCompileReturnsFilenamesAndRegistersWatcher(t *testing.T) {
	coord := &fakeCoordinator{group: map[buildset.SourcePath]string{
		"/repo/a.ts": "var a = 1;",
		"/repo/b.ts": "var b = 2;",
	}}
	watcher := &fakeWatcher{}
	_, client := startServer(t, coord, watcher)

	body, _ := json.Marshal("/repo/a.ts")
	resp, err := client.Post("http://unix/compile", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded compileResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Equal(t, "var a = 1;", decoded.Filenames["/repo/a.ts"])
	assert.Contains(t, watcher.added, "/repo/a.ts")
}

func TestCompileSurfacesMissingDestination(t *testing.T) {
	coord := &fakeCoordinator{compileErr: &transform.MissingDestination{
		Path:          "/repo/generated/x.ts",
		IgnorePattern: "**/generated/**",
	}}
	_, client := startServer(t, coord, &fakeWatcher{})

	body, _ := json.Marshal("/repo/generated/x.ts")
	resp, err := client.Post("http://unix/compile", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var decoded errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Equal(t, "MissingDestination", decoded.Kind)
	assert.Contains(t, decoded.Message, "**/generated/**")
}

func TestFileRequiredRegistersAllExceptNodeModules(t *testing.T) {
	watcher := &fakeWatcher{}
	_, client := startServer(t, &fakeCoordinator{}, watcher)

	body, _ := json.Marshal([]string{"/repo/a.ts", "/repo/node_modules/dep/index.js", "/repo/b.ts"})
	resp, err := client.Post("http://unix/file-required", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.ElementsMatch(t, []string{"/repo/a.ts", "/repo/b.ts"}, watcher.added)
}
