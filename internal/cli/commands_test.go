package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offlineq/internal/analytics"
	"github.com/roach88/offlineq/internal/mutation"
)

// writeConfig writes body to a temp config file. "%DB%" is replaced with a
// sqlite path in the same temp dir.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	body = strings.ReplaceAll(body, "%DB%", filepath.Join(dir, "queue.db"))
	path := filepath.Join(dir, "offlineq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const sqliteConfig = `
storage:
  backend: sqlite
  path: "%DB%"
queue:
  retry_delay: 0s
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestEnqueueAndList(t *testing.T) {
	cfg := writeConfig(t, sqliteConfig)

	out, err := execute(t, "-c", cfg, "enqueue", "create_order", `{"listingId":"l-1"}`, "--user", "u-1")
	require.NoError(t, err)
	assert.Regexp(t, `^queued \S+ \(create_order\), 1 pending\n$`, out)

	_, err = execute(t, "-c", cfg, "enqueue", " update_profile ")
	require.NoError(t, err)

	out, err = execute(t, "-c", cfg, "--format", "json", "list")
	require.NoError(t, err)

	var list ListResult
	decodeData(t, out, &list)
	require.Len(t, list.Mutations, 2)
	assert.Equal(t, "create_order", list.Mutations[0].Type)
	assert.JSONEq(t, `{"listingId":"l-1"}`, string(list.Mutations[0].Payload))
	assert.Equal(t, "u-1", list.Mutations[0].UserID)
	assert.Equal(t, "update_profile", list.Mutations[1].Type)
	assert.Equal(t, "null", string(list.Mutations[1].Payload))
	assert.Zero(t, list.Mutations[1].Retries)
}

func TestListEmpty(t *testing.T) {
	cfg := writeConfig(t, sqliteConfig)

	out, err := execute(t, "-c", cfg, "list")
	require.NoError(t, err)
	assert.Equal(t, "no pending mutations\n", out)

	out, err = execute(t, "-c", cfg, "--format", "json", "list")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","data":{"mutations":[]}}`, out)
}

func TestEnqueueRejects(t *testing.T) {
	cfg := writeConfig(t, sqliteConfig)

	tests := []struct {
		name string
		args []string
	}{
		{"invalid payload", []string{"enqueue", "create_order", "{not json"}},
		{"blank type", []string{"enqueue", "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"-c", cfg}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error [E_ARGUMENT]")
		})
	}

	out, err := execute(t, "-c", cfg, "list")
	require.NoError(t, err)
	assert.Equal(t, "no pending mutations\n", out)
}

func TestEnqueue_WarnsOnUnknownType(t *testing.T) {
	cfg := writeConfig(t, sqliteConfig)

	run := func(args ...string) string {
		cmd := NewRootCommand()
		stderr := &bytes.Buffer{}
		cmd.SetOut(io.Discard)
		cmd.SetErr(stderr)
		cmd.SetArgs(append([]string{"-c", cfg}, args...))
		require.NoError(t, cmd.Execute())
		return stderr.String()
	}

	stderr := run("enqueue", "archive_listing")
	assert.Contains(t, stderr, "unknown mutation type")
	assert.Contains(t, stderr, "type=archive_listing")

	stderr = run("enqueue", " create_order ")
	assert.NotContains(t, stderr, "unknown mutation type")

	out, err := execute(t, "-c", cfg, "--format", "json", "list")
	require.NoError(t, err)
	var list ListResult
	decodeData(t, out, &list)
	require.Len(t, list.Mutations, 2, "unknown types are still stored")
	assert.Equal(t, "archive_listing", list.Mutations[0].Type)
}

func TestInvalidConfig(t *testing.T) {
	cfg := writeConfig(t, "queue_size: 3\n")

	out, err := execute(t, "-c", cfg, "--format", "json", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeConfig, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "queue_size")
}

func TestStatus(t *testing.T) {
	cfg := writeConfig(t, sqliteConfig+"network:\n  initially_online: false\n")

	_, err := execute(t, "-c", cfg, "enqueue", "cancel_order", `{"orderId":"o-1"}`)
	require.NoError(t, err)

	out, err := execute(t, "-c", cfg, "status")
	require.NoError(t, err)
	assert.Equal(t, "1 pending, offline (manual)\n", out)
}

func TestStatus_Probe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	cfg := writeConfig(t, sqliteConfig+fmt.Sprintf("network:\n  probe_addr: %q\n", ln.Addr().String()))

	out, err := execute(t, "-c", cfg, "--format", "json", "status")
	require.NoError(t, err)

	var st StatusResult
	decodeData(t, out, &st)
	assert.Equal(t, StatusResult{IsOnline: true, NetworkType: "tcp"}, st)
}

type backendRecorder struct {
	mu       sync.Mutex
	requests []string
	status   int
}

func (b *backendRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.requests = append(b.requests, r.Method+" "+r.URL.Path+" "+string(body))
	status := b.status
	b.mu.Unlock()
	w.WriteHeader(status)
}

func (b *backendRecorder) seen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

func TestDrain(t *testing.T) {
	backend := &backendRecorder{status: http.StatusCreated}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	cfg := writeConfig(t, sqliteConfig+"remote:\n  base_url: "+srv.URL+"\n")

	_, err := execute(t, "-c", cfg, "enqueue", "create_order", `{"listingId":"l-1"}`)
	require.NoError(t, err)
	_, err = execute(t, "-c", cfg, "enqueue", "rename_campus", `{}`)
	require.NoError(t, err)

	out, err := execute(t, "-c", cfg, "drain")
	require.NoError(t, err)
	assert.Equal(t, "processed 2 of 2, 0 remaining\n", out)
	assert.Equal(t, []string{`POST /orders {"listingId":"l-1"}`}, backend.seen(),
		"types without an endpoint are dropped, not sent")

	out, err = execute(t, "-c", cfg, "list")
	require.NoError(t, err)
	assert.Equal(t, "no pending mutations\n", out)
}

func TestDrain_FailureKeepsMutation(t *testing.T) {
	backend := &backendRecorder{status: http.StatusInternalServerError}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	cfg := writeConfig(t, sqliteConfig+"remote:\n  base_url: "+srv.URL+"\n")

	_, err := execute(t, "-c", cfg, "enqueue", "update_profile", `{"name":"New Name"}`)
	require.NoError(t, err)

	out, err := execute(t, "-c", cfg, "--format", "json", "drain")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var res DrainResult
	decodeData(t, out, &res)
	assert.Equal(t, 1, res.Before)
	assert.Equal(t, 1, res.Remaining)
	assert.Contains(t, res.Handled, mutation.TypeUpdateProfile)
	assert.Len(t, backend.seen(), 1)

	out, err = execute(t, "-c", cfg, "--format", "json", "list")
	require.NoError(t, err)
	var list ListResult
	decodeData(t, out, &list)
	require.Len(t, list.Mutations, 1)
	assert.Equal(t, 1, list.Mutations[0].Retries)
}

func TestDrain_RequiresBaseURL(t *testing.T) {
	cfg := writeConfig(t, sqliteConfig)

	out, err := execute(t, "-c", cfg, "drain")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "remote.base_url")
}

func TestTrack_Development(t *testing.T) {
	cfg := writeConfig(t, sqliteConfig)

	out, err := execute(t, "-c", cfg, "track", "product_search", "--prop", "query=desk", "--prop", "results=12")
	require.NoError(t, err)
	assert.Equal(t, "tracked product_search via console, 0 records pending\n", out)
}

func TestTrack_ProductionFlushes(t *testing.T) {
	cfg := writeConfig(t, "environment: production\n"+sqliteConfig)

	out, err := execute(t, "-c", cfg, "--format", "json", "track", "product_view", "--user", "u-7", "--prop", "productId=p-9")
	require.NoError(t, err)

	var res TrackResult
	decodeData(t, out, &res)
	assert.Equal(t, TrackResult{Event: analytics.EventProductView, Provider: "offline", Pending: 0}, res)
}

func TestTrack_Rejects(t *testing.T) {
	cfg := writeConfig(t, sqliteConfig)

	_, err := execute(t, "-c", cfg, "track", "teleport")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "-c", cfg, "track", "share", "--prop", "novalue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestParseProperties(t *testing.T) {
	props, err := parseProperties([]string{"query=desk", "results=12", "used=true", "tags=[\"a\"]", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, analytics.Properties{
		"query":   "desk",
		"results": float64(12),
		"used":    true,
		"tags":    []any{"a"},
		"note":    "a=b",
	}, props)

	props, err = parseProperties(nil)
	require.NoError(t, err)
	assert.Nil(t, props)

	_, err = parseProperties([]string{"=x"})
	assert.Error(t, err)
}

// syncBuffer is a bytes.Buffer safe for a writer and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServe(t *testing.T) {
	cfg := writeConfig(t, "storage:\n  backend: memory\nnetwork:\n  initially_online: false\n")

	cmd := NewRootCommand()
	out := &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"-c", cfg, "serve", "--addr", "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errChan := make(chan error, 1)
	go func() {
		errChan <- cmd.ExecuteContext(ctx)
	}()

	var addr string
	require.Eventually(t, func() bool {
		line, _, ok := strings.Cut(out.String(), "\n")
		if !ok {
			return false
		}
		addr = strings.TrimPrefix(line, "Listening on ")
		return true
	}, 5*time.Second, 10*time.Millisecond)

	base := "http://" + addr
	resp, err := http.Post(base+"/mutations", "application/json",
		strings.NewReader(`{"type":"create_listing","payload":{"title":"Desk"}}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Get(base + "/status")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.JSONEq(t, `{"pendingCount":1,"isOnline":false,"hasPendingMutations":true}`, string(body))

	cancel()
	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}
