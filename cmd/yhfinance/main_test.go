package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"

	"github.com/MrWong99/yhfinance/internal/app"
	"github.com/MrWong99/yhfinance/internal/mcp/tools/yahoo"
)

// executeCommand runs a cobra command with the given args and captures stdout/stderr.
func executeCommand(root *cobra.Command, args ...string) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

// writeTestFile creates a temporary file with the given content and returns its path.
func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func wantExitCode(t *testing.T, err error, code int) {
	t.Helper()
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v (%T), want *ExitError", err, err)
	}
	if exitErr.Code != code {
		t.Errorf("exit code = %d, want %d (%s)", exitErr.Code, code, exitErr.Message)
	}
}

type fakeAPI struct {
	srv     *httptest.Server
	hits    atomic.Int32
	lastKey atomic.Value
	status  int
}

func newFakeAPI(t *testing.T, status int) *fakeAPI {
	t.Helper()
	f := &fakeAPI{status: status}
	f.srv = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		f.lastKey.Store(r.Header.Get("x-rapidapi-key"))
		if f.status != http.StatusOK {
			http.Error(w, `{"message":"boom"}`, f.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"symbol":"A"},{"symbol":"B"},{"symbol":"C"},{"symbol":"D"},{"symbol":"E"},{"symbol":"F"}]}`))
	}))
	t.Cleanup(f.srv.Close)
	return f
}

// configFor writes a config pointing the upstream client at f.
func configFor(t *testing.T, f *fakeAPI) string {
	t.Helper()
	return writeTestFile(t, "yhfinance.yaml", "upstream:\n  base_url: "+f.srv.URL+"/api\n")
}

// ── tools ────────────────────────────────────────────────────────────────────

func TestTools_ListsCatalogue(t *testing.T) {
	cfg := writeTestFile(t, "yhfinance.yaml", "tools:\n  disabled: [get_options_data]\n")

	out, _, err := executeCommand(newRootCmd(), "tools", "--config", cfg)
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != len(yahoo.Endpoints())+1 {
		t.Errorf("got %d lines, want header + %d tools", len(lines), len(yahoo.Endpoints()))
	}
	if !strings.Contains(out, "get_options_data (disabled)") {
		t.Errorf("disabled tool not marked:\n%s", out)
	}
	if !strings.Contains(out, "search") || !strings.Contains(out, "First 5 results are returned.") {
		t.Errorf("search row missing:\n%s", out)
	}
}

func TestTools_Schema(t *testing.T) {
	out, _, err := executeCommand(newRootCmd(), "tools", "--schema", "get_stock_history")
	if err != nil {
		t.Fatalf("tools --schema: %v", err)
	}
	for _, want := range []string{`"get_stock_history"`, `"interval"`, `"3mo"`} {
		if !strings.Contains(out, want) {
			t.Errorf("schema output missing %s:\n%s", want, out)
		}
	}
	if strings.Contains(out, `"search"`) {
		t.Error("schema output should only contain the named tool")
	}
}

func TestTools_Unknown(t *testing.T) {
	_, _, err := executeCommand(newRootCmd(), "tools", "nope")
	wantExitCode(t, err, exitInvalidArgs)
}

func TestUnknownToolSuggestsName(t *testing.T) {
	for _, args := range [][]string{
		{"tools", "get_stock_histroy"},
		{"call", "get_stock_histroy", "symbol=AAPL"},
	} {
		t.Run(args[0], func(t *testing.T) {
			_, _, err := executeCommand(newRootCmd(), args...)
			wantExitCode(t, err, exitInvalidArgs)
			if !strings.Contains(err.Error(), `did you mean "get_stock_history"?`) {
				t.Errorf("message = %q, want a suggestion", err.Error())
			}
		})
	}
}

// ── call ─────────────────────────────────────────────────────────────────────

func TestCall_Search(t *testing.T) {
	t.Setenv("RAPIDAPI_KEY", "env-key")
	f := newFakeAPI(t, http.StatusOK)

	out, _, err := executeCommand(newRootCmd(app.WithHTTPClient(f.srv.Client())),
		"call", "search", "query=apple", "start=5", "--config", configFor(t, f))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	for _, want := range []string{`"items"`, `"symbol": "F"`, `"start": 5`, `"totalCount": 6`, `"hasMore": false`, `"nextStart": null`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s:\n%s", want, out)
		}
	}
	if got := f.lastKey.Load(); got != "env-key" {
		t.Errorf("x-rapidapi-key = %v, want env-key", got)
	}
}

func TestCall_APIKeyFlag(t *testing.T) {
	t.Setenv("RAPIDAPI_KEY", "env-key")
	f := newFakeAPI(t, http.StatusOK)

	_, _, err := executeCommand(newRootCmd(app.WithHTTPClient(f.srv.Client())),
		"call", "search", "query=apple", "--api-key", "flag-key", "--config", configFor(t, f))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got := f.lastKey.Load(); got != "flag-key" {
		t.Errorf("x-rapidapi-key = %v, want flag-key", got)
	}
}

func TestCall_EnvFile(t *testing.T) {
	t.Setenv("RAPIDAPI_KEY", "")
	os.Unsetenv("RAPIDAPI_KEY")
	f := newFakeAPI(t, http.StatusOK)
	envFile := writeTestFile(t, "test.env", "RAPIDAPI_KEY=dotenv-key\n")

	_, _, err := executeCommand(newRootCmd(app.WithHTTPClient(f.srv.Client())),
		"call", "search", "query=apple", "--env-file", envFile, "--config", configFor(t, f))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got := f.lastKey.Load(); got != "dotenv-key" {
		t.Errorf("x-rapidapi-key = %v, want dotenv-key", got)
	}
}

func TestCall_InvalidInterval(t *testing.T) {
	t.Setenv("RAPIDAPI_KEY", "env-key")
	f := newFakeAPI(t, http.StatusOK)

	_, _, err := executeCommand(newRootCmd(app.WithHTTPClient(f.srv.Client())),
		"call", "get_stock_history", "symbol=AAPL", "interval=3m", "--config", configFor(t, f))
	wantExitCode(t, err, exitInvalidArgs)
	if err.Error() != yahoo.ErrInvalidInterval.Error() {
		t.Errorf("message = %q", err.Error())
	}
	if f.hits.Load() != 0 {
		t.Errorf("upstream hits = %d, want 0", f.hits.Load())
	}
}

func TestCall_UpstreamFailurePrintsFallback(t *testing.T) {
	t.Setenv("RAPIDAPI_KEY", "env-key")
	f := newFakeAPI(t, http.StatusInternalServerError)

	out, _, err := executeCommand(newRootCmd(app.WithHTTPClient(f.srv.Client())),
		"call", "get_market_quotes", "symbol=AAPL", "instrument_type=STOCKS", "--config", configFor(t, f))
	wantExitCode(t, err, exitNoData)
	if strings.TrimSpace(out) != "Unable to fetch quote data." {
		t.Errorf("output = %q", out)
	}
	if f.hits.Load() != 1 {
		t.Errorf("upstream hits = %d, want 1", f.hits.Load())
	}
}

func TestCall_BadArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown tool", []string{"call", "get_crystal_ball"}},
		{"not a pair", []string{"call", "search", "apple"}},
		{"non-integer start", []string{"call", "search", "query=apple", "start=later"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeCommand(newRootCmd(), tt.args...)
			wantExitCode(t, err, exitInvalidArgs)
		})
	}
}

// ── config / serve ───────────────────────────────────────────────────────────

func TestInvalidConfig(t *testing.T) {
	cfg := writeTestFile(t, "bad.yaml", "server:\n  log_level: bananas\n")
	_, _, err := executeCommand(newRootCmd(), "tools", "--config", cfg)
	wantExitCode(t, err, exitConfig)
}

func TestLogLevelFlag(t *testing.T) {
	_, _, err := executeCommand(newRootCmd(), "tools", "--log-level", "loud")
	wantExitCode(t, err, exitConfig)
}

func TestServe_InvalidTransport(t *testing.T) {
	_, _, err := executeCommand(newRootCmd(), "serve", "--transport", "smoke-signal")
	wantExitCode(t, err, exitConfig)
}

func TestVersion(t *testing.T) {
	out, _, err := executeCommand(newRootCmd(), "--version")
	if err != nil {
		t.Fatalf("--version: %v", err)
	}
	if !strings.Contains(out, "yhfinance version") {
		t.Errorf("output = %q", out)
	}
}
