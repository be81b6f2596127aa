package facade

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/cowork-run/supervisor/internal/store"
	"github.com/cowork-run/supervisor/internal/transport"
	"github.com/cowork-run/supervisor/internal/vault"
	"github.com/cowork-run/supervisor/internal/worker"
)

type wireRequest struct {
	ID      string          `json:"id"`
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params"`
}

type wireResponse struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// runEchoWorker answers every request with success:true and a result
// that embeds the session id it was asked about, enough for the facade
// tests below to assert shape translation without a real worker binary.
func runEchoWorker(t *testing.T, conn net.Conn) {
	t.Helper()
	go func() {
		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		enc := json.NewEncoder(conn)
		for scanner.Scan() {
			var req wireRequest
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			var result json.RawMessage
			switch req.Command {
			case cmdGetSession:
				result = json.RawMessage(`{"id":"s1","title":"demo","workingDirectory":"/tmp"}`)
			case cmdGetTransportDiagnostics:
				result = json.RawMessage(`{}`)
			default:
				result = req.Params
			}
			_ = enc.Encode(wireResponse{ID: req.ID, Success: true, Result: result})
		}
	}()
}

func newTestFacade(t *testing.T) (*Facade, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	runEchoWorker(t, server)

	sup := worker.New()
	sup.Multiplexer().Attach(client, client, transport.SharedDaemon, "tok", client)

	dir := t.TempDir()
	v, err := vault.Open(vault.Config{
		VaultFilePath: filepath.Join(dir, "credentials.vault.json"),
		ConfigDir:     dir,
		AppID:         "cowork",
		Backend:       vault.BackendVaultOnly,
	})
	if err != nil {
		t.Fatalf("open vault: %v", err)
	}

	f := New(sup, v, worker.Options{DataDir: dir, User: "tester", Vault: v})
	return f, server
}

func TestGetSessionDecodesResult(t *testing.T) {
	f, server := newTestFacade(t)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	session, err := f.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session.ID != "s1" || session.Title != "demo" {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestSendMessageRoundTrip(t *testing.T) {
	f, server := newTestFacade(t)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := f.SendMessage(ctx, SendMessageParams{SessionID: "s1", Content: "hi"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
}

func TestGetTransportDiagnostics(t *testing.T) {
	f, server := newTestFacade(t)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	diag, err := f.GetTransportDiagnostics(ctx)
	if err != nil {
		t.Fatalf("GetTransportDiagnostics: %v", err)
	}
	if diag.Mode != "shared-daemon" {
		t.Fatalf("expected shared-daemon mode, got %q", diag.Mode)
	}
}

func TestGetSessionMirrorsIntoCache(t *testing.T) {
	f, server := newTestFacade(t)
	defer server.Close()
	f.WithCache(store.New())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := f.GetSession(ctx, "s1"); err != nil {
		t.Fatalf("GetSession: %v", err)
	}

	rec, ok := f.cache.GetSession("s1")
	if !ok {
		t.Fatal("expected session mirrored into cache")
	}
	if rec.Title != "demo" {
		t.Fatalf("unexpected cached record: %+v", rec)
	}
}

func TestDeleteSessionEvictsCache(t *testing.T) {
	f, server := newTestFacade(t)
	defer server.Close()
	f.WithCache(store.New())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := f.GetSession(ctx, "s1"); err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if err := f.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, ok := f.cache.GetSession("s1"); ok {
		t.Fatal("expected session evicted from cache")
	}
}

func TestLogoutAndCleanupWipesVaultAndStopsWorker(t *testing.T) {
	f, server := newTestFacade(t)
	defer server.Close()

	if err := f.vault.Set("svc", "acct", "secret"); err != nil {
		t.Fatalf("seed vault: %v", err)
	}

	if err := f.LogoutAndCleanup(context.Background()); err != nil {
		t.Fatalf("LogoutAndCleanup: %v", err)
	}

	if _, ok, err := f.vault.Get("svc", "acct"); err != nil || ok {
		t.Fatalf("expected credential wiped, ok=%v err=%v", ok, err)
	}
	if f.sup.Multiplexer().IsRunning() {
		t.Fatal("expected multiplexer stopped after logout")
	}
}
