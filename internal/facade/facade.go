// Package facade implements the command facade (§4.G): thin typed
// wrappers over the transport multiplexer's sendCommand, one per entry
// in the command catalog (§6). There is no application logic here
// beyond shape translation and error propagation — ensure the worker is
// started, marshal params, call sendCommand, unmarshal the result.
package facade

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cowork-run/supervisor/internal/agentpath"
	"github.com/cowork-run/supervisor/internal/store"
	"github.com/cowork-run/supervisor/internal/vault"
	"github.com/cowork-run/supervisor/internal/worker"
)

// Facade is the single entry point the UI shell or CLI drives. It owns
// nothing the worker lifecycle supervisor doesn't already own; it is a
// thin, stateless-beyond-wiring layer over it. cache mirrors session
// metadata into the sqlite-backed store as a best-effort local read
// cache (§6 "domain: sqlite-backed local cache"); it is never the
// source of truth and a nil cache (no store configured) disables
// mirroring without affecting command behavior.
type Facade struct {
	sup       *worker.Supervisor
	vault     *vault.Vault
	startOpts worker.Options
	cache     *store.Store
}

// New constructs a Facade. startOpts.Vault is set from v if the caller
// left it unset, so callers only need to fill in the binary/data-dir
// fields resolved via internal/agentpath.
func New(sup *worker.Supervisor, v *vault.Vault, startOpts worker.Options) *Facade {
	if startOpts.Vault == nil {
		startOpts.Vault = v
	}
	return &Facade{sup: sup, vault: v, startOpts: startOpts}
}

// WithCache attaches the sqlite-backed local cache used to mirror
// session metadata across restarts (§6). Returns f for chaining at
// construction time.
func (f *Facade) WithCache(s *store.Store) *Facade {
	f.cache = s
	return f
}

func (f *Facade) ensureStarted(ctx context.Context) error {
	return f.sup.Start(ctx, f.startOpts)
}

// call is the shared shape every facade entry follows: ensure-started,
// sendCommand, unmarshal result into T.
func call[T any](ctx context.Context, f *Facade, command string, params any) (T, error) {
	var zero T
	if err := f.ensureStarted(ctx); err != nil {
		return zero, fmt.Errorf("ensure worker started: %w", err)
	}
	raw, err := f.sup.Multiplexer().SendCommand(ctx, command, params)
	if err != nil {
		return zero, err
	}
	if len(raw) == 0 {
		return zero, nil
	}
	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return zero, fmt.Errorf("decode %s result: %w", command, err)
	}
	return result, nil
}

// callVoid is call for commands whose result is not consumed by the
// caller beyond success/failure.
func callVoid(ctx context.Context, f *Facade, command string, params any) error {
	_, err := call[json.RawMessage](ctx, f, command, params)
	return err
}

// PathAllowed forwards to the path-safety predicate (§4.A), which
// original_source/commands/files.rs implies is in scope even though
// general filesystem browsing is a stated Non-goal.
func (f *Facade) PathAllowed(path string) (bool, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return false, err
	}
	return agentpath.PathAllowed(path, home)
}
