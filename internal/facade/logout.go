package facade

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/cowork-run/supervisor/internal/agentpath"
	"github.com/cowork-run/supervisor/internal/service"
)

// LogoutAndCleanup implements the supplemented logout-and-cleanup
// operation (from original_source/commands/auth.rs and
// commands/service.rs, not given its own facade entry in the distilled
// catalog even though §3 Lifecycles names it as the credential record's
// destructor): stop the worker, wipe the vault (Vault.WipeAll), clear the
// persisted service mode, and rotate the daemon auth token so a stale
// UI shell can't keep a live session alive.
func (f *Facade) LogoutAndCleanup(ctx context.Context) error {
	f.sup.Stop()

	if err := f.vault.WipeAll(); err != nil {
		return fmt.Errorf("wipe credentials: %w", err)
	}

	dataDir := f.startOpts.DataDir
	if dataDir != "" {
		if err := service.ClearMode(dataDir); err != nil {
			return fmt.Errorf("clear service mode: %w", err)
		}
		if err := rotateDaemonToken(dataDir); err != nil {
			return fmt.Errorf("rotate daemon token: %w", err)
		}
	}
	return nil
}

func rotateDaemonToken(dataDir string) error {
	if _, err := agentpath.DaemonDir(dataDir); err != nil {
		return err
	}
	path := agentpath.TokenPath(dataDir)
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return err
	}
	token := hex.EncodeToString(buf) + "\n"
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token), 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
