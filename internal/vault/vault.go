package vault

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

// Backend selects which of the two credential back-ends (§4.B) is
// active, read once per process lifetime from COWORK_CREDENTIAL_BACKEND
// (§9 "Global state").
type Backend string

const (
	BackendVaultOnly            Backend = "vault-only"
	BackendKeychainWithFallback Backend = "keychain-with-vault-fallback"
)

// BackendFromEnv implements the §4.B environment-variable selection: any
// value other than "keychain" defaults to vault-only.
func BackendFromEnv() Backend {
	if os.Getenv("COWORK_CREDENTIAL_BACKEND") == "keychain" {
		return BackendKeychainWithFallback
	}
	return BackendVaultOnly
}

const keyringServiceName = "cowork-supervisor"

// keyringStore is the minimal subset of keyring.Keyring this package
// uses, so the default backend (auto-detected per OS by 99designs/keyring)
// can be swapped for a fake in tests.
type keyringStore interface {
	Get(key string) (keyring.Item, error)
	Set(item keyring.Item) error
	Remove(key string) error
}

// Vault is the credential vault: get/set/delete over (service, account)
// tuples, backed by either the OS keychain with encrypted-file fallback,
// or the encrypted file alone.
type Vault struct {
	backend    Backend
	file       *fileVault
	ring       keyringStore
	ringErr    error
	configDir  string
	appID      string
	priorAppID string

	migrateMu sync.Mutex
	migrated  bool
}

// Config names the paths and identities the vault needs: where the
// encrypted vault file lives, and the current/prior application ids used
// to locate legacy plaintext credential files for migration (§4.B
// "Startup migration").
type Config struct {
	VaultFilePath string
	ConfigDir     string
	AppID         string
	PriorAppID    string
	Backend       Backend
}

// Open constructs a Vault for cfg, opening the OS keychain eagerly when
// BackendKeychainWithFallback is selected (a keychain open failure is
// remembered, not fatal — every keychain operation afterwards falls back
// to the file per §4.B).
func Open(cfg Config) (*Vault, error) {
	file, err := newFileVault(cfg.VaultFilePath)
	if err != nil {
		return nil, err
	}
	v := &Vault{
		backend:    cfg.Backend,
		file:       file,
		configDir:  cfg.ConfigDir,
		appID:      cfg.AppID,
		priorAppID: cfg.PriorAppID,
	}
	if v.backend == BackendKeychainWithFallback {
		ring, err := keyring.Open(keyring.Config{ServiceName: keyringServiceName})
		if err != nil {
			v.ringErr = err
		} else {
			v.ring = ring
		}
	}
	return v, nil
}

func keyringKey(service, account string) string {
	return service + ":" + account
}

// Get implements §4.B get: keychain-first in fallback mode (file on a
// keychain miss or failure), file-only otherwise. No keychain result is
// returned as an error, a miss or a failure alike; only the file
// backend's failures are (§7 VaultCorrupt).
func (v *Vault) Get(service, account string) (string, bool, error) {
	v.ensureMigrated()
	if v.backend == BackendKeychainWithFallback && v.ring != nil {
		item, err := v.ring.Get(keyringKey(service, account))
		if err == nil {
			return string(item.Data), true, nil
		}
		if err != keyring.ErrKeyNotFound {
			// Treat any non-miss keychain error as a reason to fall back
			// to the file rather than surface a KeychainFailure, since
			// the file may still have a valid copy (§4.B set semantics).
		}
	}
	return v.file.Get(service, account)
}

// Set implements §4.B set: keychain-first in fallback mode, deleting any
// stale file copy on success; the file is written on keychain failure.
func (v *Vault) Set(service, account, secret string) error {
	if v.backend == BackendKeychainWithFallback && v.ring != nil {
		err := v.ring.Set(keyring.Item{
			Key:  keyringKey(service, account),
			Data: []byte(secret),
		})
		if err == nil {
			_ = v.file.Delete(service, account)
			return nil
		}
	}
	return v.file.Set(service, account, secret)
}

// Delete implements §4.B delete: issue both, succeed if either succeeds.
func (v *Vault) Delete(service, account string) error {
	var ringErr, fileErr error
	if v.backend == BackendKeychainWithFallback && v.ring != nil {
		ringErr = v.ring.Remove(keyringKey(service, account))
	}
	fileErr = v.file.Delete(service, account)
	if ringErr == nil || fileErr == nil {
		return nil
	}
	return fmt.Errorf("delete credential: keychain: %v, vault: %w", ringErr, fileErr)
}

// legacyDocument is the shape of the plaintext credential files this
// vault migrates away from on first touch.
type legacyDocument struct {
	Credentials map[string]string `json:"credentials"`
}

func legacyPath(configDir, appID string) string {
	return filepath.Join(configDir, appID, "credentials.json")
}

// ensureMigrated runs MigrateLegacyPlaintext at most once per Vault
// instance, on the first call to Get (§4.B "on first touch"). A failed
// migration attempt is still marked migrated: it is best-effort and must
// never turn every subsequent Get into a retried migration attempt.
func (v *Vault) ensureMigrated() {
	v.migrateMu.Lock()
	defer v.migrateMu.Unlock()
	if v.migrated {
		return
	}
	v.migrated = true
	_ = v.MigrateLegacyPlaintext()
}

// MigrateLegacyPlaintext implements the §4.B startup migration: scan for
// legacy plaintext credential files under the current and prior app
// directory names, re-store every entry through the active backend, and
// remove the plaintext files. Idempotent: running it twice after the
// first successful run is a no-op because the files no longer exist
// (§8.7).
func (v *Vault) MigrateLegacyPlaintext() error {
	for _, appID := range []string{v.appID, v.priorAppID} {
		if appID == "" {
			continue
		}
		path := legacyPath(v.configDir, appID)
		if err := v.migrateOne(path); err != nil {
			return err
		}
	}
	return nil
}

func (v *Vault) migrateOne(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		// Missing file is the common, non-fatal case.
		return nil
	}
	var doc legacyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		// A malformed legacy file is left alone; migration is best-effort
		// and must never be fatal to the supervisor's startup.
		return nil
	}
	for key, secret := range doc.Credentials {
		service, account, ok := splitLegacyKey(key)
		if !ok {
			continue
		}
		if err := v.Set(service, account, secret); err != nil {
			return fmt.Errorf("migrate legacy credential %q: %w", key, err)
		}
	}
	return os.Remove(path)
}

// splitLegacyKey splits a "service.account" compound key on its first
// dot. Service and account names are not permitted to contain dots
// themselves in this module's own records; legacy files are assumed to
// follow the same convention.
func splitLegacyKey(key string) (service, account string, ok bool) {
	idx := strings.IndexByte(key, '.')
	if idx <= 0 || idx == len(key)-1 {
		return "", "", false
	}
	return key[:idx], key[idx+1:], true
}

// WipeAll resets the encrypted file backend to empty and, in
// keychain-with-fallback mode, removes the connector seed entry from the
// keychain (best-effort). Other credential entries stored in the keychain
// are not removed. Used by the supplemented logout-and-cleanup
// operation (§3 Lifecycles).
func (v *Vault) WipeAll() error {
	if err := v.file.wipeAll(); err != nil {
		return fmt.Errorf("wipe vault file: %w", err)
	}
	if v.backend == BackendKeychainWithFallback && v.ring != nil {
		_ = v.ring.Remove(keyringKey(connectorSeedService, connectorSeedAccount))
	}
	return nil
}

// List returns the (service, account) pairs with a stored credential in
// the encrypted file backend, never the secret values. It does not
// enumerate the OS keychain backend (99designs/keyring exposes no list
// operation across all its supported OSes), so in
// keychain-with-vault-fallback mode this reports only the records that
// happen to live in the fallback file.
func (v *Vault) List() ([]string, error) {
	keys, err := v.file.keys()
	if err != nil {
		return nil, fmt.Errorf("list vault records: %w", err)
	}
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		if service, account, ok := splitLegacyKey(k); ok {
			pairs = append(pairs, service+"/"+account)
		}
	}
	return pairs, nil
}

const (
	connectorSeedService = "connector"
	connectorSeedAccount = "seed"
	connectorSeedBytes   = 32
)

// ConnectorSeed returns the stable 256-bit base64 seed the host exports
// into the worker's environment on spawn (§4.B "Connector seed"). It is
// generated with a cryptographic RNG on first use and persisted
// thereafter.
func (v *Vault) ConnectorSeed() (string, error) {
	if existing, ok, err := v.Get(connectorSeedService, connectorSeedAccount); err != nil {
		return "", err
	} else if ok {
		return existing, nil
	}

	buf := make([]byte, connectorSeedBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate connector seed: %w", err)
	}
	seed := base64.StdEncoding.EncodeToString(buf)
	if err := v.Set(connectorSeedService, connectorSeedAccount, seed); err != nil {
		return "", err
	}
	return seed, nil
}
