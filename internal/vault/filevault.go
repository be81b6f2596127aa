// Package vault implements the credential vault (§4.B): a two-backend
// abstraction (OS keychain with encrypted-file fallback, or
// encrypted-file only) over (service, account) -> secret records, with
// legacy plaintext migration and a stable connector seed.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/chacha20poly1305"
)

// fileVault is the encrypted-file backend: a single JSON document whose
// values are base64(nonce ‖ ciphertext) AEAD-sealed blobs (§3 "Vault
// file"). All writes replace the whole file via write-temp-then-rename,
// resolving §9 Open Question 1.
type fileVault struct {
	path string
	aead aeadSealer

	mu sync.Mutex
}

type vaultDocument struct {
	Credentials map[string]string `json:"credentials"`
}

func newFileVault(path string) (*fileVault, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("%w: create vault dir: %v", ErrEnvironment, err)
	}
	key, err := deriveFallbackKey()
	if err != nil {
		return nil, fmt.Errorf("%w: derive vault key: %v", ErrEnvironment, err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("%w: init cipher: %v", ErrEnvironment, err)
	}
	return &fileVault{path: path, aead: aead}, nil
}

// deriveFallbackKey computes the "fallback key" from process constants,
// hostname, username, and home path via SHA-256 (§3). It is
// deterministic per machine+user so the vault can be re-opened across
// process restarts without storing the key anywhere.
func deriveFallbackKey() ([]byte, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	hostname, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	seed := fmt.Sprintf("cowork-supervisor-vault-key|%s|%s|%s", hostname, user, home)
	sum := sha256.Sum256([]byte(seed))
	return sum[:], nil
}

func recordKey(service, account string) string {
	return service + "." + account
}

func (v *fileVault) load() (vaultDocument, error) {
	var doc vaultDocument
	doc.Credentials = make(map[string]string)

	data, err := os.ReadFile(v.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return doc, fmt.Errorf("read vault file: %w", err)
	}
	if !utf8.Valid(data) {
		return doc, fmt.Errorf("%w: non-UTF-8 content", ErrCorrupt)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc.Credentials == nil {
		doc.Credentials = make(map[string]string)
	}
	return doc, nil
}

func (v *fileVault) save(doc vaultDocument) error {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal vault file: %w", err)
	}
	tmp := fmt.Sprintf("%s.tmp.%d", v.path, os.Getpid())
	if err := os.WriteFile(tmp, payload, 0600); err != nil {
		return fmt.Errorf("write vault temp file: %w", err)
	}
	if err := os.Chmod(tmp, 0600); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("chmod vault temp file: %w", err)
	}
	if err := os.Rename(tmp, v.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("persist vault file: %w", err)
	}
	return nil
}

func (v *fileVault) seal(plaintext []byte) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (v *fileVault) open(blob string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrCorrupt, err)
	}
	nonceSize := v.aead.NonceSize()
	if len(raw) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrCorrupt)
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt failed: %v", ErrCorrupt, err)
	}
	return plaintext, nil
}

func (v *fileVault) Get(service, account string) (string, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	doc, err := v.load()
	if err != nil {
		return "", false, err
	}
	blob, ok := doc.Credentials[recordKey(service, account)]
	if !ok {
		return "", false, nil
	}
	plaintext, err := v.open(blob)
	if err != nil {
		return "", false, err
	}
	return string(plaintext), true, nil
}

func (v *fileVault) Set(service, account, secret string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	doc, err := v.load()
	if err != nil {
		return err
	}
	blob, err := v.seal([]byte(secret))
	if err != nil {
		return err
	}
	doc.Credentials[recordKey(service, account)] = blob
	return v.save(doc)
}

func (v *fileVault) Delete(service, account string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	doc, err := v.load()
	if err != nil {
		return err
	}
	delete(doc.Credentials, recordKey(service, account))
	return v.save(doc)
}

// wipeAll replaces the vault file's contents with an empty document.
func (v *fileVault) wipeAll() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.save(vaultDocument{Credentials: make(map[string]string)})
}

// keys returns every record key ("service.account") currently stored,
// never the secret values.
func (v *fileVault) keys() ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	doc, err := v.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(doc.Credentials))
	for k := range doc.Credentials {
		keys = append(keys, k)
	}
	return keys, nil
}

// aeadSealer is the minimal surface of cipher.AEAD this package needs;
// isolated as an interface so tests can substitute a fake cipher without
// pulling chacha20poly1305 into the test binary's crypto-randomness
// critical path.
type aeadSealer interface {
	NonceSize() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}
