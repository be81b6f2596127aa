// Package agentpath implements the path & platform probe (§4.A): the
// per-user data directory, worker/daemon binary staging, and endpoint
// address selection.
package agentpath

import (
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrResourceMissing maps to §7 SpawnFailure's precursor: a requested
// binary could not be found in any of the searched roots.
var ErrResourceMissing = errors.New("resource missing")

// ErrEnvironmentInvalid maps to §7 EnvironmentInvalid: home or data
// directory paths could not be resolved or created.
var ErrEnvironmentInvalid = errors.New("environment invalid")

const basePortOffset = 39100
const portSpread = 1000

// DataDir resolves and creates <home>/.<appID>.
func DataDir(appID string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: resolve home dir: %v", ErrEnvironmentInvalid, err)
	}
	dir := filepath.Join(home, "."+appID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("%w: create data dir: %v", ErrEnvironmentInvalid, err)
	}
	return dir, nil
}

// DaemonDir returns <dataDir>/daemon, creating it if absent.
func DaemonDir(dataDir string) (string, error) {
	dir := filepath.Join(dataDir, "daemon")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("%w: create daemon dir: %v", ErrEnvironmentInvalid, err)
	}
	return dir, nil
}

// TokenPath returns <dataDir>/daemon/auth.token.
func TokenPath(dataDir string) string {
	return filepath.Join(dataDir, "daemon", "auth.token")
}

// LockPath returns <dataDir>/daemon/agentd.lock.
func LockPath(dataDir string) string {
	return filepath.Join(dataDir, "daemon", "agentd.lock")
}

// SocketPath returns <dataDir>/daemon/agentd.sock, used on host families
// that support named filesystem sockets.
func SocketPath(dataDir string) string {
	return filepath.Join(dataDir, "daemon", "agentd.sock")
}

// SanitizeUsername implements §4.A username sanitization: lowercase,
// replace anything outside [a-z0-9_-] with '-', empty -> "user".
func SanitizeUsername(raw string) string {
	lower := strings.ToLower(raw)
	var b strings.Builder
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := b.String()
	if out == "" {
		return "user"
	}
	return out
}

// DerivedPort computes the deterministic loopback port for user, per §3:
// 39100 + (hash(user) mod 1000).
func DerivedPort(user string) int {
	sanitized := SanitizeUsername(user)
	h := fnv.New32a()
	_, _ = h.Write([]byte(sanitized))
	return basePortOffset + int(h.Sum32()%uint32(portSpread))
}

// EndpointKind distinguishes the two address shapes an Endpoint can take
// (§3 "Endpoint address").
type EndpointKind int

const (
	EndpointLocalSocket EndpointKind = iota
	EndpointLoopbackTCP
)

// Endpoint is the tagged-union address the daemon listens on.
type Endpoint struct {
	Kind EndpointKind
	Path string // set when Kind == EndpointLocalSocket
	Host string // set when Kind == EndpointLoopbackTCP
	Port int    // set when Kind == EndpointLoopbackTCP
}

// String renders the endpoint for logging and for the daemon's own
// --endpoint flag value.
func (e Endpoint) String() string {
	if e.Kind == EndpointLocalSocket {
		return "unix:" + e.Path
	}
	return fmt.Sprintf("tcp:%s:%d", e.Host, e.Port)
}

// supportsUnixSockets reports whether the current host family supports
// named filesystem sockets for IPC. Windows historically didn't (AF_UNIX
// support there is recent and inconsistent across versions in the field),
// so loopback TCP is used there; every other platform this module targets
// does.
func supportsUnixSockets() bool {
	return runtime.GOOS != "windows"
}

// ResolveEndpoint implements §4.A endpoint selection.
func ResolveEndpoint(dataDir, user string) Endpoint {
	if supportsUnixSockets() {
		return Endpoint{Kind: EndpointLocalSocket, Path: SocketPath(dataDir)}
	}
	return Endpoint{Kind: EndpointLoopbackTCP, Host: "127.0.0.1", Port: DerivedPort(user)}
}

// ParseEndpoint parses the string form an Endpoint.String() produces
// (the value passed on cmd/supervisord's --endpoint flag) back into an
// Endpoint, so the daemon binary can Listen() on exactly what its caller
// resolved via ResolveEndpoint.
func ParseEndpoint(s string) (Endpoint, error) {
	switch {
	case strings.HasPrefix(s, "unix:"):
		return Endpoint{Kind: EndpointLocalSocket, Path: strings.TrimPrefix(s, "unix:")}, nil
	case strings.HasPrefix(s, "tcp:"):
		rest := strings.TrimPrefix(s, "tcp:")
		host, portStr, ok := strings.Cut(rest, ":")
		if !ok {
			return Endpoint{}, fmt.Errorf("malformed tcp endpoint %q", s)
		}
		var port int
		if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
			return Endpoint{}, fmt.Errorf("malformed tcp endpoint port %q: %w", s, err)
		}
		return Endpoint{Kind: EndpointLoopbackTCP, Host: host, Port: port}, nil
	default:
		return Endpoint{}, fmt.Errorf("unrecognized endpoint %q", s)
	}
}

// StageBinary implements §4.A binary staging: search a fixed ordered
// list of roots for base (or base-<targetTriple>, with a platform
// extension), and copy the first match to <dataDir>/sidecar/<base> if it
// isn't already there, marking it executable on POSIX.
func StageBinary(base, targetTriple, dataDir string) (string, error) {
	runtimeDir := filepath.Join(dataDir, "sidecar")
	if err := os.MkdirAll(runtimeDir, 0700); err != nil {
		return "", fmt.Errorf("%w: create sidecar dir: %v", ErrEnvironmentInvalid, err)
	}

	ext := ""
	if runtime.GOOS == "windows" {
		ext = ".exe"
	}
	dest := filepath.Join(runtimeDir, base+ext)
	if info, err := os.Stat(dest); err == nil && !info.IsDir() {
		return dest, nil
	}

	exeDir := "."
	if exe, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exe)
	}

	candidateNames := []string{base + ext, base + "-" + targetTriple + ext}
	roots := []string{
		exeDir,
		filepath.Join(exeDir, "binaries"),
		filepath.Join(exeDir, "..", "Resources"),
		dataDir,
		filepath.Join(dataDir, "binaries"),
	}

	var searched []string
	for _, root := range roots {
		for _, name := range candidateNames {
			candidate := filepath.Join(root, name)
			searched = append(searched, candidate)
			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() || info.Size() == 0 {
				continue
			}
			if err := copyFile(candidate, dest); err != nil {
				return "", fmt.Errorf("stage binary %s: %w", base, err)
			}
			if runtime.GOOS != "windows" {
				if err := os.Chmod(dest, 0755); err != nil {
					return "", fmt.Errorf("mark binary executable: %w", err)
				}
			}
			return dest, nil
		}
	}
	return "", fmt.Errorf("%w: %s not found, searched: %s", ErrResourceMissing, base, strings.Join(searched, ", "))
}

// defaultNodeBinary is the development interpreter used to run a
// <base>.js script when no packaged binary is staged, overridable via
// the §6 NODE_BINARY environment variable.
const defaultNodeBinary = "node"

// ResolveWorkerExec implements the §4.E/§9 worker exec spec resolver:
// it prefers a packaged native binary (StageBinary), and falls back to
// a development flavor — an interpreter invoking a same-named .js
// script found alongside where the binary would have been — when no
// packaged binary is present. It returns the program to exec and the
// argv to prepend ahead of any caller-supplied arguments.
func ResolveWorkerExec(base, targetTriple, dataDir string) (program string, args []string, err error) {
	if path, err := StageBinary(base, targetTriple, dataDir); err == nil {
		return path, nil, nil
	}

	scriptPath, err := findDevScript(base, dataDir)
	if err != nil {
		return "", nil, err
	}

	node := os.Getenv("NODE_BINARY")
	if node == "" {
		node = defaultNodeBinary
	}
	return node, []string{scriptPath}, nil
}

// findDevScript searches the executable's directory, its binaries/
// subdirectory, dataDir, dataDir/binaries and dataDir/dev, in that order,
// for a <base>.js development script, since a dev checkout stages a script
// instead of a compiled binary. Unlike StageBinary it does not look under
// the executable's ../Resources directory.
func findDevScript(base, dataDir string) (string, error) {
	exeDir := "."
	if exe, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exe)
	}
	roots := []string{
		exeDir,
		filepath.Join(exeDir, "binaries"),
		dataDir,
		filepath.Join(dataDir, "binaries"),
		filepath.Join(dataDir, "dev"),
	}
	var searched []string
	for _, root := range roots {
		candidate := filepath.Join(root, base+".js")
		searched = append(searched, candidate)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s not found (packaged binary or .js script), searched: %s", ErrResourceMissing, base, strings.Join(searched, ", "))
}

// restrictedRoots are system directories the path-safety predicate
// denies access to regardless of the home directory, supplemented from
// original_source/commands/files.rs's restricted-roots list.
var restrictedRoots = []string{
	"/etc", "/sys", "/proc", "/dev", "/boot",
	"/System", "/Library", "C:\\Windows", "C:\\Program Files",
}

// PathAllowed implements the §4.A/§7 path-safety predicate (PathDenied):
// a path is allowed only if it resolves (after symlink and ".."
// resolution) to somewhere under home and not under a restricted root.
func PathAllowed(path, home string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("resolve absolute path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// A not-yet-existing path (e.g. one about to be created) can't be
		// symlink-resolved; fall back to the lexical absolute form.
		resolved = filepath.Clean(abs)
	}

	for _, root := range restrictedRoots {
		if resolved == root || strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			return false, nil
		}
	}

	homeAbs, err := filepath.Abs(home)
	if err != nil {
		return false, fmt.Errorf("resolve home path: %w", err)
	}
	if resolved == homeAbs || strings.HasPrefix(resolved, homeAbs+string(filepath.Separator)) {
		return true, nil
	}
	return false, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
