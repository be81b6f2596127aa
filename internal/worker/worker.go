// Package worker implements the worker lifecycle supervisor (§4.E): it
// decides between attaching to a shared daemon or spawning an embedded
// worker process, and owns the child-process/socket handle that the
// transport multiplexer's streams are bound to.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cowork-run/supervisor/internal/agentpath"
	"github.com/cowork-run/supervisor/internal/transport"
	"github.com/cowork-run/supervisor/internal/vault"
)

const (
	daemonTransportEnabledEnv = "COWORK_DAEMON_TRANSPORT_ENABLED"
	embeddedFallbackEnv       = "COWORK_DAEMON_FALLBACK_EMBEDDED_SIDECAR"
	// connectorSeedEnv is the §6 interface variable a caller can set to
	// override the stored connector seed when launching the worker,
	// instead of the one persisted in the vault.
	connectorSeedEnv = "COWORK_CONNECTOR_SECRET_KEY"
)

const (
	pollInterval    = 100 * time.Millisecond
	pollAttempts    = 80 // 80 * 100ms = 8s, per §4.E step 1.d
	dialTimeout     = 1 * time.Second
	daemonTargetTag = "daemon"
	workerTargetTag = "worker"
)

// childState implements the §4.E child-handle state machine:
// None -> Spawned -> (Dead detected only via isRunning polling).
type childState int

const (
	childNone childState = iota
	childSpawned
	childDead
)

// Supervisor owns the multiplexer plus whatever process or connection
// handle its streams are attached to.
type Supervisor struct {
	mux *transport.Multiplexer

	startMu sync.Mutex

	mu     sync.Mutex
	state  childState
	cmd    *exec.Cmd // set only in EmbeddedWorker mode
	conn   net.Conn  // set only in SharedDaemon mode
}

// New constructs a Supervisor with a fresh, unattached multiplexer.
func New() *Supervisor {
	return &Supervisor{mux: transport.New("req")}
}

// Multiplexer returns the transport this supervisor drives. Callers use
// it to send commands and register an event handler.
func (s *Supervisor) Multiplexer() *transport.Multiplexer {
	return s.mux
}

// Options configures a single Start call.
type Options struct {
	DataDir          string
	DaemonBinaryPath string   // resolved via agentpath.StageBinary by the caller
	WorkerBinaryPath string   // resolved via agentpath.ResolveWorkerExec by the caller
	WorkerArgs       []string // args ResolveWorkerExec returned alongside WorkerBinaryPath (dev interpreter + script flavor)
	User             string
	Vault            *vault.Vault
}

func boolEnv(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

func daemonTransportEnabled() bool {
	return boolEnv(daemonTransportEnabledEnv, true)
}

func embeddedFallbackEnabled() bool {
	return boolEnv(embeddedFallbackEnv, true)
}

// Start implements §4.E start(dataDir). It is a no-op if the transport is
// already attached and healthy.
func (s *Supervisor) Start(ctx context.Context, opts Options) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.mux.IsRunning() {
		return nil
	}

	seed := os.Getenv(connectorSeedEnv)
	if seed == "" {
		var err error
		seed, err = opts.Vault.ConnectorSeed()
		if err != nil {
			return fmt.Errorf("resolve connector seed: %w", err)
		}
	}

	if daemonTransportEnabled() {
		err := s.startSharedDaemon(ctx, opts, seed)
		if err == nil {
			return nil
		}
		if !embeddedFallbackEnabled() {
			return fmt.Errorf("shared daemon attach failed, embedded fallback disabled: %w", err)
		}
	}

	return s.startEmbedded(ctx, opts, seed)
}

func (s *Supervisor) startSharedDaemon(ctx context.Context, opts Options, seed string) error {
	ep := agentpath.ResolveEndpoint(opts.DataDir, opts.User)
	tokenPath := agentpath.TokenPath(opts.DataDir)
	lockPath := agentpath.LockPath(opts.DataDir)

	if conn, token, err := tryAttach(ep, tokenPath); err == nil {
		s.setConn(conn)
		s.mux.Attach(conn, conn, transport.SharedDaemon, token, conn)
		return nil
	}

	if opts.DaemonBinaryPath == "" {
		return fmt.Errorf("no running daemon and no daemon binary resolved")
	}

	cmd := exec.CommandContext(context.Background(), opts.DaemonBinaryPath,
		"--data-dir", opts.DataDir,
		"--endpoint", ep.String(),
		"--token-file", tokenPath,
		"--lock-file", lockPath,
	)
	cmd.Stdin = nil
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), connectorSeedEnv+"="+seed)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn daemon: %w", err)
	}
	s.setCmd(cmd)

	var lastErr error
	for attempt := 0; attempt < pollAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, token, err := tryAttach(ep, tokenPath)
		if err == nil {
			s.setConn(conn)
			s.mux.Attach(conn, conn, transport.SharedDaemon, token, conn)
			return nil
		}
		lastErr = err
		time.Sleep(pollInterval)
	}
	return fmt.Errorf("daemon did not become reachable within 8s: %w", lastErr)
}

func tryAttach(ep agentpath.Endpoint, tokenPath string) (net.Conn, string, error) {
	conn, err := dialEndpoint(ep)
	if err != nil {
		return nil, "", err
	}
	token, err := readToken(tokenPath)
	if err != nil {
		_ = conn.Close()
		return nil, "", err
	}
	return conn, token, nil
}

func dialEndpoint(ep agentpath.Endpoint) (net.Conn, error) {
	switch ep.Kind {
	case agentpath.EndpointLocalSocket:
		return net.DialTimeout("unix", ep.Path, dialTimeout)
	default:
		addr := net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port))
		return net.DialTimeout("tcp", addr, dialTimeout)
	}
}

func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return token, nil
}

func (s *Supervisor) startEmbedded(ctx context.Context, opts Options, seed string) error {
	if opts.WorkerBinaryPath == "" {
		return fmt.Errorf("no worker binary resolved for embedded mode")
	}

	cmd := exec.CommandContext(context.Background(), opts.WorkerBinaryPath, opts.WorkerArgs...)
	cmd.Env = append(os.Environ(), connectorSeedEnv+"="+seed)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open worker stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn embedded worker: %w", err)
	}
	s.setCmd(cmd)

	s.mux.Attach(stdin, stdout, transport.EmbeddedWorker, "", stdin)
	return nil
}

func (s *Supervisor) setCmd(cmd *exec.Cmd) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmd = cmd
	s.conn = nil
	s.state = childSpawned
}

func (s *Supervisor) setConn(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.cmd = nil
	s.state = childSpawned
}

// IsRunning polls for liveness of whichever child handle is held: a
// non-blocking try-wait on the spawned EmbeddedWorker process, or the
// multiplexer's own healthy/writer-bound state once attached to a shared
// daemon. setConn drops the process handle of a daemon this supervisor
// spawned, so such a daemon is judged by the connection alone.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	cmd := s.cmd
	state := s.state
	s.mu.Unlock()

	if state == childNone {
		return false
	}
	if cmd != nil && cmd.Process != nil && !pidAlive(cmd.Process.Pid) {
		s.markDead()
		return false
	}
	return s.mux.IsRunning() || s.mux.Mode() == transport.EmbeddedWorker
}

// pidAlive is a non-blocking liveness probe: signal 0 performs no action
// but still reports ESRCH if the process is gone.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func (s *Supervisor) markDead() {
	s.mu.Lock()
	s.state = childDead
	s.mu.Unlock()
}

// Stop tears down the transport, closes any daemon connection and,
// best-effort, kills the embedded worker process if one is held (§4.E
// teardown). A shared daemon this supervisor spawned is no longer held
// once attached, so Stop leaves it running.
func (s *Supervisor) Stop() {
	s.mux.Stop()

	s.mu.Lock()
	cmd := s.cmd
	conn := s.conn
	s.cmd = nil
	s.conn = nil
	s.state = childNone
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
