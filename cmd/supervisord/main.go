// Command supervisord is the shared-daemon entrypoint (§4.E step 1.e):
// spawned by a worker.Supervisor when no shared daemon is reachable
// yet, it acquires the lock file, spawns the out-of-process "worker"
// binary (or its dev script), and listens on the resolved endpoint so any number of
// supervisor instances can attach in SharedDaemon mode.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cowork-run/supervisor/internal/agentpath"
	"github.com/cowork-run/supervisor/internal/daemonhub"
	"github.com/cowork-run/supervisor/internal/logging"
	"github.com/cowork-run/supervisor/internal/pathutil"
	"github.com/cowork-run/supervisor/internal/store"
)

func main() {
	var dataDir, endpointFlag, tokenFile, lockFile string
	flag.StringVar(&dataDir, "data-dir", "", "supervisor data directory")
	flag.StringVar(&endpointFlag, "endpoint", "", "listen endpoint (unix:<path> or tcp:<host>:<port>)")
	flag.StringVar(&tokenFile, "token-file", "", "path to the daemon auth token file")
	flag.StringVar(&lockFile, "lock-file", "", "path to the daemon lock/pid file")
	flag.Parse()

	if dataDir == "" || endpointFlag == "" || tokenFile == "" || lockFile == "" {
		fmt.Fprintln(os.Stderr, "supervisord: --data-dir, --endpoint, --token-file and --lock-file are all required")
		os.Exit(1)
	}

	logger, _ := logging.New(logging.DefaultLogPath())

	if err := pathutil.EnsureGUIPath(); err != nil {
		logger.Errorf("ensure PATH: %v", err)
	}

	lock, err := acquireLock(lockFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "supervisord: %v\n", err)
		os.Exit(1)
	}
	defer releaseLock(lock, lockFile)

	token, err := ensureToken(tokenFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "supervisord: resolve token: %v\n", err)
		os.Exit(1)
	}

	ep, err := agentpath.ParseEndpoint(endpointFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "supervisord: %v\n", err)
		os.Exit(1)
	}

	workerPath, workerArgs, err := agentpath.ResolveWorkerExec("worker", "", dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "supervisord: resolve worker exec: %v\n", err)
		os.Exit(1)
	}

	cmd := exec.Command(workerPath, workerArgs...)
	if seed := os.Getenv("COWORK_CONNECTOR_SECRET_KEY"); seed != "" {
		cmd.Env = append(os.Environ(), "COWORK_CONNECTOR_SECRET_KEY="+seed)
	} else {
		cmd.Env = os.Environ()
	}
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		fmt.Fprintf(os.Stderr, "supervisord: open worker stdin: %v\n", err)
		os.Exit(1)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		fmt.Fprintf(os.Stderr, "supervisord: open worker stdout: %v\n", err)
		os.Exit(1)
	}
	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "supervisord: spawn worker: %v\n", err)
		os.Exit(1)
	}

	hub := daemonhub.New(token, stdin)
	go func() {
		if err := hub.RunUpstream(stdout); err != nil {
			logger.Errorf("worker stream closed: %v", err)
		}
		os.Exit(1)
	}()

	listener, err := listenEndpoint(ep)
	if err != nil {
		fmt.Fprintf(os.Stderr, "supervisord: listen on %s: %v\n", ep.String(), err)
		os.Exit(1)
	}
	defer listener.Close()
	logger.Infof("supervisord listening on %s (worker pid %d)", ep.String(), cmd.Process.Pid)

	recordStatus(dataDir, ep.String())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = listener.Close()
		_ = cmd.Process.Kill()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Errorf("accept: %v", err)
				return
			}
		}
		go hub.HandleClient(conn)
	}
}

func listenEndpoint(ep agentpath.Endpoint) (net.Listener, error) {
	switch ep.Kind {
	case agentpath.EndpointLocalSocket:
		os.Remove(ep.Path)
		return net.Listen("unix", ep.Path)
	default:
		return net.Listen("tcp", net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port)))
	}
}

// ensureToken reads the auth token file, generating a fresh one if it
// doesn't exist yet (first daemon launch for this data directory).
func ensureToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		token := strings.TrimSpace(string(data))
		if token != "" {
			return token, nil
		}
	}
	return regenerateToken(path)
}

func regenerateToken(path string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := fmt.Sprintf("%x", buf)
	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		return "", err
	}
	return token, nil
}

// acquireLock takes an exclusive, non-blocking flock on lockFile so only
// one supervisord runs per data directory, following the teacher's
// acquirePIDLock convention (internal/daemon/daemon.go).
func acquireLock(lockFile string) (*os.File, error) {
	f, err := os.OpenFile(lockFile, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("daemon already running (lock held on %s)", lockFile)
	}
	f.Truncate(0)
	f.Seek(0, 0)
	fmt.Fprintf(f, "%d", os.Getpid())
	f.Sync()
	return f, nil
}

func releaseLock(f *os.File, lockFile string) {
	if f == nil {
		return
	}
	syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	f.Close()
	os.Remove(lockFile)
}

func recordStatus(dataDir, endpoint string) {
	s, err := store.Open(filepath.Join(dataDir, "state.db"))
	if err != nil {
		return
	}
	defer s.Close()
	s.UpsertServiceStatus(store.ServiceStatusRecord{
		ServiceID: "run.cowork.supervisor",
		Manager:   "supervisord",
		Running:   true,
		DataDir:   dataDir,
		Endpoint:  endpoint,
		UpdatedAt: time.Now(),
	})
}
