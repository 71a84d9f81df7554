package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sayfpack13/TrustQuery-sub002/internal/model"
	"go.uber.org/zap"
)

// ExecSupervisor launches the engine binary as a detached OS process.
// Each node's pid is written under its home directory; the health probe
// is an HTTP request against the node's own port, so a pid alone never
// counts as running.
type ExecSupervisor struct {
	binary       string
	probeTimeout time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewExecSupervisor creates a supervisor launching the given engine binary
func NewExecSupervisor(binary string, probeTimeout time.Duration, logger *zap.Logger) *ExecSupervisor {
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second
	}
	return &ExecSupervisor{
		binary:       binary,
		probeTimeout: probeTimeout,
		httpClient:   &http.Client{Timeout: probeTimeout},
		logger:       logger,
	}
}

// Launch starts the node's engine process detached from the manager
func (s *ExecSupervisor) Launch(ctx context.Context, node *model.NodeConfig) error {
	stdout, err := os.OpenFile(
		filepath.Join(node.LogsPath, "stdout.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644,
	)
	if err != nil {
		return fmt.Errorf("failed to open node stdout log: %w", err)
	}
	defer stdout.Close()

	cmd := exec.Command(s.binary, "--config", node.ConfigFilePath())
	cmd.Dir = node.HomePath()
	cmd.Stdout = stdout
	cmd.Stderr = stdout
	// New session so the engine outlives the manager process
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch engine process: %w", err)
	}

	if err := s.writePidFile(node, cmd.Process.Pid); err != nil {
		s.logger.Warn("failed to write pid file",
			zap.String("node", node.Name),
			zap.Error(err))
	}

	// Reap the child when it exits so it never lingers as a zombie
	go func() { _ = cmd.Wait() }()

	s.logger.Info("engine process launched",
		zap.String("node", node.Name),
		zap.Int("pid", cmd.Process.Pid))
	return nil
}

// Terminate sends SIGTERM to the node's recorded process
func (s *ExecSupervisor) Terminate(ctx context.Context, node *model.NodeConfig) error {
	pid, err := s.readPidFile(node)
	if err != nil {
		return fmt.Errorf("failed to read pid file for node %s: %w", node.Name, err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}

	s.logger.Info("engine process signalled",
		zap.String("node", node.Name),
		zap.Int("pid", pid))
	return nil
}

// Probe checks the node's HTTP status endpoint. Running means the node
// answers on its own port, never that a pid merely exists.
func (s *ExecSupervisor) Probe(ctx context.Context, node *model.NodeConfig) (model.ProcessStatus, error) {
	url := fmt.Sprintf("http://%s:%d/", probeHost(node.Host), node.HTTPPort)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.ProcessStatus{}, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// Unreachable means not running; the probe itself succeeded
		return model.ProcessStatus{Running: false}, nil
	}
	defer resp.Body.Close()

	status := model.ProcessStatus{Running: resp.StatusCode < http.StatusInternalServerError}
	if pid, err := s.readPidFile(node); err == nil {
		status.PID = pid
	}
	return status, nil
}

func (s *ExecSupervisor) pidFilePath(node *model.NodeConfig) string {
	return filepath.Join(node.HomePath(), "node.pid")
}

func (s *ExecSupervisor) writePidFile(node *model.NodeConfig, pid int) error {
	return os.WriteFile(s.pidFilePath(node), []byte(strconv.Itoa(pid)), 0o644)
}

func (s *ExecSupervisor) readPidFile(node *model.NodeConfig) (int, error) {
	data, err := os.ReadFile(s.pidFilePath(node))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// probeHost maps wildcard bind addresses to a connectable loopback address
func probeHost(host string) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		return "127.0.0.1"
	}
	return host
}
