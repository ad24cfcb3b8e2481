// Package shutdown owns the fatal-exit path: diagnostic dumps under the
// engine's state directory, a short exit delay so the log sink flushes,
// and the signal wiring for graceful shutdown.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"hearthsync/pkg/logger"
	"hearthsync/pkg/state"
)

// exitDelay gives the log sink and the dump file time to reach disk
// before the process dies.
const exitDelay = 5 * time.Second

// dumpDir resolves where diagnostic dumps land: the state layout once
// EnsureStateDirs has run, the working directory before that.
func dumpDir() string {
	if state.PathsVar.State != "" {
		return filepath.Join(state.PathsVar.State, "dump")
	}
	return "./dump"
}

// WriteDump writes a diagnostic report (reason, cause, goroutine stacks)
// and returns its path. The file lands via rename so a crash mid-write
// never leaves a truncated report behind.
func WriteDump(reason string, cause error) (string, error) {
	dir := dumpDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create dump dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".dump-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create dump file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	fmt.Fprintf(tmp, "time: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(tmp, "pid: %d\n", os.Getpid())
	fmt.Fprintf(tmp, "reason: %s\n", reason)
	fmt.Fprintf(tmp, "error: %v\n", cause)
	fmt.Fprintf(tmp, "\n--- goroutine stacks ---\n")
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	tmp.Write(buf[:n])
	tmp.Sync()
	tmp.Close()

	path := filepath.Join(dir, fmt.Sprintf("dump-%d.log", time.Now().UnixNano()))
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("finalize dump: %w", err)
	}
	_ = os.Chmod(path, 0o600)
	return path, nil
}

// Abort reports a fatal condition, writes a dump and exits nonzero.
func Abort(msg string, cause error) {
	logger.Error("fatal", "msg", msg, "error", cause)
	if path, err := WriteDump(msg, cause); err != nil {
		logger.Error("dump_write_failed", "error", err)
		fmt.Fprintf(os.Stderr, "failed to write diagnostic dump: %v\n", err)
	} else {
		logger.Error("dump_written", "path", path)
		fmt.Fprintf(os.Stderr, "diagnostic dump: %s\n", path)
	}
	time.Sleep(exitDelay)
	os.Exit(2)
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
// SIGPIPE additionally captures a dump before cancelling, since a broken
// pipe usually means the supervisor lost us mid-write.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM, syscall.SIGPIPE)
	go func() {
		s := <-sigc
		logger.Info("signal_received", "signal", s.String())
		if s == syscall.SIGPIPE {
			if path, err := WriteDump("sigpipe", nil); err == nil {
				logger.Info("dump_written", "path", path)
			}
		}
		cancel()
	}()
	return ctx, cancel
}
