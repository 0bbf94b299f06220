// Package shutdown owns process exit: signal-driven cancellation for
// graceful stops, and crash artifacts for fatal errors.
package shutdown

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"huddle/pkg/logger"
)

// abortRecord is the machine-readable marker left under
// <dbPath>/state/abort so operators can see why the process died.
type abortRecord struct {
	Time   string `json:"time"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
	Dump   string `json:"dump,omitempty"`
	PID    int    `json:"pid"`
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
// SIGPIPE additionally dumps goroutine stacks before cancelling, since
// it usually means a downstream log sink or probe went away.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM, syscall.SIGPIPE)
	go func() {
		s := <-sigc
		if s == syscall.SIGPIPE {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			logger.Warn("sigpipe_stack_dump", "dump", string(buf[:n]))
		}
		logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
		cancel()
	}()
	return ctx, cancel
}

// Abort writes crash diagnostics under <dbPath>/state, logs the failure
// and exits with status 2. The exit is delayed (default 10s) so log
// sinks and the crash dump have time to flush.
func Abort(reason string, err error, dbPath string, delaySeconds ...int) {
	delay := 10
	if len(delaySeconds) > 0 && delaySeconds[0] >= 0 {
		delay = delaySeconds[0]
	}
	logger.Error("fatal", "reason", reason, "error", err)
	dump, derr := writeCrashArtifacts(dbPath, reason, err)
	if derr != nil {
		logger.Error("crash_dump_failed", "error", derr)
		fmt.Fprintf(os.Stderr, "failed to write crash dump: %v\n", derr)
	} else {
		logger.Error("crash_dump_written", "path", dump)
		fmt.Fprintf(os.Stderr, "crash dump written: %s\n", dump)
	}
	for i := delay; i > 0; i-- {
		logger.Info("exiting_in_seconds", "seconds", i)
		time.Sleep(time.Second)
	}
	os.Exit(2)
}

func stateSubdir(dbPath, sub string) string {
	if dbPath == "" {
		return "./" + sub
	}
	return filepath.Join(dbPath, "state", sub)
}

// writeCrashArtifacts writes a human-readable stack dump plus a small
// JSON abort record pointing at it. The dump is staged through a temp
// file so a partial write never looks like a finished artifact.
func writeCrashArtifacts(dbPath, reason string, cause error) (string, error) {
	crashDir := stateSubdir(dbPath, "crash")
	abortDir := stateSubdir(dbPath, "abort")
	for _, d := range []string{crashDir, abortDir} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return "", err
		}
	}

	ts := time.Now().UnixNano()
	tmp, err := os.CreateTemp(crashDir, ".crash-*.tmp")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	fmt.Fprintf(tmp, "time: %s\nreason: %s\nerror: %v\n\n--- goroutine stacks ---\n",
		time.Now().UTC().Format(time.RFC3339), reason, cause)
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	_, _ = tmp.Write(buf[:n])
	_ = tmp.Sync()
	_ = tmp.Close()

	dump := filepath.Join(crashDir, fmt.Sprintf("crash-%d.log", ts))
	if err := os.Rename(tmp.Name(), dump); err != nil {
		return "", err
	}
	_ = os.Chmod(dump, 0o600)

	rec := abortRecord{
		Time:   time.Now().UTC().Format(time.RFC3339),
		Reason: reason,
		Dump:   dump,
		PID:    os.Getpid(),
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return dump, err
	}
	recPath := filepath.Join(abortDir, fmt.Sprintf("abort-%d.json", ts))
	if err := os.WriteFile(recPath, data, 0o600); err != nil {
		return dump, err
	}
	return dump, nil
}
