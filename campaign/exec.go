package campaign

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// runBatch runs one (key, plaintext) batch of binaries under bounded
// concurrency (workers). Results are collected into a slice indexed
// by position in batch, so that the caller can emit them in
// deterministic batch order regardless of which worker finished
// first — the ordering guarantee in spec.md §5.
func runBatch(ctx context.Context, cfg Config, workers int, timeout time.Duration, infile, key, plaintext string, batch []string) []RunResult {
	results := make([]RunResult, len(batch))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, name := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, name string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = runOne(ctx, cfg, timeout, infile, key, plaintext, name)
		}(i, name)
	}
	wg.Wait()
	return results
}

// runOne executes one mutated binary with (key, plaintext) as
// arguments, under a per-run timeout. The child (and any descendants,
// via its own process group) is force-killed on timeout; stdout and
// stderr captured up to that point are retained either way.
func runOne(ctx context.Context, cfg Config, timeout time.Duration, infile, key, plaintext, name string) RunResult {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	path := binPath(cfg.BinDir, name)
	var cmd *exec.Cmd
	if cfg.Arch == "arm" {
		cmd = exec.CommandContext(runCtx, "qemu-arm", "-L", cfg.ArmSysroot, path, key, plaintext)
	} else {
		cmd = exec.CommandContext(runCtx, path, key, plaintext)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// CommandContext's own Cancel hook only signals cmd.Process, not the
	// process group Setpgid creates — a mutant that forked a descendant
	// holding the stdout/stderr pipes open would otherwise block Wait
	// past the timeout. WaitDelay bounds Wait itself: once the context
	// is done, Wait gives the I/O copiers WaitDelay to finish before it
	// force-closes the pipes and returns, so it can't hang indefinitely.
	cmd.WaitDelay = timeout

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	result := RunResult{InFile: infile, Filename: name, Key: key, Plaintext: plaintext}

	startErr := cmd.Start()
	if startErr != nil {
		result.Stderr = []byte(startErr.Error())
		result.ExitCode = -1
		return result
	}

	waitErr := cmd.Wait()
	result.Stdout = stdout.Bytes()
	result.Stderr = stderr.Bytes()

	if runCtx.Err() == context.DeadlineExceeded || errors.Is(waitErr, exec.ErrWaitDelay) {
		killProcessGroup(cmd)
		result.TimedOut = true
	}
	result.ExitCode = exitCode(waitErr)
	return result
}

// killProcessGroup force-kills the child's whole process group so
// that descendants spawned by the mutated binary don't outlive the
// timeout. cmd.Wait() has already returned by the time this is
// called — either the context cancellation killed the direct child
// and Wait returned normally, or WaitDelay expired first and Wait
// returned exec.ErrWaitDelay after force-closing the I/O pipes — so
// this is cleanup of stragglers rather than the thing that unblocks
// Wait.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Kill()
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
