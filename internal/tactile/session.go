package tactile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"termcoder/internal/logging"
	"termcoder/internal/types"
)

// State is a session's lifecycle position.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options configure a Session. Zero durations take the defaults.
type Options struct {
	Flavor Flavor
	Dir    string
	Env    []string

	QuietPeriod time.Duration // interactive: silence before checking for a prompt (2s)
	IdleQuiet   time.Duration // non-interactive: silence that ends a command (1s)
	HardTimeout time.Duration // ceiling for every command (30s)
	StopGrace   time.Duration // terminate-to-kill wait (5s)

	// Input answers prompts detected in interactive mode. Nil means prompts
	// end the command instead.
	Input types.InputFunc

	// Echo, when set, receives output as it arrives.
	Echo io.Writer

	// QueueLimit bounds unread output (default 1 MiB).
	QueueLimit int
}

func (o *Options) applyDefaults() {
	if o.Flavor.Binary == "" {
		o.Flavor = DetectShell("")
	}
	if o.QuietPeriod <= 0 {
		o.QuietPeriod = 2 * time.Second
	}
	if o.IdleQuiet <= 0 {
		o.IdleQuiet = time.Second
	}
	if o.HardTimeout <= 0 {
		o.HardTimeout = 30 * time.Second
	}
	if o.StopGrace <= 0 {
		o.StopGrace = 5 * time.Second
	}
}

// Result is the outcome of one command.
type Result struct {
	Output   string
	ExitCode int // -1 when unknown (interactive mode, timeout)
	Prompts  int // prompts answered by a human
	TimedOut bool
	Duration time.Duration
}

// Session is a persistent shell process. Commands run one at a time; the
// reader goroutine drains output for the whole life of the process.
type Session struct {
	opts Options

	execMu sync.Mutex // serialises commands

	mu         sync.Mutex
	state      State
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	queue      *outputQueue
	readerDone chan struct{}
	exited     chan struct{}
	workDir    string
	lastActive time.Time
}

// NewSession creates an unstarted session.
func NewSession(opts Options) *Session {
	opts.applyDefaults()
	return &Session{opts: opts, state: StateNotStarted, workDir: opts.Dir}
}

// Flavor returns the session's shell flavor.
func (s *Session) Flavor() Flavor { return s.opts.Flavor }

// State returns the lifecycle state, noticing a process that exited.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()
	return s.state
}

// WorkingDirectory returns the directory last established via
// ChangeDirectory (or the start directory).
func (s *Session) WorkingDirectory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workDir
}

// LastActivity returns when output was last received or a command issued.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) refreshLocked() {
	if s.state != StateRunning {
		return
	}
	select {
	case <-s.exited:
		s.state = StateStopped
		logging.TactileWarn("Shell %s exited on its own", s.opts.Flavor.Binary)
	default:
	}
}

// Start spawns the shell. Starting a running session restarts it.
func (s *Session) Start(ctx context.Context) error {
	if s.State() == StateRunning {
		if err := s.Stop(); err != nil {
			return err
		}
	}

	s.execMu.Lock()
	defer s.execMu.Unlock()

	flavor := s.opts.Flavor
	if _, err := exec.LookPath(flavor.Binary); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, flavor.Binary, err)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create output pipe: %w", err)
	}

	// Not bound to ctx: the session outlives the call that started it.
	cmd := exec.Command(flavor.Binary, flavor.Args...)
	cmd.Dir = s.opts.Dir
	if len(s.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), s.opts.Env...)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw
	setupProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		pr.Close()
		pw.Close()
		return fmt.Errorf("failed to open stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return fmt.Errorf("%w: failed to start %s: %v", ErrUnavailable, flavor.Binary, err)
	}
	// The child holds its own copy of the write end.
	pw.Close()

	queue := newOutputQueue(s.opts.QueueLimit)
	readerDone := make(chan struct{})
	exited := make(chan struct{})

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.queue = queue
	s.readerDone = readerDone
	s.exited = exited
	s.state = StateRunning
	s.lastActive = time.Now()
	// A fresh process starts in opts.Dir regardless of earlier cd calls.
	s.workDir = s.opts.Dir
	if s.workDir == "" {
		s.workDir, _ = os.Getwd()
	}
	s.mu.Unlock()

	go s.readLoop(pr, queue, readerDone)
	go func() {
		cmd.Wait()
		close(exited)
	}()

	logging.Tactile("Started %s session (%s, pid=%d)", flavor.Name, flavor.Binary, cmd.Process.Pid)
	return nil
}

// readLoop drains the child's output until EOF. It never blocks on the
// consumer.
func (s *Session) readLoop(r io.ReadCloser, queue *outputQueue, done chan struct{}) {
	defer close(done)
	defer r.Close()

	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			queue.push(buf[:n])
			s.mu.Lock()
			s.lastActive = time.Now()
			s.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				logging.TactileDebug("shell reader stopped: %v", err)
			}
			return
		}
	}
}

// running returns the live handles or ErrNotRunning.
func (s *Session) running() (io.Writer, *outputQueue, chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()
	if s.state != StateRunning {
		return nil, nil, nil, ErrNotRunning
	}
	return s.stdin, s.queue, s.exited, nil
}

// Execute runs one command. Non-interactive commands finish on a completion
// marker, on IdleQuiet of silence after output, or at HardTimeout.
// Interactive commands finish when QuietPeriod passes without output and
// the last line does not look like a prompt; prompt-like lines are answered
// through Options.Input. ErrTimeout comes back with the partial result.
func (s *Session) Execute(ctx context.Context, command string, interactive bool) (*Result, error) {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	stdin, queue, exited, err := s.running()
	if err != nil {
		return nil, err
	}

	// Output that arrived after the previous command returned early (quiet
	// fallback) is handed back with this result instead of being lost.
	leftover := leftoverOutput(queue.drain())
	if leftover != "" {
		logging.TactileWarn("Previous command kept writing after it returned (%d bytes)", len(leftover))
	}

	logging.Tactile("$ %s (interactive=%v)", command, interactive)
	s.touch()

	var res *Result
	if interactive {
		if _, err := io.WriteString(stdin, command+"\n"); err != nil {
			return nil, fmt.Errorf("%w: write failed: %v", ErrNotRunning, err)
		}
		res, err = s.waitInteractive(ctx, stdin, queue, exited)
	} else {
		marker := markerPrefix + strings.ReplaceAll(uuid.NewString(), "-", "") + "__"
		script := command + "\n" + s.opts.Flavor.done(marker) + "\n"
		if _, err := io.WriteString(stdin, script); err != nil {
			return nil, fmt.Errorf("%w: write failed: %v", ErrNotRunning, err)
		}
		res, err = s.waitMarked(ctx, queue, exited, marker)
	}
	if res != nil && leftover != "" {
		res.Output = previousOutputNote + "\n" + leftover + "\n" + res.Output
	}
	return res, err
}

const (
	markerPrefix       = "__TERMCODER_DONE_"
	previousOutputNote = "[previous command output]"
)

// leftoverOutput strips completion marker lines from late output.
func leftoverOutput(p []byte) string {
	if len(p) == 0 {
		return ""
	}
	var kept []string
	for _, line := range strings.Split(string(p), "\n") {
		if strings.Contains(line, markerPrefix) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) echo(p []byte) {
	if s.opts.Echo != nil && len(p) > 0 {
		s.opts.Echo.Write(p)
	}
}

// pollInterval bounds how stale the quiet-period checks can be.
func (s *Session) pollInterval() time.Duration {
	d := s.opts.IdleQuiet / 4
	if q := s.opts.QuietPeriod / 4; q < d {
		d = q
	}
	if d > 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	if d < 5*time.Millisecond {
		d = 5 * time.Millisecond
	}
	return d
}

func (s *Session) waitMarked(ctx context.Context, queue *outputQueue, exited chan struct{}, marker string) (*Result, error) {
	start := time.Now()
	deadline := time.NewTimer(s.opts.HardTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.pollInterval())
	defer ticker.Stop()

	var out strings.Builder
	lastOutput := start
	for {
		if chunk := queue.drain(); len(chunk) > 0 {
			out.Write(chunk)
			lastOutput = time.Now()
			if i := strings.Index(out.String(), marker); i >= 0 {
				text := out.String()
				status := strings.TrimSpace(firstLine(text[i+len(marker):]))
				output := text[:i]
				s.echo([]byte(output))
				code, err := strconv.Atoi(status)
				if err != nil {
					code = -1
				}
				return &Result{Output: output, ExitCode: code, Duration: time.Since(start)}, nil
			}
		}

		// The marker line may have been swallowed (e.g. the command
		// read stdin); fall back to silence after output.
		if out.Len() > 0 && time.Since(lastOutput) >= s.opts.IdleQuiet && time.Since(start) >= s.opts.IdleQuiet {
			s.echo([]byte(out.String()))
			return &Result{Output: out.String(), ExitCode: -1, Duration: time.Since(start)}, nil
		}

		select {
		case <-ctx.Done():
			return &Result{Output: out.String(), ExitCode: -1, Duration: time.Since(start)}, ctx.Err()
		case <-deadline.C:
			logging.TactileWarn("Command hit hard timeout after %v", s.opts.HardTimeout)
			return &Result{Output: out.String(), ExitCode: -1, TimedOut: true, Duration: time.Since(start)}, ErrTimeout
		case <-exited:
			out.Write(queue.drain())
			return &Result{Output: out.String(), ExitCode: -1, Duration: time.Since(start)}, ErrNotRunning
		case <-queue.signal():
		case <-ticker.C:
		}
	}
}

func (s *Session) waitInteractive(ctx context.Context, stdin io.Writer, queue *outputQueue, exited chan struct{}) (*Result, error) {
	start := time.Now()
	deadline := time.Now().Add(s.opts.HardTimeout)
	ticker := time.NewTicker(s.pollInterval())
	defer ticker.Stop()

	res := &Result{ExitCode: -1}
	var out strings.Builder
	lastOutput := start
	for {
		if chunk := queue.drain(); len(chunk) > 0 {
			out.Write(chunk)
			s.echo(chunk)
			lastOutput = time.Now()
		}

		if time.Since(lastOutput) >= s.opts.QuietPeriod {
			line := lastLine(out.String())
			if s.opts.Input == nil || !LooksLikePrompt(line) {
				break
			}

			logging.Tactile("Waiting for input: %q", line)
			asked := time.Now()
			answer, err := s.opts.Input(ctx, line)
			if err != nil {
				res.Output = out.String()
				res.Duration = time.Since(start)
				return res, fmt.Errorf("input for prompt %q: %w", line, err)
			}
			// Time spent waiting on the human does not count.
			deadline = deadline.Add(time.Since(asked))
			if _, err := io.WriteString(stdin, answer+"\n"); err != nil {
				res.Output = out.String()
				return res, fmt.Errorf("%w: write failed: %v", ErrNotRunning, err)
			}
			out.WriteString(answer + "\n")
			res.Prompts++
			lastOutput = time.Now()
			s.touch()
			continue
		}

		if time.Now().After(deadline) {
			logging.TactileWarn("Interactive command hit hard timeout after %v", s.opts.HardTimeout)
			res.Output = out.String()
			res.TimedOut = true
			res.Duration = time.Since(start)
			return res, ErrTimeout
		}

		select {
		case <-ctx.Done():
			res.Output = out.String()
			res.Duration = time.Since(start)
			return res, ctx.Err()
		case <-exited:
			out.Write(queue.drain())
			res.Output = out.String()
			res.Duration = time.Since(start)
			return res, ErrNotRunning
		case <-queue.signal():
		case <-ticker.C:
		}
	}

	res.Output = out.String()
	res.Duration = time.Since(start)
	return res, nil
}

// ChangeDirectory issues the shell's own cd and records the new directory.
func (s *Session) ChangeDirectory(ctx context.Context, path string) (string, error) {
	res, err := s.Execute(ctx, s.opts.Flavor.cd(path), false)
	if err != nil {
		return "", err
	}
	if res.ExitCode > 0 {
		return "", fmt.Errorf("cd %s failed: %s", path, strings.TrimSpace(res.Output))
	}
	return s.CurrentDirectory(ctx)
}

// CurrentDirectory asks the shell for its working directory.
func (s *Session) CurrentDirectory(ctx context.Context) (string, error) {
	res, err := s.Execute(ctx, s.opts.Flavor.pwd, false)
	if err != nil {
		return "", err
	}
	dir := strings.TrimSpace(lastLine(res.Output))
	if dir == "" {
		return "", fmt.Errorf("shell did not report a working directory")
	}
	s.mu.Lock()
	s.workDir = dir
	s.mu.Unlock()
	return dir, nil
}

// ResetDirectory returns the shell to the directory it was started in.
func (s *Session) ResetDirectory(ctx context.Context) (string, error) {
	dir := s.opts.Dir
	if dir == "" {
		var err error
		if dir, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	return s.ChangeDirectory(ctx, dir)
}

// Stop terminates the shell: stdin is closed, the process group gets a
// terminate signal, then a kill after StopGrace. Idempotent.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopped
	cmd, stdin, exited, readerDone := s.cmd, s.stdin, s.exited, s.readerDone
	s.mu.Unlock()

	stdin.Close()
	if err := terminateProcess(cmd); err != nil {
		logging.TactileDebug("terminate: %v", err)
	}

	select {
	case <-exited:
	case <-time.After(s.opts.StopGrace):
		logging.TactileWarn("Shell did not exit within %v, killing", s.opts.StopGrace)
		if err := killProcess(cmd); err != nil {
			logging.TactileError("kill failed: %v", err)
		}
		<-exited
	}

	select {
	case <-readerDone:
	case <-time.After(s.opts.StopGrace):
		// A detached grandchild still holds the pipe open.
		logging.TactileWarn("Output reader still blocked after stop")
	}

	logging.Tactile("Stopped %s session", s.opts.Flavor.Name)
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
