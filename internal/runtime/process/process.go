package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Paintersrp/kr/internal/runtime"
)

// ErrEmptyCommand is returned when the command line has no program name.
var ErrEmptyCommand = errors.New("command must not be empty")

// maxLineSize bounds a single captured output line.
const maxLineSize = 1 << 20

// After the child exits its pipes are drained until they stay silent for
// drainIdle, and never for longer than drainMax.
const (
	drainIdle = 200 * time.Millisecond
	drainMax  = 2 * time.Second
)

type runtimeImpl struct{}

// New constructs a runtime that executes commands as local processes.
func New() runtime.Runtime {
	return &runtimeImpl{}
}

// SplitCommand tokenizes a command line on whitespace. Quotes and escapes are
// not interpreted, so arguments containing spaces cannot be expressed.
func SplitCommand(command string) ([]string, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, ErrEmptyCommand
	}
	return parts, nil
}

func (r *runtimeImpl) Start(ctx context.Context, spec runtime.StartSpec) (runtime.Handle, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	parts, err := SplitCommand(spec.Command)
	if err != nil {
		return nil, err
	}

	// The child is not bound to ctx: once running it is only
	// ever waited on.
	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Stdin = os.Stdin

	inst := &processInstance{cmd: cmd, exited: make(chan struct{})}

	// Plain os.Pipe ends instead of StdoutPipe: exec then has no copy
	// goroutines, so Wait returns when the child exits even if a process it
	// left behind still holds the write ends.
	var readers, writers []*os.File
	if spec.Capture {
		for range 2 {
			r, w, err := os.Pipe()
			if err != nil {
				closeFiles(readers)
				closeFiles(writers)
				return nil, fmt.Errorf("%s output pipe: %w", parts[0], err)
			}
			readers = append(readers, r)
			writers = append(writers, w)
		}
		cmd.Stdout = writers[0]
		cmd.Stderr = writers[1]
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	err = cmd.Start()
	closeFiles(writers)
	if err != nil {
		closeFiles(readers)
		return nil, fmt.Errorf("start %s: %w", parts[0], err)
	}

	go inst.wait(readers)

	if spec.Capture {
		inst.logs = make(chan runtime.LogEntry, 64)
		var wg sync.WaitGroup
		wg.Add(2)
		go inst.streamLogs(readers[0], runtime.LogSourceStdout, &wg)
		go inst.streamLogs(readers[1], runtime.LogSourceStderr, &wg)
		go func() {
			wg.Wait()
			close(inst.logs)
		}()
	}

	return inst, nil
}

type processInstance struct {
	cmd  *exec.Cmd
	logs chan runtime.LogEntry

	exited   chan struct{}
	exitedAt time.Time
	waitErr  error
}

// wait reaps the child and then bounds how long the log readers may keep
// draining the pipes.
func (p *processInstance) wait(readers []*os.File) {
	p.waitErr = p.cmd.Wait()
	p.exitedAt = time.Now()
	close(p.exited)
	for _, r := range readers {
		p.extendDrain(r)
	}
}

// extendDrain sets the read deadline of r once the child has exited. Each
// call allows another drainIdle of silence, up to drainMax after the exit.
func (p *processInstance) extendDrain(r *os.File) {
	select {
	case <-p.exited:
	default:
		return
	}
	deadline := time.Now().Add(drainIdle)
	if limit := p.exitedAt.Add(drainMax); deadline.After(limit) {
		deadline = limit
	}
	if err := r.SetReadDeadline(deadline); err != nil {
		// Not pollable: unblock the reader the hard way.
		_ = r.Close()
	}
}

func (p *processInstance) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *processInstance) Logs() <-chan runtime.LogEntry {
	return p.logs
}

func (p *processInstance) Wait() (runtime.ExitStatus, error) {
	<-p.exited
	err := p.waitErr
	if err == nil {
		return statusFromState(p.cmd.ProcessState), nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ProcessState != nil {
		return statusFromState(exitErr.ProcessState), nil
	}
	return runtime.ExitStatus{}, err
}

func statusFromState(state *os.ProcessState) runtime.ExitStatus {
	if state == nil {
		return runtime.ExitStatus{Code: -1}
	}
	return runtime.ExitStatus{
		Code:        state.ExitCode(),
		Description: state.String(),
	}
}

func (p *processInstance) streamLogs(r *os.File, source string, wg *sync.WaitGroup) {
	defer wg.Done()
	defer r.Close()
	scanner := bufio.NewScanner(drainReader{file: r, inst: p})
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		entry := runtime.LogEntry{
			Timestamp: time.Now(),
			Message:   strings.TrimRight(scanner.Text(), "\r\n"),
			Source:    source,
		}
		if source == runtime.LogSourceStderr {
			entry.Level = "warn"
		}
		p.logs <- entry
	}
	if errors.Is(scanner.Err(), bufio.ErrTooLong) {
		// Keep reading after an over-long line so the child never blocks on
		// a full pipe.
		_, _ = io.Copy(io.Discard, drainReader{file: r, inst: p})
	}
}

// drainReader re-arms the post-exit read deadline before every read, so
// output still arriving after the exit keeps being collected for a while.
type drainReader struct {
	file *os.File
	inst *processInstance
}

func (d drainReader) Read(b []byte) (int, error) {
	d.inst.extendDrain(d.file)
	return d.file.Read(b)
}

func closeFiles(files []*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
