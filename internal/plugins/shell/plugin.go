// Package shell is the process capability: scoped program execution and
// opening URLs or files with the system handler. Only desktop builds
// register it.
package shell

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"meatycapture/internal/capability"
	"meatycapture/internal/logger"
)

const Name = "shell"

// waitDelay bounds how long Wait keeps reading output after the process
// has been killed.
const waitDelay = 500 * time.Millisecond

const (
	EventStdout     = "shell://stdout"
	EventStderr     = "shell://stderr"
	EventTerminated = "shell://terminated"
)

type Plugin struct {
	scope   *Scope
	events  *capability.Events
	logger  logger.Logger
	timeout time.Duration
	opener  func(ctx context.Context, u *url.URL) error

	mu       sync.Mutex
	children map[string]*child
}

type child struct {
	cmd  *exec.Cmd
	done chan struct{}
}

type Option func(*Plugin)

// WithOpener replaces the fyne opener used by the open command.
func WithOpener(fn func(ctx context.Context, u *url.URL) error) Option {
	return func(p *Plugin) { p.opener = fn }
}

func New(scope *Scope, events *capability.Events, log logger.Logger, timeout time.Duration, opts ...Option) *Plugin {
	p := &Plugin{
		scope:    scope,
		events:   events,
		logger:   log,
		timeout:  timeout,
		opener:   fyneOpen,
		children: make(map[string]*child),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Commands() []string {
	return []string{"execute", "spawn", "kill", "open"}
}

type runArgs struct {
	Program string            `json:"program" validate:"required"`
	Args    []string          `json:"args"`
	Cwd     string            `json:"cwd"`
	Env     map[string]string `json:"env"`
}

type killArgs struct {
	ID string `json:"id" validate:"required,uuid"`
}

type openArgs struct {
	Target string `json:"target" validate:"required"`
}

// Output is the result of a completed execute call.
type Output struct {
	Code   int    `json:"code"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

func (p *Plugin) Invoke(ctx context.Context, command string, payload json.RawMessage) (any, error) {
	switch command {
	case "execute":
		var a runArgs
		if err := capability.Decode(payload, &a); err != nil {
			return nil, err
		}
		return p.Execute(ctx, a)
	case "spawn":
		var a runArgs
		if err := capability.Decode(payload, &a); err != nil {
			return nil, err
		}
		return p.Spawn(a)
	case "kill":
		var a killArgs
		if err := capability.Decode(payload, &a); err != nil {
			return nil, err
		}
		return nil, p.Kill(a.ID)
	case "open":
		var a openArgs
		if err := capability.Decode(payload, &a); err != nil {
			return nil, err
		}
		return nil, p.Open(ctx, a.Target)
	default:
		return nil, capability.UnknownCommand(Name, command)
	}
}

func (p *Plugin) command(ctx context.Context, a runArgs) (*exec.Cmd, error) {
	bin, err := p.scope.Command(a.Program, a.Args)
	if err != nil {
		return nil, err
	}
	if err := p.scope.CheckEnv(a.Program, a.Env); err != nil {
		return nil, err
	}
	if a.Cwd != "" && !filepath.IsAbs(a.Cwd) {
		return nil, fmt.Errorf("%w: cwd %q is not absolute", ErrForbidden, a.Cwd)
	}

	cmd := exec.CommandContext(ctx, bin, a.Args...)
	cmd.Dir = a.Cwd
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay
	if len(a.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range a.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	return cmd, nil
}

// Execute runs a scoped program to completion. A non-zero exit status is
// reported in Output.Code, not as an error.
func (p *Plugin) Execute(ctx context.Context, a runArgs) (Output, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cmd, err := p.command(ctx, a)
	if err != nil {
		return Output{}, err
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr) && ctx.Err() == nil:
		out.Code = exitErr.ExitCode()
	default:
		return Output{}, fmt.Errorf("execute %s: %w", a.Program, err)
	}

	p.logger.Debug("ShellPlugin", "program finished", map[string]interface{}{
		"program":     a.Program,
		"code":        out.Code,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return out, nil
}

// Spawn starts a scoped program in the background and streams its output
// as events. It returns the child id used by Kill.
func (p *Plugin) Spawn(a runArgs) (string, error) {
	cmd, err := p.command(context.Background(), a)
	if err != nil {
		return "", err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("spawn %s: %w", a.Program, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("spawn %s: %w", a.Program, err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("spawn %s: %w", a.Program, err)
	}

	id := uuid.NewString()
	c := &child{cmd: cmd, done: make(chan struct{})}

	p.mu.Lock()
	p.children[id] = c
	p.mu.Unlock()

	var streams sync.WaitGroup
	streams.Add(2)
	go p.stream(id, EventStdout, stdout, &streams)
	go p.stream(id, EventStderr, stderr, &streams)

	go func() {
		defer close(c.done)
		streams.Wait()
		code := 0
		if err := cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}

		p.mu.Lock()
		delete(p.children, id)
		p.mu.Unlock()

		p.events.Publish(capability.Event{
			Type: EventTerminated,
			Data: map[string]interface{}{"id": id, "code": code},
		})
	}()

	p.logger.Debug("ShellPlugin", "program spawned", map[string]interface{}{
		"program": a.Program,
		"id":      id,
		"pid":     cmd.Process.Pid,
	})
	return id, nil
}

func (p *Plugin) stream(id, eventType string, r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.events.Publish(capability.Event{
			Type: eventType,
			Data: map[string]interface{}{"id": id, "line": scanner.Text()},
		})
	}
}

func (p *Plugin) Kill(id string) error {
	p.mu.Lock()
	c, ok := p.children[id]
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown child %s", id)
	}
	if err := killProcessGroup(c.cmd); err != nil {
		return fmt.Errorf("kill %s: %w", id, err)
	}
	<-c.done
	return nil
}

// Open hands a web URL or an absolute path to the system handler.
func (p *Plugin) Open(ctx context.Context, target string) error {
	if !p.scope.open {
		return fmt.Errorf("%w: open is disabled", ErrForbidden)
	}
	u, err := openTarget(target)
	if err != nil {
		return err
	}
	return p.opener(ctx, u)
}

// Shutdown kills every spawned child that is still running.
func (p *Plugin) Shutdown() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.children))
	for id := range p.children {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		if err := p.Kill(id); err != nil {
			p.logger.Warning("ShellPlugin", "child kill failed", map[string]interface{}{
				"id":    id,
				"error": err.Error(),
			})
		}
	}
}
