package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ia319/nola/internal/config"
	"github.com/ia319/nola/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client drives the external transcription binary. The binary receives the
// input path plus option flags and reports through line events on stdout:
//
//	{"type":"progress","percent":42.5}
//	{"type":"segment","start":0,"end":1.5,"text":"hello"}
//	{"type":"done","duration":93.2,"language":"en"}
//
// Lines that do not parse as events are ignored.
type Client struct {
	binary   string
	defaults Options
	timeout  time.Duration
	exec     Executor
}

type event struct {
	Type     string  `json:"type"`
	Percent  float64 `json:"percent"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Language string  `json:"language"`
}

// New constructs a client from the transcription configuration.
func New(cfg config.Transcription, opts ...Option) (*Client, error) {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		return nil, services.Wrap(services.ErrConfiguration, "engine", "new", "transcription binary required", nil)
	}
	client := &Client{
		binary: binary,
		defaults: Options{
			Language:    cfg.Language,
			ModelSize:   cfg.ModelSize,
			Device:      cfg.Device,
			ComputeType: cfg.ComputeType,
		},
		timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Transcribe runs the binary against inputPath and collects the segment
// stream. Task options override the configured defaults field by field.
func (c *Client) Transcribe(ctx context.Context, inputPath string, opts Options, progress func(float64)) (*Result, error) {
	if strings.TrimSpace(inputPath) == "" {
		return nil, services.Wrap(services.ErrValidation, "engine", "transcribe", "input path required", nil)
	}
	if _, err := os.Stat(inputPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "engine", "transcribe",
				fmt.Sprintf("input file %s missing", inputPath), err)
		}
		return nil, services.Wrap(services.ErrTransient, "engine", "transcribe", "stat input", err)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	merged := c.mergeOptions(opts)
	args := buildArgs(inputPath, merged)

	result := &Result{}
	done := false
	onLine := func(line string) {
		ev, ok := parseEvent(line)
		if !ok {
			return
		}
		switch ev.Type {
		case "progress":
			if progress != nil {
				progress(clampPercent(ev.Percent))
			}
		case "segment":
			result.Segments = append(result.Segments, Segment{Start: ev.Start, End: ev.End, Text: ev.Text})
		case "done":
			result.Duration = ev.Duration
			result.Language = ev.Language
			done = true
		}
	}

	if err := c.exec.Run(runCtx, c.binary, args, onLine); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "engine", "transcribe",
				fmt.Sprintf("transcription exceeded %s", c.timeout), err)
		}
		return nil, services.Wrap(services.ErrExternalTool, "engine", "transcribe", "transcription command failed", err)
	}
	if !done {
		return nil, services.Wrap(services.ErrExternalTool, "engine", "transcribe",
			"command exited without reporting completion", nil)
	}
	if progress != nil {
		progress(100)
	}
	return result, nil
}

func (c *Client) mergeOptions(opts Options) Options {
	merged := c.defaults
	if opts.Language != "" {
		merged.Language = opts.Language
	}
	if opts.ModelSize != "" {
		merged.ModelSize = opts.ModelSize
	}
	if opts.Device != "" {
		merged.Device = opts.Device
	}
	if opts.ComputeType != "" {
		merged.ComputeType = opts.ComputeType
	}
	if opts.BeamSize > 0 {
		merged.BeamSize = opts.BeamSize
	}
	merged.WordTimestamps = merged.WordTimestamps || opts.WordTimestamps
	merged.VADFilter = merged.VADFilter || opts.VADFilter
	if opts.InitialPrompt != "" {
		merged.InitialPrompt = opts.InitialPrompt
	}
	return merged
}

func buildArgs(inputPath string, opts Options) []string {
	args := []string{"--output", "events"}
	if opts.ModelSize != "" {
		args = append(args, "--model", opts.ModelSize)
	}
	if opts.Device != "" {
		args = append(args, "--device", opts.Device)
	}
	if opts.ComputeType != "" {
		args = append(args, "--compute-type", opts.ComputeType)
	}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	if opts.BeamSize > 0 {
		args = append(args, "--beam-size", strconv.Itoa(opts.BeamSize))
	}
	if opts.WordTimestamps {
		args = append(args, "--word-timestamps")
	}
	if opts.VADFilter {
		args = append(args, "--vad-filter")
	}
	if opts.InitialPrompt != "" {
		args = append(args, "--initial-prompt", opts.InitialPrompt)
	}
	return append(args, inputPath)
}

func parseEvent(line string) (event, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return event{}, false
	}
	var ev event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return event{}, false
	}
	if ev.Type == "" {
		return event{}, false
	}
	return ev, true
}

func clampPercent(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			forward(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	onEvent := func(line string) {
		if onStdout != nil {
			onStdout(line)
		}
	}

	// The event protocol lives on stdout only. Diagnostics on stderr are
	// drained on their own goroutine and kept for the failure message, so
	// onStdout never sees them and is only ever called from one goroutine.
	var diagnostics stderrTail
	wg.Add(2)
	go scan(stdout, onEvent)
	go scan(stderr, diagnostics.append)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		if tail := diagnostics.String(); tail != "" {
			return fmt.Errorf("wait command: %w (stderr: %s)", err, tail)
		}
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}

// stderrTail keeps the last few stderr lines for error context. Only the
// stderr scanner goroutine writes; readers wait for it to finish.
type stderrTail struct {
	lines []string
}

const stderrTailLines = 5

func (t *stderrTail) append(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > stderrTailLines {
		t.lines = t.lines[len(t.lines)-stderrTailLines:]
	}
}

func (t *stderrTail) String() string {
	return strings.Join(t.lines, " | ")
}
