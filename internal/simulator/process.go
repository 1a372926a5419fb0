package simulator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/race-evolution/internal/genome"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/config"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/logger"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/models"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/utils"
)

const (
	minPort = 1025
	maxPort = 0xffff

	// shutdownGrace is how long a worker may take to exit after stdin closes.
	shutdownGrace = 10 * time.Second
)

var (
	errWorkerExited = errors.New("simulator process exited")
	errReplyTimeout = errors.New("timed out waiting for simulator reply")
)

// Process drives the carsim binary over stdin/stdout. The binary keeps a
// single track, so calls are serialized on one worker process.
type Process struct {
	cfg     config.Simulator
	timeout time.Duration
	backoff utils.BackoffStrategy
	ports   *utils.RandSource
	grace   time.Duration
	log     *slog.Logger

	mu       sync.Mutex
	worker   *worker
	restarts int
	closed   bool
}

// worker is one running simulator process
type worker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *io.PipeReader
	lines  chan string
	exited chan struct{}
	quit   chan struct{}
	port   int
	// broken marks a worker whose pipe is out of step with the protocol
	broken bool
}

// StartProcess launches the simulator binary and returns once it is running.
func StartProcess(cfg config.Simulator) (*Process, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("%w: simulator.binary is required in process mode", config.ErrInvalidConfig)
	}
	timeout, err := cfg.GetTimeout()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid simulator.timeout: %v", config.ErrInvalidConfig, err)
	}

	p := &Process{
		cfg:     cfg,
		timeout: timeout,
		backoff: utils.BackoffFromConfig(cfg.RestartBackoff, cfg.RestartBaseMs, 0),
		ports:   utils.NewRandSource(0),
		grace:   shutdownGrace,
		log:     logger.With("component", "simulator"),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.ensureWorker(); err != nil {
		return nil, err
	}
	return p, nil
}

// Port returns the port of the running simulator's browser view
func (p *Process) Port() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.worker == nil {
		return 0
	}
	return p.worker.port
}

// Restarts returns how many times the simulator process has been restarted
func (p *Process) Restarts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restarts
}

// Simulate races a single car.
func (p *Process) Simulate(ctx context.Context, design genome.CarDesign) (models.Outcome, error) {
	outcomes, err := p.Race(ctx, []genome.CarDesign{design})
	if err != nil {
		return models.Outcome{}, err
	}
	return outcomes[0], nil
}

// Race sends a RACE command and reads one "distance time" line per car.
func (p *Process) Race(ctx context.Context, designs []genome.CarDesign) ([]models.Outcome, error) {
	if err := checkRaceSize(len(designs)); err != nil {
		return nil, err
	}

	var outcomes []models.Outcome
	err := p.call(ctx, func(w *worker) error {
		if err := p.send(w, FormatRace(designs)); err != nil {
			return err
		}
		result := make([]models.Outcome, len(designs))
		for i := range designs {
			line, err := p.recv(ctx, w)
			if err != nil {
				if i > 0 {
					w.broken = true
				}
				return err
			}
			distance, raceTime, err := ParseScoreLine(line)
			if err != nil {
				w.broken = true
				return fmt.Errorf("car %d: %w", i, err)
			}
			result[i] = ToOutcome(distance, raceTime, p.cfg.TrackLength)
		}
		outcomes = result
		return nil
	})
	return outcomes, err
}

// Trajectory sends a SIM command and reads the trajectory samples.
func (p *Process) Trajectory(ctx context.Context, design genome.CarDesign) ([]State, error) {
	var states []State
	err := p.call(ctx, func(w *worker) error {
		if err := p.send(w, FormatSim(design)); err != nil {
			return err
		}
		head, err := p.recv(ctx, w)
		if err != nil {
			return err
		}
		count, err := strconv.Atoi(head)
		if err != nil || count < 0 {
			w.broken = true
			return fmt.Errorf("invalid trajectory length %q", head)
		}
		result := make([]State, count)
		for i := range result {
			line, err := p.recv(ctx, w)
			if err != nil {
				w.broken = true
				return err
			}
			if result[i], err = ParseStateLine(line); err != nil {
				w.broken = true
				return fmt.Errorf("trajectory sample %d: %w", i, err)
			}
		}
		states = result
		return nil
	})
	return states, err
}

// NewTrack asks the simulator to generate a new track.
func (p *Process) NewTrack(ctx context.Context) error {
	return p.call(ctx, func(w *worker) error {
		if err := p.send(w, cmdTrack); err != nil {
			return err
		}
		reply, err := p.recv(ctx, w)
		if err != nil {
			return err
		}
		if reply != replyDone {
			return fmt.Errorf("%w: got %q", ErrTrackGeneration, reply)
		}
		return nil
	})
}

// Close stops the simulator process. Further calls return ErrClosed.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.worker != nil {
		p.stopWorker(p.worker)
		p.worker = nil
	}
	return nil
}

// call runs fn against the worker, restarting the process and retrying when
// the pipe breaks, the process dies or a reply times out.
func (p *Process) call(ctx context.Context, fn func(w *worker) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		w, err := p.ensureWorker()
		if err != nil {
			return err
		}

		err = fn(w)
		if err == nil {
			return nil
		}

		var simErr *SimulationError
		if errors.As(err, &simErr) {
			return err
		}
		if errors.Is(err, ErrTrackGeneration) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			// A reply may still be in flight; start clean next time.
			w.broken = true
			return ctxErr
		}

		p.log.Warn("simulator call failed", "attempt", attempt+1, "port", w.port, "error", err)
		p.stopWorker(w)
		p.worker = nil

		if attempt >= p.cfg.MaxRestarts {
			return fmt.Errorf("%w after %d restarts: %v", ErrUnavailable, attempt, err)
		}
		if err := utils.Sleep(ctx, p.backoff.NextDelay(attempt+1)); err != nil {
			return err
		}
		p.restarts++
	}
}

// ensureWorker returns a healthy worker, starting one if needed. Callers hold p.mu.
func (p *Process) ensureWorker() (*worker, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if p.worker != nil && p.worker.broken {
		p.stopWorker(p.worker)
		p.worker = nil
	}
	if p.worker != nil {
		return p.worker, nil
	}

	w, err := p.startWorker()
	if err != nil {
		return nil, err
	}
	p.worker = w
	p.log.Info("simulator started", "port", w.port, "url", fmt.Sprintf("http://localhost:%d/", w.port))
	return w, nil
}

func (p *Process) startWorker() (*worker, error) {
	port := p.cfg.Port
	if port <= 0 {
		port = p.ports.IntRange(minPort, maxPort)
	}

	args := append(append([]string{}, p.cfg.Args...), strconv.Itoa(port))
	cmd := exec.Command(p.cfg.Binary, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open simulator stdin: %w", err)
	}
	stdoutR, stdoutW := io.Pipe()
	cmd.Stdout = stdoutW

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start %s: %v", ErrUnavailable, p.cfg.Binary, err)
	}

	w := &worker{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdoutR,
		lines:  make(chan string),
		exited: make(chan struct{}),
		quit:   make(chan struct{}),
		port:   port,
	}

	go func() {
		err := cmd.Wait()
		stdoutW.Close()
		if err != nil {
			p.log.Debug("simulator process exited", "port", port, "error", err)
		}
		close(w.exited)
	}()

	go func() {
		defer close(w.lines)
		scanner := bufio.NewScanner(stdoutR)
		for scanner.Scan() {
			select {
			case w.lines <- scanner.Text():
			case <-w.quit:
				return
			}
		}
	}()

	return w, nil
}

// stopWorker closes stdin, waits for the process to exit and kills it after the grace period
func (p *Process) stopWorker(w *worker) {
	close(w.quit)
	// Unread output is dropped so the process never blocks on a full pipe.
	w.stdout.Close()
	w.stdin.Close()

	select {
	case <-w.exited:
	case <-time.After(p.grace):
		p.log.Warn("simulator did not exit, killing it", "port", w.port)
		_ = w.cmd.Process.Kill()
		<-w.exited
	}
}

func (p *Process) send(w *worker, cmd string) error {
	if _, err := io.WriteString(w.stdin, cmd); err != nil {
		return fmt.Errorf("failed to write to simulator: %w", err)
	}
	return nil
}

// recv reads one reply line, turning ERR lines into *SimulationError
func (p *Process) recv(ctx context.Context, w *worker) (string, error) {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case line, ok := <-w.lines:
		if !ok {
			return "", errWorkerExited
		}
		return checkReply(line)
	case <-timer.C:
		return "", errReplyTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
