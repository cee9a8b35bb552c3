package collector

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ernie/pickup-coordinator/internal/domain"
	"github.com/ernie/pickup-coordinator/internal/eventbus"
	"github.com/ernie/pickup-coordinator/internal/logging"
	"github.com/ernie/pickup-coordinator/internal/registry"
)

// State is the pipeline lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Config holds pipeline settings.
type Config struct {
	// ListenAddr is the UDP address the receiver binds to.
	ListenAddr string
	// QueueSize bounds the receiver's envelope channel.
	QueueSize int
	// RestartAttempts bounds how many times a faulted receiver is
	// reopened before the pipeline gives up and stops. A negative value
	// disables restarts: the first fault halts the pipeline.
	RestartAttempts int
	// RestartBackoff is the delay before each restart attempt.
	RestartBackoff time.Duration
}

// Pipeline wires receiver -> correlator -> classifier -> bus and owns their
// shared lifecycle. Each datagram flows through independently; concurrent
// matches are distinguished purely by the resolved match id, so no per-match
// locking exists. Its collaborators are passed in explicitly at construction.
type Pipeline struct {
	cfg Config
	bus *eventbus.Bus
	log *slog.Logger

	correlator *Correlator
	classifier *Classifier

	mu     sync.Mutex
	state  State
	recv   *Receiver
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPipeline creates a pipeline publishing to bus, resolving secrets via reg.
func NewPipeline(cfg Config, reg registry.Lookup, bus *eventbus.Bus, log *slog.Logger) *Pipeline {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = 2 * time.Second
	}
	return &Pipeline{
		cfg:        cfg,
		bus:        bus,
		log:        log.With(logging.FieldComponent, "pipeline"),
		correlator: NewCorrelator(reg, log),
		classifier: NewClassifier(log),
	}
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Addr returns the receiver's bound address, or nil when not running.
func (p *Pipeline) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.recv == nil {
		return nil
	}
	return p.recv.LocalAddr()
}

// Classifier exposes the pipeline's classifier diagnostics.
func (p *Pipeline) Classifier() *Classifier {
	return p.classifier
}

// Start binds the receiver and begins processing. Starting an already
// running pipeline is a no-op.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateStopped {
		return nil
	}
	p.state = StateStarting

	recv := NewReceiver(p.cfg.ListenAddr, p.cfg.QueueSize, p.log)
	if err := recv.Start(); err != nil {
		p.state = StateStopped
		return err
	}
	p.recv = recv

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go p.run(runCtx)

	p.state = StateRunning
	p.log.Info("log relay pipeline started", "addr", recv.LocalAddr().String())
	return nil
}

// Stop halts the pipeline immediately: the socket closes, in-flight packets
// are abandoned best-effort, and the run loop is awaited. Stopping a stopped
// pipeline is a no-op.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return
	}
	p.state = StateStopping
	cancel := p.cancel
	recv := p.recv
	p.mu.Unlock()

	cancel()
	recv.Close()
	p.wg.Wait()

	p.mu.Lock()
	p.recv = nil
	p.state = StateStopped
	p.mu.Unlock()
	p.log.Info("log relay pipeline stopped")
}

func (p *Pipeline) run(ctx context.Context) {
	defer p.wg.Done()

	restarts := 0
	for {
		recv := p.currentReceiver()
		if recv == nil {
			return
		}

		select {
		case <-ctx.Done():
			return

		case env, ok := <-recv.Envelopes():
			if !ok {
				// The read loop exited. A faulted loop closes the
				// envelope channel too, so check for a buffered fault
				// report before concluding Stop is in progress.
				select {
				case err := <-recv.Errors():
					if !p.recoverReceiver(ctx, recv, err, &restarts) {
						return
					}
				default:
					return
				}
				continue
			}
			p.process(ctx, env)

		case err := <-recv.Errors():
			if !p.recoverReceiver(ctx, recv, err, &restarts) {
				return
			}
		}
	}
}

// recoverReceiver retires a faulted receiver and rebinds within the restart
// budget. A false return means the pipeline is done: the state has already
// been settled, by selfHalt here or by a concurrent Stop.
func (p *Pipeline) recoverReceiver(ctx context.Context, recv *Receiver, err error, restarts *int) bool {
	p.log.Error("receiver fault", logging.FieldError, err)
	recv.Close()
	if *restarts >= p.cfg.RestartAttempts {
		p.log.Error("receiver restart budget exhausted, pipeline halting",
			"attempts", *restarts)
		p.selfHalt()
		return false
	}
	*restarts++
	if !p.restartReceiver(ctx) {
		p.selfHalt()
		return false
	}
	return true
}

// selfHalt moves the pipeline to Stopped after the run loop gives up on a
// faulted receiver, so State reports the truth and Start works again. When a
// concurrent Stop owns the transition this is a no-op.
func (p *Pipeline) selfHalt() {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return
	}
	p.state = StateStopped
	p.recv = nil
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.log.Info("log relay pipeline stopped")
}

// restartReceiver reopens the socket after a backoff. Returns false when the
// pipeline is shutting down or the bind failed.
func (p *Pipeline) restartReceiver(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(p.cfg.RestartBackoff):
	}

	recv := NewReceiver(p.cfg.ListenAddr, p.cfg.QueueSize, p.log)
	if err := recv.Start(); err != nil {
		p.log.Error("receiver restart failed", logging.FieldError, err)
		return false
	}

	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		recv.Close()
		return false
	}
	p.recv = recv
	p.mu.Unlock()

	receiverRestarts.Inc()
	p.log.Info("receiver restarted", "addr", recv.LocalAddr().String())
	return true
}

func (p *Pipeline) currentReceiver() *Receiver {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recv
}

// process runs one envelope through correlation and classification and
// publishes the resulting event. Every failure short of a socket fault ends
// here as a silent (counted) drop; nothing can halt the pipeline.
func (p *Pipeline) process(ctx context.Context, env Envelope) {
	matchID, ok := p.correlator.Resolve(ctx, env.Secret)
	if !ok {
		return
	}

	payload, ok := p.classifier.Classify(env.Payload)
	if !ok {
		return
	}

	p.bus.Publish(domain.MatchEvent{
		Kind:       payload.Kind(),
		MatchID:    matchID,
		ReceivedAt: env.ReceivedAt,
		Data:       payload,
	})
	p.log.Debug("event published",
		logging.FieldMatchID, matchID, logging.FieldKind, payload.Kind())
}
