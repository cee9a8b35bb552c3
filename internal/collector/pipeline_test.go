package collector

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/pickup-coordinator/internal/domain"
	"github.com/ernie/pickup-coordinator/internal/eventbus"
	"github.com/ernie/pickup-coordinator/internal/registry"
)

type stubRegistry struct {
	secrets map[string]string
	err     error
}

func (s *stubRegistry) LookupMatchBySecret(_ context.Context, secret string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	id, ok := s.secrets[secret]
	if !ok {
		return "", registry.ErrNotFound
	}
	return id, nil
}

func startTestPipeline(t *testing.T, reg registry.Lookup) (*Pipeline, *eventbus.Bus, net.Conn) {
	t.Helper()

	bus := eventbus.New(testLogger())
	t.Cleanup(bus.Close)

	p := NewPipeline(Config{ListenAddr: "127.0.0.1:0", QueueSize: 16}, reg, bus, testLogger())
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Stop)

	conn, err := net.Dial("udp", p.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return p, bus, conn
}

func TestPipelinePublishesCorrelatedEvents(t *testing.T) {
	reg := &stubRegistry{secrets: map[string]string{"SOME_SECRET": "match-42"}}
	_, bus, conn := startTestPipeline(t, reg)

	events := make(chan domain.MatchEvent, 16)
	sub := bus.SubscribeAll(func(ev domain.MatchEvent) { events <- ev })
	defer sub.Unsubscribe()

	_, err := conn.Write(framePacket("SOME_SECRET", `01/26/2020 - 20:40:20: World triggered "Round_Start"`))
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, domain.KindMatchStarted, ev.Kind)
		assert.Equal(t, "match-42", ev.MatchID)
		assert.Equal(t, domain.MatchStarted{}, ev.Data)
		assert.False(t, ev.ReceivedAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	// One datagram, one event.
	select {
	case ev := <-events:
		t.Fatalf("unexpected extra event: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPipelineDropsUnknownSecret(t *testing.T) {
	reg := &stubRegistry{secrets: map[string]string{"SOME_SECRET": "match-42"}}
	_, bus, conn := startTestPipeline(t, reg)

	events := make(chan domain.MatchEvent, 16)
	sub := bus.SubscribeAll(func(ev domain.MatchEvent) { events <- ev })
	defer sub.Unsubscribe()

	_, err := conn.Write(framePacket("WRONG_SECRET", `01/26/2020 - 20:40:20: World triggered "Round_Start"`))
	require.NoError(t, err)

	select {
	case ev := <-events:
		t.Fatalf("event published for unknown secret: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestPipelineDropsUnclassifiableLines(t *testing.T) {
	reg := &stubRegistry{secrets: map[string]string{"SOME_SECRET": "match-42"}}
	_, bus, conn := startTestPipeline(t, reg)

	events := make(chan domain.MatchEvent, 16)
	sub := bus.SubscribeAll(func(ev domain.MatchEvent) { events <- ev })
	defer sub.Unsubscribe()

	_, err := conn.Write(framePacket("SOME_SECRET", `01/26/2020 - 20:04:01: "maly<366><[U:1:114143419]><Blue>" say "hello"`))
	require.NoError(t, err)

	// Chat lines are not events; a meaningful line afterwards still flows.
	_, err = conn.Write(framePacket("SOME_SECRET", `01/26/2020 - 20:38:49: Team "Blue" final score "2" with "3" players`))
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, domain.KindScoreReported, ev.Kind)
		assert.Equal(t, domain.ScoreReported{Team: domain.TeamBlue, Score: 2, PlayerCount: 3, Final: true}, ev.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for score event")
	}
}

func TestPipelineLifecycle(t *testing.T) {
	reg := &stubRegistry{}
	bus := eventbus.New(testLogger())
	defer bus.Close()

	p := NewPipeline(Config{ListenAddr: "127.0.0.1:0"}, reg, bus, testLogger())
	assert.Equal(t, StateStopped, p.State())

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, StateRunning, p.State())

	// Starting a running pipeline is a no-op.
	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, StateRunning, p.State())

	p.Stop()
	assert.Equal(t, StateStopped, p.State())

	// Stopping again is a no-op.
	p.Stop()
	assert.Equal(t, StateStopped, p.State())

	// The pipeline is restartable after a full stop.
	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, StateRunning, p.State())
	p.Stop()
	assert.Equal(t, StateStopped, p.State())
}

func TestPipelineHaltsWhenRestartsDisabled(t *testing.T) {
	bus := eventbus.New(testLogger())
	defer bus.Close()

	p := NewPipeline(Config{
		ListenAddr:      "127.0.0.1:0",
		QueueSize:       16,
		RestartAttempts: -1,
		RestartBackoff:  time.Millisecond,
	}, &stubRegistry{}, bus, testLogger())
	require.NoError(t, p.Start(context.Background()))

	// Fault the live socket: its read loop wakes with a deadline error.
	require.NoError(t, p.currentReceiver().conn.SetReadDeadline(time.Now()))

	require.Eventually(t, func() bool {
		return p.State() == StateStopped
	}, 2*time.Second, 10*time.Millisecond, "halted pipeline must report stopped")
	assert.Nil(t, p.Addr())

	// A halted pipeline can be started again.
	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, StateRunning, p.State())
	p.Stop()
}

// A faulted read loop both buffers its fault report and closes the envelope
// channel; which one the run loop observes first is scheduler-dependent. The
// outcome must not depend on that ordering, so run the fault several times.
func TestPipelineFaultOutcomeIsOrderIndependent(t *testing.T) {
	bus := eventbus.New(testLogger())
	defer bus.Close()

	for i := 0; i < 10; i++ {
		p := NewPipeline(Config{
			ListenAddr:      "127.0.0.1:0",
			QueueSize:       16,
			RestartAttempts: -1,
			RestartBackoff:  time.Millisecond,
		}, &stubRegistry{}, bus, testLogger())
		require.NoError(t, p.Start(context.Background()))

		require.NoError(t, p.currentReceiver().conn.SetReadDeadline(time.Now()))
		require.Eventually(t, func() bool {
			return p.State() == StateStopped
		}, 2*time.Second, 5*time.Millisecond, "iteration %d: fault must always halt", i)
	}
}

func TestPipelineRestartsReceiverAfterFault(t *testing.T) {
	reg := &stubRegistry{secrets: map[string]string{"SOME_SECRET": "match-42"}}
	bus := eventbus.New(testLogger())
	defer bus.Close()

	events := make(chan domain.MatchEvent, 16)
	sub := bus.SubscribeAll(func(ev domain.MatchEvent) { events <- ev })
	defer sub.Unsubscribe()

	p := NewPipeline(Config{
		ListenAddr:      "127.0.0.1:0",
		QueueSize:       16,
		RestartAttempts: 1,
		RestartBackoff:  time.Millisecond,
	}, reg, bus, testLogger())
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	faulted := p.currentReceiver()
	require.NoError(t, faulted.conn.SetReadDeadline(time.Now()))

	require.Eventually(t, func() bool {
		return p.currentReceiver() != faulted
	}, 2*time.Second, 10*time.Millisecond, "receiver should be replaced after a fault")
	require.Equal(t, StateRunning, p.State())

	// The replacement socket keeps processing.
	conn, err := net.Dial("udp", p.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(framePacket("SOME_SECRET", `01/26/2020 - 20:40:20: World triggered "Round_Start"`))
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, domain.KindMatchStarted, ev.Kind)
		assert.Equal(t, "match-42", ev.MatchID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event after restart")
	}
}

func TestPipelineStateString(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
}
