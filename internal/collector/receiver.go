package collector

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ernie/pickup-coordinator/internal/logging"
)

// Receiver listens for relayed log datagrams and decodes them into
// Envelopes. It holds no match state: decoded envelopes are handed to the
// pipeline through a bounded channel and overflow is dropped rather than
// ever blocking the socket read loop, since stalling the read risks
// OS-level datagram loss for every match at once.
type Receiver struct {
	addr  string
	queue int
	log   *slog.Logger

	conn *net.UDPConn
	out  chan Envelope
	errs chan error

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewReceiver creates a receiver for the given UDP listen address.
func NewReceiver(addr string, queue int, log *slog.Logger) *Receiver {
	return &Receiver{
		addr:  addr,
		queue: queue,
		log:   log.With(logging.FieldComponent, "receiver"),
		out:   make(chan Envelope, queue),
		errs:  make(chan error, 1),
		done:  make(chan struct{}),
	}
}

// Start binds the socket and begins the read loop.
func (r *Receiver) Start() error {
	udpAddr, err := net.ResolveUDPAddr("udp", r.addr)
	if err != nil {
		return fmt.Errorf("resolving listen address %s: %w", r.addr, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("binding log relay socket: %w", err)
	}
	r.conn = conn

	r.wg.Add(1)
	go r.readLoop()
	return nil
}

// Envelopes returns the channel of decoded envelopes. It is closed when the
// read loop exits.
func (r *Receiver) Envelopes() <-chan Envelope {
	return r.out
}

// Errors reports a fatal socket fault. The receiver stops after sending one.
func (r *Receiver) Errors() <-chan error {
	return r.errs
}

// LocalAddr returns the bound socket address (useful when listening on an
// ephemeral port).
func (r *Receiver) LocalAddr() net.Addr {
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Close releases the socket and waits for the read loop to exit. Safe to
// call more than once.
func (r *Receiver) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		if r.conn != nil {
			r.conn.Close()
		}
	})
	r.wg.Wait()
}

func (r *Receiver) readLoop() {
	defer r.wg.Done()
	defer close(r.out)

	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-r.done:
				// Close() released the socket.
			default:
				if !errors.Is(err, net.ErrClosed) {
					select {
					case r.errs <- fmt.Errorf("reading log relay socket: %w", err):
					default:
					}
				}
			}
			return
		}

		packetsReceived.Inc()

		env, err := decodeEnvelope(addr, buf[:n], time.Now().UTC())
		if err != nil {
			packetsDropped.WithLabelValues(dropBadFrame).Inc()
			r.log.Debug("dropping undecodable packet", logging.FieldRemote, addr.String(), logging.FieldError, err)
			continue
		}

		select {
		case r.out <- env:
		default:
			packetsDropped.WithLabelValues(dropOverflow).Inc()
		}
	}
}
