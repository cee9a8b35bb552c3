package collector

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"time"
)

// Source dedicated servers relay log lines one per datagram, using the same
// four-byte header as their query protocol. A packet carrying the server's
// configured log secret marks it with 'S'; the secret runs up to the 'L' that
// introduces the log text. Packets without a secret use 'R' instead.
const (
	relayHeader  = "\xff\xff\xff\xff"
	packetSecret = 'S'
	packetPlain  = 'R'
	secretEnd    = 'L'

	maxDatagram = 4096
)

var (
	errBadHeader   = errors.New("missing relay header")
	errNoSecret    = errors.New("packet carries no secret")
	errBadSecret   = errors.New("malformed secret field")
	errEmptyLine   = errors.New("empty log line")
	errUnknownType = errors.New("unknown packet type")
)

// Envelope is one decoded relay datagram. It lives from packet receipt until
// classification and is never retained.
type Envelope struct {
	RemoteAddr *net.UDPAddr
	Secret     string
	Payload    string
	ReceivedAt time.Time
}

// decodeEnvelope parses a raw datagram into an Envelope. Any framing problem
// is an error; callers drop such packets silently (expected background noise
// from scanners and misconfigured servers).
func decodeEnvelope(addr *net.UDPAddr, data []byte, now time.Time) (Envelope, error) {
	if len(data) < len(relayHeader)+1 || string(data[:len(relayHeader)]) != relayHeader {
		return Envelope{}, errBadHeader
	}
	rest := data[len(relayHeader):]

	switch rest[0] {
	case packetSecret:
		rest = rest[1:]
	case packetPlain:
		// No secret means no way to attribute the line to a match.
		return Envelope{}, errNoSecret
	default:
		return Envelope{}, errUnknownType
	}

	end := bytes.IndexByte(rest, secretEnd)
	if end <= 0 {
		return Envelope{}, errBadSecret
	}
	secret := string(rest[:end])

	payload := strings.Trim(string(rest[end+1:]), " \n\x00")
	if payload == "" {
		return Envelope{}, errEmptyLine
	}

	return Envelope{
		RemoteAddr: addr,
		Secret:     secret,
		Payload:    payload,
		ReceivedAt: now,
	}, nil
}
