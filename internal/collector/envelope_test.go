package collector

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// framePacket builds a relay datagram the way a game server would send it.
func framePacket(secret, line string) []byte {
	return []byte(relayHeader + string(packetSecret) + secret + string(secretEnd) + line + "\n\x00")
}

func TestDecodeEnvelope(t *testing.T) {
	remote := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 27015}
	now := time.Date(2020, 1, 26, 20, 40, 20, 0, time.UTC)
	line := `01/26/2020 - 20:40:20: World triggered "Round_Start"`

	env, err := decodeEnvelope(remote, framePacket("SOME_SECRET", line), now)
	require.NoError(t, err)
	assert.Equal(t, "SOME_SECRET", env.Secret)
	assert.Equal(t, line, env.Payload)
	assert.Equal(t, remote, env.RemoteAddr)
	assert.Equal(t, now, env.ReceivedAt)
}

func TestDecodeEnvelopeTrimsPayload(t *testing.T) {
	remote := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 27015}
	data := []byte(relayHeader + "Sabc123L  some log text \n\x00")

	env, err := decodeEnvelope(remote, data, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "abc123", env.Secret)
	assert.Equal(t, "some log text", env.Payload)
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty datagram", nil, errBadHeader},
		{"truncated header", []byte("\xff\xff\xff"), errBadHeader},
		{"wrong header", []byte("nope" + "SsecretLline"), errBadHeader},
		{"no secret variant", []byte(relayHeader + "R01/26/2020 - 20:40:20: line"), errNoSecret},
		{"unknown packet type", []byte(relayHeader + "Xwhatever"), errUnknownType},
		{"secret never terminated", []byte(relayHeader + "Ssecret-without-delimiter"), errBadSecret},
		{"empty secret", []byte(relayHeader + "SLline"), errBadSecret},
		{"empty payload", []byte(relayHeader + "SsecretL \n\x00"), errEmptyLine},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeEnvelope(nil, tt.data, time.Now())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
