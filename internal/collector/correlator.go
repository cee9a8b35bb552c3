package collector

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ernie/pickup-coordinator/internal/logging"
	"github.com/ernie/pickup-coordinator/internal/registry"
)

// Correlator attributes envelopes to in-flight matches by resolving their
// log secret through the match registry. Results are not cached: the
// registry drops a secret the moment its match ends, and a stale positive
// here would misattribute events to a finished match. A miss only costs a
// dropped line, which is safe.
type Correlator struct {
	reg registry.Lookup
	log *slog.Logger
}

// NewCorrelator creates a correlator backed by the given registry.
func NewCorrelator(reg registry.Lookup, log *slog.Logger) *Correlator {
	return &Correlator{reg: reg, log: log.With(logging.FieldComponent, "correlator")}
}

// Resolve returns the match id for a secret. Unknown secrets are routine
// background noise (scanners, misconfigured servers) and resolve to ok=false
// without any error surfaced; registry transport failures also drop the
// envelope but are worth a warning.
func (c *Correlator) Resolve(ctx context.Context, secret string) (string, bool) {
	matchID, err := c.reg.LookupMatchBySecret(ctx, secret)
	if errors.Is(err, registry.ErrNotFound) {
		packetsDropped.WithLabelValues(dropUnknownSecret).Inc()
		c.log.Debug("secret resolves to no active match")
		return "", false
	}
	if err != nil {
		packetsDropped.WithLabelValues(dropRegistryError).Inc()
		c.log.Warn("match registry lookup failed", logging.FieldError, err)
		return "", false
	}
	return matchID, true
}
