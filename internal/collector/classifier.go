package collector

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"sync/atomic"

	"github.com/ernie/pickup-coordinator/internal/domain"
	"github.com/ernie/pickup-coordinator/internal/logging"
)

// Regular expressions for classifying log lines. Every line starts with a
// timestamp prefix that carries no event information; it is stripped before
// the rules run. Player identity rules capture the bracketed network id,
// never the display name, which may contain arbitrary text including '<'.
var (
	// Matches the common timestamp prefix: 01/26/2020 - 20:40:20:
	timestampRegex = regexp.MustCompile(`^\d{2}/\d{2}/\d{4} - \d{2}:\d{2}:\d{2}:\s*`)

	roundStartRegex = regexp.MustCompile(`^World triggered "Round_Start"`)
	gameOverRegex   = regexp.MustCompile(`^World triggered "Game_Over" reason "(.+)"`)
	logsURLRegex    = regexp.MustCompile(`The log is available here: (.+)\. Type !log`)
	demoURLRegex    = regexp.MustCompile(`^\[demos\.tf\]: STV available at: (\S+)`)
	connectedRegex  = regexp.MustCompile(`^"(.+)<(\d+)><(\[.[^\]]+\])><([^>]*)>" connected, address "([^"]+)"`)
	joinedTeamRegex = regexp.MustCompile(`^"(.+)<(\d+)><(\[.[^\]]+\])><([^>]*)>" joined team "([^"]+)"`)
	disconnectRegex = regexp.MustCompile(`^"(.+)<(\d+)><(\[.[^\]]+\])><([^>]*)>" disconnected \(reason "(.+)"\)`)
	finalScoreRegex = regexp.MustCompile(`^Team "([^"]+)" final score "([^"]+)" with "([^"]+)" players`)
	scoreRegex      = regexp.MustCompile(`^Team "([^"]+)" current score "([^"]+)" with "([^"]+)" players`)
)

// rule pairs a recognizer with its payload extractor. A matched rule whose
// extractor fails drops the line with a diagnostic; later rules are not
// tried either way.
type rule struct {
	re      *regexp.Regexp
	extract func(m []string) (domain.Payload, error)
}

// rules is ordered: the first matching recognizer wins. The final-score rule
// sits ahead of the current-score rule; their literal substrings already
// make them mutually exclusive, but the order keeps the more specific shape
// from ever being shadowed.
var rules = []rule{
	{roundStartRegex, func([]string) (domain.Payload, error) {
		return domain.MatchStarted{}, nil
	}},
	{gameOverRegex, func([]string) (domain.Payload, error) {
		return domain.MatchEnded{}, nil
	}},
	{logsURLRegex, func(m []string) (domain.Payload, error) {
		return domain.LogsUploaded{LogsURL: m[1]}, nil
	}},
	{demoURLRegex, func(m []string) (domain.Payload, error) {
		return domain.DemoUploaded{DemoURL: m[1]}, nil
	}},
	{connectedRegex, func(m []string) (domain.Payload, error) {
		return domain.PlayerConnected{NetworkID: m[3], Address: m[5]}, nil
	}},
	{joinedTeamRegex, func(m []string) (domain.Payload, error) {
		team, err := domain.ParseTeam(m[5])
		if err != nil {
			return nil, err
		}
		return domain.PlayerJoinedTeam{NetworkID: m[3], Team: team}, nil
	}},
	{disconnectRegex, func(m []string) (domain.Payload, error) {
		return domain.PlayerDisconnected{NetworkID: m[3], Reason: m[5]}, nil
	}},
	{finalScoreRegex, func(m []string) (domain.Payload, error) {
		return extractScore(m, true)
	}},
	{scoreRegex, func(m []string) (domain.Payload, error) {
		return extractScore(m, false)
	}},
}

func extractScore(m []string, final bool) (domain.Payload, error) {
	team, err := domain.ParseTeam(m[1])
	if err != nil {
		return nil, err
	}
	score, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, fmt.Errorf("unparseable score %q", m[2])
	}
	players, err := strconv.Atoi(m[3])
	if err != nil {
		return nil, fmt.Errorf("unparseable player count %q", m[3])
	}
	return domain.ScoreReported{Team: team, Score: score, PlayerCount: players, Final: final}, nil
}

// Classifier turns raw log lines into typed event payloads. Classification
// is pure: the same line always yields the same payload. The only state is
// a diagnostic counter for matched-but-malformed lines.
type Classifier struct {
	log       *slog.Logger
	malformed atomic.Uint64
}

// NewClassifier creates a classifier.
func NewClassifier(log *slog.Logger) *Classifier {
	return &Classifier{log: log.With(logging.FieldComponent, "classifier")}
}

// Classify tries each rule in order against the line (minus its timestamp
// prefix) and returns the extracted payload of the first match. A line no
// rule recognizes is simply not meaningful to this system: ok is false and
// nothing is recorded. A recognized line whose fields fail to parse is
// dropped with a diagnostic instead.
func (c *Classifier) Classify(line string) (domain.Payload, bool) {
	content := line
	if loc := timestampRegex.FindStringIndex(line); loc != nil {
		content = line[loc[1]:]
	}

	for _, r := range rules {
		m := r.re.FindStringSubmatch(content)
		if m == nil {
			continue
		}
		payload, err := r.extract(m)
		if err != nil {
			c.malformed.Add(1)
			packetsDropped.WithLabelValues(dropExtractError).Inc()
			c.log.Warn("dropping malformed log line", logging.FieldError, err, "line", content)
			return nil, false
		}
		eventsExtracted.WithLabelValues(string(payload.Kind())).Inc()
		return payload, true
	}

	packetsDropped.WithLabelValues(dropUnmatched).Inc()
	return nil, false
}

// Malformed reports how many recognized lines were dropped because a
// required field failed to parse.
func (c *Classifier) Malformed() uint64 {
	return c.malformed.Load()
}
