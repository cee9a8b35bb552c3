package domain

import (
	"fmt"
	"time"
)

// EventKind identifies one shape of match event. The set is closed: adding a
// kind means adding a classifier rule, never changing existing consumers.
type EventKind string

const (
	KindMatchStarted       EventKind = "match_started"
	KindMatchEnded         EventKind = "match_ended"
	KindLogsUploaded       EventKind = "logs_uploaded"
	KindDemoUploaded       EventKind = "demo_uploaded"
	KindPlayerConnected    EventKind = "player_connected"
	KindPlayerJoinedTeam   EventKind = "player_joined_team"
	KindPlayerDisconnected EventKind = "player_disconnected"
	KindScoreReported      EventKind = "score_reported"
)

// Kinds lists every event kind.
func Kinds() []EventKind {
	return []EventKind{
		KindMatchStarted,
		KindMatchEnded,
		KindLogsUploaded,
		KindDemoUploaded,
		KindPlayerConnected,
		KindPlayerJoinedTeam,
		KindPlayerDisconnected,
		KindScoreReported,
	}
}

// Team is one of the two sides of a match.
type Team string

const (
	TeamRed  Team = "red"
	TeamBlue Team = "blue"
)

// ParseTeam maps a team name as it appears in server logs ("Red"/"Blue") to a
// Team value.
func ParseTeam(s string) (Team, error) {
	switch s {
	case "Red":
		return TeamRed, nil
	case "Blue":
		return TeamBlue, nil
	default:
		return "", fmt.Errorf("unknown team %q", s)
	}
}

// Payload is the kind-specific portion of a MatchEvent, produced by the
// classifier before any match id is known.
type Payload interface {
	Kind() EventKind
}

// MatchEvent is a classified log line attributed to a match. MatchID is
// always resolved through the registry lookup, never parsed from log text.
type MatchEvent struct {
	Kind       EventKind `json:"event"`
	MatchID    string    `json:"match_id"`
	ReceivedAt time.Time `json:"received_at"`
	Data       Payload   `json:"data,omitempty"`
}

// MatchStarted is emitted when the first round of a match begins.
type MatchStarted struct{}

func (MatchStarted) Kind() EventKind { return KindMatchStarted }

// MatchEnded is emitted when the server reports the game is over.
type MatchEnded struct{}

func (MatchEnded) Kind() EventKind { return KindMatchEnded }

// LogsUploaded is emitted when the server announces the uploaded log URL.
type LogsUploaded struct {
	LogsURL string `json:"logs_url"`
}

func (LogsUploaded) Kind() EventKind { return KindLogsUploaded }

// DemoUploaded is emitted when the server announces the uploaded STV demo URL.
type DemoUploaded struct {
	DemoURL string `json:"demo_url"`
}

func (DemoUploaded) Kind() EventKind { return KindDemoUploaded }

// PlayerConnected is emitted when a player connects to the game server.
// NetworkID is the bracketed per-player identifier from the log line; the
// free-form display name is not a reliable key and is not carried.
type PlayerConnected struct {
	NetworkID string `json:"network_id"`
	Address   string `json:"address"`
}

func (PlayerConnected) Kind() EventKind { return KindPlayerConnected }

// PlayerJoinedTeam is emitted when a player joins one of the two sides.
type PlayerJoinedTeam struct {
	NetworkID string `json:"network_id"`
	Team      Team   `json:"team"`
}

func (PlayerJoinedTeam) Kind() EventKind { return KindPlayerJoinedTeam }

// PlayerDisconnected is emitted when a player leaves the game server.
type PlayerDisconnected struct {
	NetworkID string `json:"network_id"`
	Reason    string `json:"reason"`
}

func (PlayerDisconnected) Kind() EventKind { return KindPlayerDisconnected }

// ScoreReported is emitted for both interim and final team score lines.
type ScoreReported struct {
	Team        Team `json:"team"`
	Score       int  `json:"score"`
	PlayerCount int  `json:"player_count"`
	Final       bool `json:"final"`
}

func (ScoreReported) Kind() EventKind { return KindScoreReported }
