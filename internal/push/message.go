// Package push implements the notification channel between the lobby service
// and its clients: topic names, the JSON envelope, the websocket hub that fans
// messages out to subscribers, and the dialer clients use to subscribe.
package push

import (
	"encoding/json"
	"strings"
)

// TopicPlayers carries the full presence list on every change.
const TopicPlayers = "/topic/players"

const (
	invitationsPrefix = "/topic/invitations/"
	gamePrefix        = "/topic/game/"
)

// Message types.
const (
	TypePlayers        = "players"
	TypeInvitation     = "invitation"
	TypeMatchReady     = "match-ready"
	TypeMove           = "move"
	TypeMatchAbandoned = "match-abandoned"
)

// InvitationsTopic is the per-recipient invitation topic for nickname.
func InvitationsTopic(nickname string) string { return invitationsPrefix + nickname }

// GameTopic carries match-ready, move and match-abandoned notifications for
// nickname.
func GameTopic(nickname string) string { return gamePrefix + nickname }

// IsInvitationsTopic reports whether topic is some player's invitation topic.
func IsInvitationsTopic(topic string) bool { return strings.HasPrefix(topic, invitationsPrefix) }

// IsGameTopic reports whether topic is some player's game topic.
func IsGameTopic(topic string) bool { return strings.HasPrefix(topic, gamePrefix) }

// Message is the websocket envelope format.
type Message struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewMessage marshals payload into an envelope.
func NewMessage(topic, typ string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Topic: topic, Type: typ, Payload: data}, nil
}
