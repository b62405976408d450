package api

import (
	"github.com/spacewatch/backend/internal/poller"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot" // full account status list, sent on connect
	MsgEvent    MessageType = "event"    // poll cycle / account event
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Accounts []poller.AccountStatus `json:"accounts"`
}
