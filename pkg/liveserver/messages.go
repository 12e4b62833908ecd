package liveserver

import (
	"time"

	"tradesim/internal/trading/account"
	"tradesim/internal/trading/position"
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// MessageType constants
const (
	TypeSnapshot       = "snapshot"
	TypePositionClosed = "position_closed"
	TypeRunFinished    = "run_finished"
)

// SnapshotData is the ledger and statistics of one instrument.
type SnapshotData struct {
	Symbol  string                  `json:"symbol"`
	Time    time.Time               `json:"time"`
	Ledger  account.Snapshot        `json:"ledger"`
	Tracker account.TrackerSnapshot `json:"tracker"`
}

func NewMessage(msgType string, data interface{}) Message {
	return Message{Type: msgType, Data: data}
}

func NewSnapshotMessage(symbol string, ledger account.Snapshot, tracker account.TrackerSnapshot) Message {
	return NewMessage(TypeSnapshot, SnapshotData{
		Symbol:  symbol,
		Time:    time.Now().UTC(),
		Ledger:  ledger,
		Tracker: tracker,
	})
}

func NewPositionClosedMessage(rec position.Record) Message {
	return NewMessage(TypePositionClosed, rec)
}
