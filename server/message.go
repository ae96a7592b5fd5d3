package server

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/rawewhat/quera/crud"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message types exchanged over WebSocket.
const (
	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"
	MsgSnapshot    = "snapshot"
	MsgError       = "error"
)

// ClientMessage is a message from client to server.
type ClientMessage struct {
	Type       string `json:"type"`
	Collection string `json:"collection,omitempty"`
	Filter     string `json:"filter,omitempty"`
}

// ServerMessage is a message from server to client.
type ServerMessage struct {
	Type       string        `json:"type"`
	Collection string        `json:"collection,omitempty"`
	Filter     string        `json:"filter,omitempty"`
	Records    []crud.Record `json:"records"`
	Message    string        `json:"message,omitempty"`
}

// Encode serializes a ServerMessage to JSON bytes.
func (m ServerMessage) Encode() []byte {
	b, _ := json.Marshal(m)
	return b
}
