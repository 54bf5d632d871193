package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgStatusFetched MsgKind = iota
	MsgHistoryFetched
	MsgTriggered
	MsgCancelRequested
	MsgProgressUpdate
	MsgProgressClosed
	MsgPoll
)

type statusResult struct {
	op  *models.SyncOperation
	err error
}

type historyResult struct {
	records []*models.SyncRecord
	err     error
}

type triggerResult struct {
	op  *models.SyncOperation
	err error
}

type cancelResult struct {
	id  string
	err error
}

// statusFetchedMsg is the constructor for [MsgStatusFetched]
func statusFetchedMsg(op *models.SyncOperation, err error) Msg {
	return Msg{kind: MsgStatusFetched, data: statusResult{op, err}}
}

// historyFetchedMsg is the constructor for [MsgHistoryFetched]
func historyFetchedMsg(records []*models.SyncRecord, err error) Msg {
	return Msg{kind: MsgHistoryFetched, data: historyResult{records, err}}
}

// triggeredMsg is the constructor for [MsgTriggered]
func triggeredMsg(op *models.SyncOperation, err error) Msg {
	return Msg{kind: MsgTriggered, data: triggerResult{op, err}}
}

// cancelRequestedMsg is the constructor for [MsgCancelRequested]
func cancelRequestedMsg(id string, err error) Msg {
	return Msg{kind: MsgCancelRequested, data: cancelResult{id, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

func progressClosedMsg() Msg {
	return Msg{kind: MsgProgressClosed}
}

func pollMsg() Msg {
	return Msg{kind: MsgPoll}
}
