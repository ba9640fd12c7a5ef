package tui

import "github.com/agentry-dev/agentry/internal/domain"

// MsgSnapshot carries a pushed state snapshot into the update loop.
type MsgSnapshot struct {
	Snapshot *domain.Snapshot
}

// MsgStreamClosed reports that the daemon subscription ended.
type MsgStreamClosed struct {
	Err error
}

// MsgAttachFinished reports that an attach subprocess returned control
// to the dashboard.
type MsgAttachFinished struct {
	Err error
}

// MsgFocusReported acknowledges a focus report to the daemon; only
// failures carry information.
type MsgFocusReported struct {
	Err error
}
