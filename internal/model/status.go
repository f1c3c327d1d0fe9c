package model

import "strings"

// MessageStatus is the local coarse projection of the raw carrier status.
type MessageStatus string

const (
	MessageStatusQueued      MessageStatus = "queued"
	MessageStatusSending     MessageStatus = "sending"
	MessageStatusSent        MessageStatus = "sent"
	MessageStatusDelivered   MessageStatus = "delivered"
	MessageStatusFailed      MessageStatus = "failed"
	MessageStatusUndelivered MessageStatus = "undelivered"
	MessageStatusCancelled   MessageStatus = "cancelled"
)

// statusRank orders statuses along the delivery lattice:
// queued < sending < sent < terminal. All terminal states share a rank.
var statusRank = map[MessageStatus]int{
	MessageStatusQueued:      1,
	MessageStatusSending:     2,
	MessageStatusSent:        3,
	MessageStatusDelivered:   4,
	MessageStatusFailed:      4,
	MessageStatusUndelivered: 4,
	MessageStatusCancelled:   4,
}

// MapCarrierStatus translates a raw carrier status string to the local enum.
// Unknown vocabulary maps to queued: the carrier may grow new pre-send states
// and treating them as pending keeps the reconciler picking them up.
func MapCarrierStatus(raw string) MessageStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "accepted", "scheduled", "receiving", "received":
		return MessageStatusQueued
	case "sending":
		return MessageStatusSending
	case "sent":
		return MessageStatusSent
	case "delivered", "read":
		return MessageStatusDelivered
	case "failed":
		return MessageStatusFailed
	case "undelivered":
		return MessageStatusUndelivered
	case "canceled", "cancelled":
		return MessageStatusCancelled
	default:
		return MessageStatusQueued
	}
}

// IsTerminalStatus reports whether no further transition is expected.
func IsTerminalStatus(s MessageStatus) bool {
	return statusRank[s] == 4
}

// IsStatusUpgrade reports whether moving from old to new advances the message
// along the lattice. Equal statuses are not an upgrade (callers skip the
// write), and a terminal status is absorbing: nothing upgrades out of it.
func IsStatusUpgrade(old, new MessageStatus) bool {
	if old == new {
		return false
	}
	if IsTerminalStatus(old) {
		return false
	}
	oldRank, ok := statusRank[old]
	if !ok {
		// Unknown local status behaves like queued.
		oldRank = 1
	}
	newRank, ok := statusRank[new]
	if !ok {
		return false
	}
	return newRank > oldRank
}

// IsFailureStatus reports whether the status counts against a customer's
// delivery failure counter.
func IsFailureStatus(s MessageStatus) bool {
	switch s {
	case MessageStatusFailed, MessageStatusUndelivered, MessageStatusCancelled:
		return true
	}
	return false
}
