package model

import (
	"errors"
	"time"
)

type MessageDirection string

const (
	DirectionOutbound MessageDirection = "outbound"
	DirectionInbound  MessageDirection = "inbound"
)

type Message struct {
	ID            int64            `json:"id"`
	Direction     MessageDirection `json:"direction"`
	CustomerID    *int64           `json:"customer_id,omitempty"`
	Mobile        string           `json:"mobile"`
	Body          string           `json:"body"`
	Status        MessageStatus    `json:"status"`
	CarrierStatus string           `json:"carrier_status,omitempty"`
	CarrierSID    string           `json:"carrier_sid,omitempty"`
	ErrorCode     *int             `json:"error_code,omitempty"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	SentAt        *time.Time       `json:"sent_at,omitempty"`
	DeliveredAt   *time.Time       `json:"delivered_at,omitempty"`
	FailedAt      *time.Time       `json:"failed_at,omitempty"`
}

// MessageCreateRequest is the input for submitting an outbound message.
type MessageCreateRequest struct {
	CustomerID int64
	Mobile     string
	Body       string
}

func (p MessageCreateRequest) Validate() error {
	if p.CustomerID == 0 {
		return errors.New("customer_id is required")
	}
	if p.Mobile == "" {
		return errors.New("mobile is required")
	}
	if p.Body == "" {
		return errors.New("body is required")
	}
	return nil
}

// StatusUpdate carries the reconciled state for a single message. Terminal
// statuses fill the matching timestamp and, for failures, the carrier error.
type StatusUpdate struct {
	Status        MessageStatus
	CarrierStatus string
	SentAt        *time.Time
	DeliveredAt   *time.Time
	FailedAt      *time.Time
	ErrorCode     *int
	ErrorMessage  string
}

// MessageFilter controls List queries.
type MessageFilter struct {
	CustomerID *int64
	Statuses   []MessageStatus
	Mobile     *string
	From       *time.Time
	To         *time.Time
	Limit      int // default 50
	Offset     int
	Desc       bool // order by created_at
}
