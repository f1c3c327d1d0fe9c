package model

import "time"

// DeliveryAudit is one row in the append-only delivery status trail. A row
// with Applied=false records a suppressed regression attempt: the carrier
// reported a status lower on the lattice than what we already hold.
type DeliveryAudit struct {
	ID            int64         `json:"id"`
	MessageID     int64         `json:"message_id"`
	OldStatus     MessageStatus `json:"old_status"`
	NewStatus     MessageStatus `json:"new_status"`
	CarrierStatus string        `json:"carrier_status"`
	Applied       bool          `json:"applied"`
	Note          string        `json:"note,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}
