package model

import (
	"time"
)

// Proof is the persisted record of one uploaded proof and its decision history
type Proof struct {
	Token        string     `json:"token"`
	OriginalName string     `json:"original_name"`
	StoredName   string     `json:"stored_name"`
	CreatedAt    time.Time  `json:"created_utc"`
	Status       string     `json:"status"` // pending, approved, rejected
	Responses    []Response `json:"responses"`
}

// Response is one recorded approve/reject decision
type Response struct {
	Timestamp   time.Time `json:"ts_utc"`
	Decision    string    `json:"decision"`
	Comment     string    `json:"comment"`
	ViewerName  string    `json:"viewer_name"`
	ViewerEmail string    `json:"viewer_email"`
	IP          string    `json:"ip"`
}

// Proof status constants
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// IsDecision reports whether s is a decision a viewer may submit
func IsDecision(s string) bool {
	return s == StatusApproved || s == StatusRejected
}

// Record appends a decision and moves the proof to the decided status.
// Later decisions overwrite the status of earlier ones.
func (p *Proof) Record(r Response) {
	p.Responses = append(p.Responses, r)
	p.Status = r.Decision
}

// LastResponse returns the most recent decision, or nil if none was recorded
func (p *Proof) LastResponse() *Response {
	if len(p.Responses) == 0 {
		return nil
	}
	return &p.Responses[len(p.Responses)-1]
}
