package model

import (
	"time"
)

// RequestStatus is the customer-visible lifecycle state of a service request.
type RequestStatus string

const (
	StatusOpen      RequestStatus = "open"
	StatusAssigned  RequestStatus = "assigned"
	StatusCompleted RequestStatus = "completed"
	StatusCancelled RequestStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are permitted.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// HasHelper reports whether a request in this status must carry an assigned helper.
func (s RequestStatus) HasHelper() bool {
	return s == StatusAssigned || s == StatusCompleted
}

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusAssigned, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// BroadcastStatus is the matching-process substate, independent of RequestStatus.
type BroadcastStatus string

const (
	BroadcastIdle         BroadcastStatus = "idle"
	BroadcastBroadcasting BroadcastStatus = "broadcasting"
	BroadcastAccepted     BroadcastStatus = "accepted"
	BroadcastExpired      BroadcastStatus = "expired"
)

func (b BroadcastStatus) Valid() bool {
	switch b {
	case BroadcastIdle, BroadcastBroadcasting, BroadcastAccepted, BroadcastExpired:
		return true
	}
	return false
}

// ServiceRequest mirrors the service_requests columns this service reads or writes.
type ServiceRequest struct {
	ID               string          `db:"id" json:"id"`
	CustomerID       string          `db:"customer_id" json:"customer_id"`
	Status           RequestStatus   `db:"status" json:"status"`
	BroadcastStatus  BroadcastStatus `db:"broadcast_status" json:"broadcast_status"`
	AssignedHelperID *string         `db:"assigned_helper_id" json:"assigned_helper_id"`
	AssignedAt       *time.Time      `db:"assigned_at" json:"assigned_at,omitempty"`
	JobCompletedAt   *time.Time      `db:"job_completed_at" json:"job_completed_at,omitempty"`
	CancelledAt      *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
	Version          int64           `db:"version" json:"version"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// Snapshot projects the request down to the three polled fields.
func (r *ServiceRequest) Snapshot() StatusSnapshot {
	return StatusSnapshot{
		Status:           r.Status,
		BroadcastStatus:  r.BroadcastStatus,
		AssignedHelperID: r.AssignedHelperID,
	}
}

// StatusSnapshot is the poll payload. It must stay at exactly these three
// fields: clients poll it every few seconds.
type StatusSnapshot struct {
	Status           RequestStatus   `db:"status" json:"status"`
	BroadcastStatus  BroadcastStatus `db:"broadcast_status" json:"broadcast_status"`
	AssignedHelperID *string         `db:"assigned_helper_id" json:"assigned_helper_id"`
}

// Equal compares two snapshots by value.
func (s StatusSnapshot) Equal(o StatusSnapshot) bool {
	if s.Status != o.Status || s.BroadcastStatus != o.BroadcastStatus {
		return false
	}
	if s.AssignedHelperID == nil || o.AssignedHelperID == nil {
		return s.AssignedHelperID == nil && o.AssignedHelperID == nil
	}
	return *s.AssignedHelperID == *o.AssignedHelperID
}

// AssignRequest is the body of POST /requests/{id}/assign and the matcher accept callback.
type AssignRequest struct {
	HelperID string `json:"helper_id" validate:"required,uuid"`
}

// CompleteRequestBody is the body of POST /requests/{id}/complete. HelperID is
// only needed when completing a request that was never assigned.
type CompleteRequestBody struct {
	HelperID string `json:"helper_id" validate:"omitempty,uuid"`
}

// TransitionResult is returned by every successful lifecycle action.
type TransitionResult struct {
	Success bool  `json:"success"`
	Version int64 `json:"version"`
}
