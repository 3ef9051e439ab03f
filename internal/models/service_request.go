// internal/models/service_request.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusAccepted   RequestStatus = "accepted"
	StatusInProgress RequestStatus = "in-progress"
	StatusCompleted  RequestStatus = "completed"
	StatusCancelled  RequestStatus = "cancelled"
)

// AllStatuses is the display order used by lists and dashboards.
var AllStatuses = []RequestStatus{
	StatusPending,
	StatusAccepted,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
}

func (s RequestStatus) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

type Location struct {
	Address string `gorm:"type:text" json:"address"`
	City    string `gorm:"type:varchar(120)" json:"city"`
	Suburb  string `gorm:"type:varchar(120)" json:"suburb,omitempty"`
}

func (l Location) IsZero() bool {
	return l.Address == "" && l.City == "" && l.Suburb == ""
}

type ServiceRequest struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Title       string    `gorm:"not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`

	// Catalog selection at submission time
	ServiceID     string `gorm:"type:varchar(60);index" json:"service_id,omitempty"`
	Quantity      int    `gorm:"default:1" json:"quantity"`
	EstimatedCost int64  `json:"estimated_cost"` // in cents

	ClientID    uuid.UUID `gorm:"type:uuid;index;not null" json:"client_id"`
	ClientName  string    `json:"client_name"`
	ClientEmail string    `json:"client_email"`
	ClientPhone string    `gorm:"type:varchar(30)" json:"client_phone"`

	Location Location `gorm:"embedded;embeddedPrefix:location_" json:"location"`

	WorkerID   *uuid.UUID `gorm:"type:uuid;index" json:"worker_id,omitempty"`
	WorkerName string     `json:"worker_name,omitempty"`

	Status    RequestStatus               `gorm:"type:varchar(20);not null;default:pending;index" json:"status"`
	PhotoURLs datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"photo_urls"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AssignedTo reports whether the request's worker is id.
func (r *ServiceRequest) AssignedTo(id uuid.UUID) bool {
	return r.WorkerID != nil && *r.WorkerID == id
}
