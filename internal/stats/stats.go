// Package stats computes the admin dashboard numbers from the request list.
package stats

import (
	"time"

	"github.com/google/uuid"

	"github.com/midrand-elite/meg-services/internal/catalog"
	"github.com/midrand-elite/meg-services/internal/models"
)

type WorkerOfWeek struct {
	WorkerID    uuid.UUID `json:"worker_id"`
	Name        string    `json:"name"`
	Completions int       `json:"completions"`
}

type Dashboard struct {
	Total              int                          `json:"total"`
	ByStatus           map[models.RequestStatus]int `json:"by_status"`
	InProgress         int                          `json:"in_progress"`
	AwaitingAssignment int                          `json:"awaiting_assignment"`
	CompletedThisMonth int                          `json:"completed_this_month"`
	EarningsThisMonth  int64                        `json:"earnings_this_month"`
	EarningsLabel      string                       `json:"earnings_label"`
	WorkerOfTheWeek    *WorkerOfWeek                `json:"worker_of_the_week"`
}

// Compute builds the dashboard as of now. A request counts as completed at
// its last update.
func Compute(list []models.ServiceRequest, now time.Time) Dashboard {
	d := Dashboard{ByStatus: make(map[models.RequestStatus]int, len(models.AllStatuses))}
	for _, s := range models.AllStatuses {
		d.ByStatus[s] = 0
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	weekStart := now.AddDate(0, 0, -7)

	weekly := map[uuid.UUID]*WorkerOfWeek{}

	for i := range list {
		r := &list[i]
		d.Total++
		d.ByStatus[r.Status]++

		if r.Status != models.StatusCompleted {
			continue
		}

		done := r.UpdatedAt.In(now.Location())
		if !done.Before(monthStart) && !done.After(now) {
			d.CompletedThisMonth++
			d.EarningsThisMonth += r.EstimatedCost
		}

		if r.WorkerID != nil && done.After(weekStart) && !done.After(now) {
			w, ok := weekly[*r.WorkerID]
			if !ok {
				w = &WorkerOfWeek{WorkerID: *r.WorkerID, Name: r.WorkerName}
				weekly[*r.WorkerID] = w
			}
			w.Completions++
		}
	}

	d.InProgress = d.ByStatus[models.StatusInProgress]
	d.AwaitingAssignment = d.ByStatus[models.StatusPending]
	d.EarningsLabel = catalog.FormatRand(d.EarningsThisMonth)

	for _, w := range weekly {
		best := d.WorkerOfTheWeek
		if best == nil ||
			w.Completions > best.Completions ||
			(w.Completions == best.Completions && w.Name < best.Name) {
			d.WorkerOfTheWeek = w
		}
	}

	return d
}
