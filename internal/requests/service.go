// Package requests owns service requests: creation with photos, the status
// state machine, role-based visibility and the live feed.
package requests

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/midrand-elite/meg-services/internal/catalog"
	"github.com/midrand-elite/meg-services/internal/metrics"
	"github.com/midrand-elite/meg-services/internal/models"
	"github.com/midrand-elite/meg-services/internal/storage"
	"github.com/midrand-elite/meg-services/internal/validation"
)

const UnknownWorkerName = "Unknown Worker"

var (
	ErrUnauthenticated = errors.New("not signed in")
	ErrForbidden       = errors.New("not allowed")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrPhotoUpload     = errors.New("photo upload failed")
	ErrUnknownService  = errors.New("unknown service type")
	ErrWorkerRequired  = errors.New("worker id required")
)

// ValidationError carries per-field messages for a rejected form.
type ValidationError struct {
	Fields validation.FieldErrors
}

func (e *ValidationError) Error() string { return "invalid request fields" }

// UserNotifier pushes an event to every live connection of a user.
type UserNotifier interface {
	SendToUser(userID uuid.UUID, data interface{})
}

// ChangePublisher tells other instances that requests changed.
type ChangePublisher interface {
	PublishRequestChanged(ctx context.Context, id uuid.UUID) error
}

// NewRequest is a client's submission.
type NewRequest struct {
	validation.NewRequest
	Title   string
	Details string
	Suburb  string
}

type FailedPhoto struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

type AddResult struct {
	Request      *models.ServiceRequest `json:"request"`
	FailedPhotos []FailedPhoto          `json:"failed_photos"`
}

type Event struct {
	Type      string               `json:"type"`
	RequestID uuid.UUID            `json:"request_id"`
	Status    models.RequestStatus `json:"status"`
	Badge     Badge                `json:"badge"`
}

type Options struct {
	Bucket            storage.Bucket
	UploadConcurrency int
	MaxPhotoBytes     int64
	Events            UserNotifier
	Publisher         ChangePublisher
}

type Service struct {
	repo   Repository
	feed   *Feed
	bucket storage.Bucket
	upload storage.BatchOptions
	events UserNotifier
	pub    ChangePublisher
	log    *zap.Logger
}

func NewService(repo Repository, opts Options, log *zap.Logger) *Service {
	s := &Service{
		repo:   repo,
		bucket: opts.Bucket,
		upload: storage.BatchOptions{Limit: opts.UploadConcurrency, MaxBytes: opts.MaxPhotoBytes},
		events: opts.Events,
		pub:    opts.Publisher,
		log:    log,
	}
	s.feed = NewFeed(s, log)
	return s
}

func (s *Service) Feed() *Feed { return s.feed }

// SetPublisher wires cross-instance change propagation after construction.
func (s *Service) SetPublisher(p ChangePublisher) { s.pub = p }

// Add uploads photos, then writes a pending request holding the URLs that
// made it. Failed photos are reported in the result. If photos were given
// and none uploaded, nothing is written.
func (s *Service) Add(ctx context.Context, actor *models.User, in NewRequest, photos []storage.File) (*AddResult, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}

	if errs := in.Validate(); !errs.Empty() {
		return nil, &ValidationError{Fields: errs}
	}

	svc, ok := catalog.Find(in.ServiceID)
	if !ok {
		return nil, ErrUnknownService
	}
	qty, _ := validation.ParseQuantity(in.Quantity)

	urls := make([]string, 0, len(photos))
	failed := []FailedPhoto{}
	if len(photos) > 0 {
		if s.bucket == nil {
			return nil, fmt.Errorf("%w: no bucket configured", ErrPhotoUpload)
		}
		prefix := "requests/" + actor.ID.String()
		for _, r := range storage.UploadBatch(ctx, s.bucket, prefix, photos, s.upload) {
			if r.OK() {
				urls = append(urls, r.URL)
				continue
			}
			s.log.Warn("photo upload failed",
				zap.String("client_id", actor.ID.String()),
				zap.Int("index", r.Index),
				zap.String("name", r.Name),
				zap.Error(r.Err),
			)
			failed = append(failed, FailedPhoto{Index: r.Index, Name: r.Name, Error: r.Err.Error()})
		}
		if len(urls) == 0 {
			return &AddResult{FailedPhotos: failed}, ErrPhotoUpload
		}
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = svc.Name
	}

	req := &models.ServiceRequest{
		Title:         title,
		Description:   catalog.ComposeDescription(strings.TrimSpace(in.Details), svc, qty),
		ServiceID:     svc.ID,
		Quantity:      qty,
		EstimatedCost: catalog.EstimateCost(svc, qty),
		ClientID:      actor.ID,
		ClientName:    actor.FirstName,
		ClientEmail:   actor.Email,
		ClientPhone:   validation.NormalizePhone(in.Phone),
		Location: models.Location{
			Address: strings.TrimSpace(in.Address),
			City:    strings.TrimSpace(in.City),
			Suburb:  strings.TrimSpace(in.Suburb),
		},
		Status:    models.StatusPending,
		PhotoURLs: datatypes.JSONSlice[string](urls),
	}

	if err := s.repo.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	metrics.RequestsCreated.Inc()
	s.log.Info("request created",
		zap.String("id", req.ID.String()),
		zap.String("client_id", actor.ID.String()),
		zap.Int("photos", len(urls)),
		zap.Int("failed_photos", len(failed)),
	)
	s.changed(ctx, req)

	return &AddResult{Request: req, FailedPhotos: failed}, nil
}

// UpdateStatus moves request id to status. When workerID is set the worker
// fields are written too, named after the acting user.
func (s *Service) UpdateStatus(ctx context.Context, actor *models.User, id uuid.UUID, status models.RequestStatus, workerID *uuid.UUID) (*models.ServiceRequest, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Visible(actor, cur) {
		return nil, ErrNotFound
	}
	if err := CheckTransition(cur.Status, status); err != nil {
		return nil, err
	}
	if err := authorize(actor, cur, status, workerID); err != nil {
		return nil, err
	}

	if status == models.StatusAccepted && workerID == nil {
		if !actor.IsWorker() {
			return nil, ErrWorkerRequired
		}
		workerID = &actor.ID
	}

	patch := Patch{Status: status}
	if workerID != nil {
		patch.WorkerID = workerID
		patch.WorkerName = strings.TrimSpace(actor.FirstName)
		if patch.WorkerName == "" {
			patch.WorkerName = UnknownWorkerName
		}
	}

	updated, err := s.repo.Transition(ctx, id, cur.Status, patch)
	if err != nil {
		return nil, err
	}

	metrics.StatusTransitions.WithLabelValues(string(status)).Inc()
	s.log.Info("request status changed",
		zap.String("id", id.String()),
		zap.String("from", string(cur.Status)),
		zap.String("to", string(status)),
		zap.String("actor", actor.ID.String()),
	)
	s.changed(ctx, updated)

	return updated, nil
}

func authorize(actor *models.User, cur *models.ServiceRequest, to models.RequestStatus, workerID *uuid.UUID) error {
	if actor.IsAdmin() {
		return nil
	}
	if workerID != nil && (!actor.IsWorker() || *workerID != actor.ID) {
		return ErrForbidden
	}

	switch to {
	case models.StatusAccepted:
		if !actor.IsWorker() {
			return ErrForbidden
		}
	case models.StatusInProgress, models.StatusCompleted:
		if !actor.IsWorker() || !cur.AssignedTo(actor.ID) {
			return ErrForbidden
		}
	case models.StatusCancelled:
		if actor.Role != models.RoleClient || cur.ClientID != actor.ID {
			return ErrForbidden
		}
	}
	return nil
}

// Accept assigns a pending request to the calling worker.
func (s *Service) Accept(ctx context.Context, actor *models.User, id uuid.UUID) (*models.ServiceRequest, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if !actor.IsWorker() {
		return nil, ErrForbidden
	}
	return s.UpdateStatus(ctx, actor, id, models.StatusAccepted, &actor.ID)
}

func (s *Service) Cancel(ctx context.Context, actor *models.User, id uuid.UUID) (*models.ServiceRequest, error) {
	return s.UpdateStatus(ctx, actor, id, models.StatusCancelled, nil)
}

// Get returns a request actor may see. Requests outside the actor's view
// read as not found.
func (s *Service) Get(ctx context.Context, actor *models.User, id uuid.UUID) (*models.ServiceRequest, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Visible(actor, req) {
		return nil, ErrNotFound
	}
	return req, nil
}

// List returns the requests visible to actor, newest first. Clients are
// filtered in the query, everyone else after it.
func (s *Service) List(ctx context.Context, actor *models.User) ([]models.ServiceRequest, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if actor.Role != models.RoleWorker && actor.Role != models.RoleAdmin {
		return s.repo.ListByClient(ctx, actor.ID)
	}
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(actor, all), nil
}

// All is the unfiltered list, for the admin dashboard.
func (s *Service) All(ctx context.Context) ([]models.ServiceRequest, error) {
	return s.repo.List(ctx)
}

func (s *Service) changed(ctx context.Context, r *models.ServiceRequest) {
	s.feed.Notify()

	if s.pub != nil {
		if err := s.pub.PublishRequestChanged(ctx, r.ID); err != nil {
			s.log.Warn("request change broadcast failed", zap.Error(err))
		}
	}

	if s.events != nil {
		ev := Event{Type: "request_updated", RequestID: r.ID, Status: r.Status, Badge: BadgeFor(r.Status)}
		s.events.SendToUser(r.ClientID, ev)
		if r.WorkerID != nil {
			s.events.SendToUser(*r.WorkerID, ev)
		}
	}
}
