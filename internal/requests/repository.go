package requests

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/midrand-elite/meg-services/internal/models"
)

var (
	ErrNotFound       = errors.New("request not found")
	ErrStatusConflict = errors.New("request status changed concurrently")
)

// Patch is the set of fields a status transition writes.
type Patch struct {
	Status     models.RequestStatus
	WorkerID   *uuid.UUID
	WorkerName string
}

type Repository interface {
	Create(ctx context.Context, r *models.ServiceRequest) error
	Get(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error)
	List(ctx context.Context) ([]models.ServiceRequest, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]models.ServiceRequest, error)
	// Transition applies p only while the stored status still equals from.
	Transition(ctx context.Context, id uuid.UUID, from models.RequestStatus, p Patch) (*models.ServiceRequest, error)
}

type GormRepository struct {
	DB *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{DB: db}
}

func (r *GormRepository) Create(ctx context.Context, req *models.ServiceRequest) error {
	return r.DB.WithContext(ctx).Create(req).Error
}

func (r *GormRepository) Get(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	var req models.ServiceRequest
	if err := r.DB.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *GormRepository) List(ctx context.Context) ([]models.ServiceRequest, error) {
	var list []models.ServiceRequest
	err := r.DB.WithContext(ctx).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}

func (r *GormRepository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]models.ServiceRequest, error) {
	var list []models.ServiceRequest
	err := r.DB.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}

func (r *GormRepository) Transition(ctx context.Context, id uuid.UUID, from models.RequestStatus, p Patch) (*models.ServiceRequest, error) {
	updates := map[string]interface{}{
		"status":     p.Status,
		"updated_at": time.Now(),
	}
	if p.WorkerID != nil {
		updates["worker_id"] = *p.WorkerID
		updates["worker_name"] = p.WorkerName
	}

	res := r.DB.WithContext(ctx).
		Model(&models.ServiceRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}

	if res.RowsAffected == 0 {
		var n int64
		if err := r.DB.WithContext(ctx).Model(&models.ServiceRequest{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrStatusConflict
	}

	return r.Get(ctx, id)
}
