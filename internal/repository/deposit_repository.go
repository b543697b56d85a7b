package repository

import (
	"context"

	"zap-backend/internal/models"

	"gorm.io/gorm"
)

// DepositRepository defines the interface for deposit history data access
type DepositRepository interface {
	Create(ctx context.Context, record *models.DepositRecord) error
	GetByID(ctx context.Context, id string) (*models.DepositRecord, error)
	FindBySession(ctx context.Context, sessionID string) ([]*models.DepositRecord, error)
	FindByVault(ctx context.Context, vaultID string, page, limit int) ([]*models.DepositRecord, int64, error)
}

// depositRepository implements DepositRepository
type depositRepository struct {
	db *gorm.DB
}

// NewDepositRepository creates a new DepositRepository instance. A nil db
// yields a no-op repository so the pipeline works without persistence.
func NewDepositRepository(db *gorm.DB) DepositRepository {
	if db == nil {
		return noopDepositRepository{}
	}
	return &depositRepository{db: db}
}

func (r *depositRepository) Create(ctx context.Context, record *models.DepositRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *depositRepository) GetByID(ctx context.Context, id string) (*models.DepositRecord, error) {
	var record models.DepositRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *depositRepository) FindBySession(ctx context.Context, sessionID string) ([]*models.DepositRecord, error) {
	var records []*models.DepositRecord
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&records).Error
	return records, err
}

func (r *depositRepository) FindByVault(ctx context.Context, vaultID string, page, limit int) ([]*models.DepositRecord, int64, error) {
	var records []*models.DepositRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&models.DepositRecord{}).Where("vault_id = ?", vaultID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&records).Error
	return records, total, err
}

// noopDepositRepository drops writes and returns empty reads.
type noopDepositRepository struct{}

func (noopDepositRepository) Create(context.Context, *models.DepositRecord) error { return nil }
func (noopDepositRepository) GetByID(context.Context, string) (*models.DepositRecord, error) {
	return nil, gorm.ErrRecordNotFound
}
func (noopDepositRepository) FindBySession(context.Context, string) ([]*models.DepositRecord, error) {
	return nil, nil
}
func (noopDepositRepository) FindByVault(context.Context, string, int, int) ([]*models.DepositRecord, int64, error) {
	return nil, 0, nil
}
