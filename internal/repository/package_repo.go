package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"invoice-integrity-backend/internal/models"
)

type PackageRepository struct {
	db *gorm.DB
}

func NewPackageRepository(db *gorm.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

func (r *PackageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ServicePackage, error) {
	var pkg models.ServicePackage
	if err := r.db.WithContext(ctx).First(&pkg, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *PackageRepository) GetAll(ctx context.Context) ([]models.ServicePackage, error) {
	var pkgs []models.ServicePackage
	err := r.db.WithContext(ctx).Order("name ASC").Find(&pkgs).Error
	return pkgs, err
}
