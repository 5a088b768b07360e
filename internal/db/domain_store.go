package db

import (
	"context"

	"gorm.io/gorm"

	"github.com/thebtf/domainforge/pkg/models"
)

// DomainStore persists deployed domain records. The backing tables themselves
// are created by the deployer; this store only tracks the name/table/schema
// registrations.
type DomainStore struct {
	db *gorm.DB
}

// NewDomainStore creates a new domain store.
func NewDomainStore(store *Store) *DomainStore {
	return &DomainStore{db: store.DB}
}

// CreateTx inserts a deployed domain inside an existing transaction, so the
// registration commits or rolls back together with the table DDL.
func (s *DomainStore) CreateTx(tx *gorm.DB, d *models.DeployedDomain) (*models.DeployedDomain, error) {
	row := &DeployedDomain{
		Name:            d.Name,
		DomainTableName: d.TableName,
		Schema:          models.JSONFieldList(d.Schema),
	}
	if err := tx.Create(row).Error; err != nil {
		return nil, err
	}
	return toModelDomain(row), nil
}

// GetByName retrieves a deployed domain by name. Returns (nil, nil) when not
// found.
func (s *DomainStore) GetByName(ctx context.Context, name string) (*models.DeployedDomain, error) {
	var d DeployedDomain
	err := s.db.WithContext(ctx).First(&d, "name = ?", name).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelDomain(&d), nil
}

// List retrieves all deployed domains ordered by deployment time.
func (s *DomainStore) List(ctx context.Context) ([]*models.DeployedDomain, error) {
	var rows []DeployedDomain
	if err := s.db.WithContext(ctx).Order("deployed_at_epoch ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*models.DeployedDomain, len(rows))
	for i := range rows {
		result[i] = toModelDomain(&rows[i])
	}
	return result, nil
}
