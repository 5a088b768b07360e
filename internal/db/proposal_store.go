package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/thebtf/domainforge/pkg/models"
)

// ProposalStore persists schema proposals and guards their status lifecycle.
// It is pure persistence plus transition guards; it never synthesizes,
// clusters, or deploys.
type ProposalStore struct {
	db *gorm.DB
}

// NewProposalStore creates a new proposal store.
func NewProposalStore(store *Store) *ProposalStore {
	return &ProposalStore{db: store.DB}
}

// Create stores a new proposal in pending state. The domain name must be
// unique among non-rejected proposals and the proposal must declare at least
// one required field.
func (s *ProposalStore) Create(ctx context.Context, p *models.SchemaProposal) (*models.SchemaProposal, error) {
	if p.DomainName == "" {
		return nil, fmt.Errorf("domain name must not be empty")
	}
	if len(p.RequiredFields()) == 0 {
		return nil, fmt.Errorf("proposal %q must declare at least one required field", p.DomainName)
	}

	var created *SchemaProposal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&SchemaProposal{}).
			Where("domain_name = ? AND status != ?", p.DomainName, models.ProposalRejected).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %q has a non-rejected proposal", ErrDuplicateDomain, p.DomainName)
		}

		created = &SchemaProposal{
			DomainName:    p.DomainName,
			Description:   p.Description,
			Fields:        models.JSONFieldList(p.Fields),
			SourceTurnIDs: models.JSONStringArray(p.SourceTurnIDs),
			Status:        models.ProposalPending,
		}
		return tx.Create(created).Error
	})
	if err != nil {
		return nil, err
	}
	return toModelProposal(created), nil
}

// GetByID retrieves a proposal by id. Returns (nil, nil) when not found.
func (s *ProposalStore) GetByID(ctx context.Context, id int64) (*models.SchemaProposal, error) {
	var p SchemaProposal
	err := s.db.WithContext(ctx).First(&p, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelProposal(&p), nil
}

// List retrieves proposals most recent first, optionally filtered by status.
func (s *ProposalStore) List(ctx context.Context, status models.ProposalStatus) ([]*models.SchemaProposal, error) {
	var rows []SchemaProposal
	query := s.db.WithContext(ctx).Order("created_at_epoch DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*models.SchemaProposal, len(rows))
	for i := range rows {
		result[i] = toModelProposal(&rows[i])
	}
	return result, nil
}

// Advance moves a proposal to the next status under the lifecycle guards:
// approve/reject only from pending, deploy only from approved. Any other
// requested transition fails with a TransitionError naming the current
// status, leaving the row unchanged.
func (s *ProposalStore) Advance(ctx context.Context, id int64, next models.ProposalStatus) (*models.SchemaProposal, error) {
	var updated *SchemaProposal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return advanceTx(tx, id, next, &updated)
	})
	if err != nil {
		return nil, err
	}
	return toModelProposal(updated), nil
}

// AdvanceTx is the transaction-scoped variant used by the deployer so the
// status change commits atomically with table creation and registration.
func (s *ProposalStore) AdvanceTx(tx *gorm.DB, id int64, next models.ProposalStatus) (*models.SchemaProposal, error) {
	var updated *SchemaProposal
	if err := advanceTx(tx, id, next, &updated); err != nil {
		return nil, err
	}
	return toModelProposal(updated), nil
}

func advanceTx(tx *gorm.DB, id int64, next models.ProposalStatus, out **SchemaProposal) error {
	var p SchemaProposal
	if err := tx.First(&p, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("proposal %d not found", id)
		}
		return err
	}

	if !p.Status.CanAdvanceTo(next) {
		return &TransitionError{ProposalID: id, From: p.Status, To: next}
	}

	if err := tx.Model(&p).Update("status", next).Error; err != nil {
		return err
	}
	p.Status = next
	*out = &p
	return nil
}
