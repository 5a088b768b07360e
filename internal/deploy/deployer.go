// Package deploy activates approved schema proposals: it creates the backing
// table, records the domain registration, and advances the proposal, all in
// one transaction.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/thebtf/domainforge/internal/db"
	"github.com/thebtf/domainforge/internal/registry"
	"github.com/thebtf/domainforge/pkg/models"
)

// ErrProposalNotFound is returned when the proposal id does not exist.
var ErrProposalNotFound = errors.New("proposal not found")

// tablePrefix namespaces dynamic tables away from the fixed schema so a
// proposal can never shadow an internal table.
const tablePrefix = "dyn_"

// reservedColumns are added to every dynamic table and may not be redeclared
// by a proposal field.
var reservedColumns = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// Deployer turns approved proposals into live domains.
type Deployer struct {
	store     *db.Store
	proposals *db.ProposalStore
	domains   *db.DomainStore
	registry  *registry.Registry
}

// NewDeployer creates a deployer.
func NewDeployer(store *db.Store, proposals *db.ProposalStore, domains *db.DomainStore, reg *registry.Registry) *Deployer {
	return &Deployer{store: store, proposals: proposals, domains: domains, registry: reg}
}

// Deploy activates the approved proposal with the given id. Table creation,
// domain registration, and the status advance to deployed commit atomically;
// on any failure no trace of the deployment remains and the proposal stays
// approved. The in-process registry is updated only after commit.
func (d *Deployer) Deploy(ctx context.Context, proposalID int64) (*models.DeployedDomain, error) {
	p, err := d.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("load proposal %d: %w", proposalID, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: id %d", ErrProposalNotFound, proposalID)
	}
	if p.Status != models.ProposalApproved {
		return nil, &db.TransitionError{ProposalID: proposalID, From: p.Status, To: models.ProposalDeployed}
	}

	// Authoritative uniqueness check at deploy time. The name was free when
	// the proposal was created, but another proposal may have deployed since.
	if d.registry.Has(p.DomainName) {
		return nil, fmt.Errorf("%w: %q is already deployed", db.ErrDuplicateDomain, p.DomainName)
	}
	if existing, err := d.domains.GetByName(ctx, p.DomainName); err != nil {
		return nil, fmt.Errorf("check domain %q: %w", p.DomainName, err)
	} else if existing != nil {
		return nil, fmt.Errorf("%w: %q is already deployed", db.ErrDuplicateDomain, p.DomainName)
	}

	ddl, err := buildCreateTable(p)
	if err != nil {
		return nil, fmt.Errorf("build table for %q: %w", p.DomainName, err)
	}

	var deployed *models.DeployedDomain
	err = d.store.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(ddl).Error; err != nil {
			return fmt.Errorf("create table: %w", err)
		}
		deployed, err = d.domains.CreateTx(tx, &models.DeployedDomain{
			Name:      p.DomainName,
			TableName: tablePrefix + p.DomainName,
			Schema:    p.Fields,
		})
		if err != nil {
			return fmt.Errorf("register domain: %w", err)
		}
		if _, err := d.proposals.AdvanceTx(tx, proposalID, models.ProposalDeployed); err != nil {
			return fmt.Errorf("advance proposal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.registry.Register(deployed)

	log.Info().
		Str("domain", deployed.Name).
		Str("table", deployed.TableName).
		Int("fields", len(deployed.Schema)).
		Msg("Deployed dynamic domain")
	return deployed, nil
}

// buildCreateTable renders the CREATE TABLE statement for a proposal. Every
// identifier must pass the allow-list check; values never reach the DDL.
func buildCreateTable(p *models.SchemaProposal) (string, error) {
	if !models.IsValidIdentifier(p.DomainName) {
		return "", fmt.Errorf("invalid domain name %q", p.DomainName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %q (\n", tablePrefix+p.DomainName)
	b.WriteString("  id INTEGER PRIMARY KEY AUTOINCREMENT,\n")

	for _, f := range p.Fields {
		if !models.IsValidIdentifier(f.Name) {
			return "", fmt.Errorf("invalid field name %q", f.Name)
		}
		if reservedColumns[f.Name] {
			return "", fmt.Errorf("field name %q is reserved", f.Name)
		}
		colType, err := columnType(f.Type)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "  %q %s", f.Name, colType)
		if f.Required {
			b.WriteString(" NOT NULL")
		}
		b.WriteString(",\n")
	}

	b.WriteString("  created_at TEXT NOT NULL,\n")
	b.WriteString("  updated_at TEXT NOT NULL\n")
	b.WriteString(")")
	return b.String(), nil
}

func columnType(t models.FieldType) (string, error) {
	switch t {
	case models.FieldString, models.FieldDate:
		return "TEXT", nil
	case models.FieldNumber:
		return "REAL", nil
	case models.FieldBoolean:
		return "INTEGER", nil
	}
	return "", fmt.Errorf("unsupported field type %q", t)
}
