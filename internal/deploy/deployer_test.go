package deploy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/thebtf/domainforge/internal/db"
	"github.com/thebtf/domainforge/internal/registry"
	"github.com/thebtf/domainforge/pkg/models"
)

type deployFixture struct {
	store     *db.Store
	proposals *db.ProposalStore
	domains   *db.DomainStore
	registry  *registry.Registry
	deployer  *Deployer
}

func newFixture(t *testing.T) *deployFixture {
	t.Helper()

	store, err := db.NewStore(db.Config{
		Path:     filepath.Join(t.TempDir(), "deploy-test.db"),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	proposals := db.NewProposalStore(store)
	domains := db.NewDomainStore(store)
	reg := registry.New()
	return &deployFixture{
		store:     store,
		proposals: proposals,
		domains:   domains,
		registry:  reg,
		deployer:  NewDeployer(store, proposals, domains, reg),
	}
}

func (f *deployFixture) createProposal(t *testing.T, name string) *models.SchemaProposal {
	t.Helper()
	p, err := f.proposals.Create(context.Background(), &models.SchemaProposal{
		DomainName:  name,
		Description: "physical activity sessions",
		Fields: []models.FieldDef{
			{Name: "activity", Type: models.FieldString, Required: true},
			{Name: "duration_minutes", Type: models.FieldNumber, Required: true},
			{Name: "completed", Type: models.FieldBoolean},
			{Name: "performed_on", Type: models.FieldDate},
		},
	})
	require.NoError(t, err)
	return p
}

func (f *deployFixture) tableExists(t *testing.T, name string) bool {
	t.Helper()
	var count int64
	err := f.store.DB.Raw(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&count).Error
	require.NoError(t, err)
	return count > 0
}

func TestDeploy_ApprovedProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.createProposal(t, "exercise_log")
	_, err := f.proposals.Advance(ctx, p.ID, models.ProposalApproved)
	require.NoError(t, err)

	d, err := f.deployer.Deploy(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, "exercise_log", d.Name)
	assert.Equal(t, "dyn_exercise_log", d.TableName)
	assert.True(t, f.tableExists(t, "dyn_exercise_log"))
	assert.True(t, f.registry.Has("exercise_log"))

	after, err := f.proposals.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalDeployed, after.Status)
}

func TestDeploy_PendingProposalRejected(t *testing.T) {
	f := newFixture(t)
	p := f.createProposal(t, "exercise_log")

	_, err := f.deployer.Deploy(context.Background(), p.ID)
	var te *db.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, models.ProposalPending, te.From)
	assert.False(t, f.tableExists(t, "dyn_exercise_log"))
}

func TestDeploy_UnknownProposal(t *testing.T) {
	f := newFixture(t)
	_, err := f.deployer.Deploy(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrProposalNotFound)
}

func TestDeploy_DuplicateDomainLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Another process path already deployed this name; the registry has not
	// caught up yet, so the persistent check must catch it.
	_, err := f.domains.CreateTx(f.store.DB, &models.DeployedDomain{
		Name:      "exercise_log",
		TableName: "dyn_exercise_log",
		Schema:    []models.FieldDef{{Name: "activity", Type: models.FieldString, Required: true}},
	})
	require.NoError(t, err)

	p := f.createProposal(t, "exercise_log")
	_, err = f.proposals.Advance(ctx, p.ID, models.ProposalApproved)
	require.NoError(t, err)

	_, err = f.deployer.Deploy(ctx, p.ID)
	require.ErrorIs(t, err, db.ErrDuplicateDomain)

	// The colliding attempt must not touch the proposal or the schema.
	after, err := f.proposals.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalApproved, after.Status)
	assert.False(t, f.tableExists(t, "dyn_exercise_log"))
}

func TestDeploy_RegistryCollisionWithoutRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.registry.Register(&models.DeployedDomain{Name: "exercise_log", TableName: "dyn_exercise_log"})

	p := f.createProposal(t, "exercise_log")
	_, err := f.proposals.Advance(ctx, p.ID, models.ProposalApproved)
	require.NoError(t, err)

	_, err = f.deployer.Deploy(ctx, p.ID)
	require.ErrorIs(t, err, db.ErrDuplicateDomain)
	assert.False(t, f.tableExists(t, "dyn_exercise_log"))
}

func TestBuildCreateTable(t *testing.T) {
	p := &models.SchemaProposal{
		DomainName: "exercise_log",
		Fields: []models.FieldDef{
			{Name: "activity", Type: models.FieldString, Required: true},
			{Name: "duration_minutes", Type: models.FieldNumber},
			{Name: "completed", Type: models.FieldBoolean},
			{Name: "performed_on", Type: models.FieldDate},
		},
	}

	ddl, err := buildCreateTable(p)
	require.NoError(t, err)

	assert.Contains(t, ddl, `CREATE TABLE "dyn_exercise_log"`)
	assert.Contains(t, ddl, `"activity" TEXT NOT NULL`)
	assert.Contains(t, ddl, `"duration_minutes" REAL`)
	assert.Contains(t, ddl, `"completed" INTEGER`)
	assert.Contains(t, ddl, `"performed_on" TEXT`)
	assert.Contains(t, ddl, "id INTEGER PRIMARY KEY AUTOINCREMENT")
	assert.Contains(t, ddl, "created_at TEXT NOT NULL")
}

func TestBuildCreateTable_RejectsBadIdentifiers(t *testing.T) {
	tests := []struct {
		name     string
		proposal *models.SchemaProposal
	}{
		{
			"injection in domain name",
			&models.SchemaProposal{
				DomainName: `x"; DROP TABLE captured_turns; --`,
				Fields:     []models.FieldDef{{Name: "a", Type: models.FieldString, Required: true}},
			},
		},
		{
			"injection in field name",
			&models.SchemaProposal{
				DomainName: "exercise_log",
				Fields:     []models.FieldDef{{Name: `a" TEXT); DROP TABLE x; --`, Type: models.FieldString, Required: true}},
			},
		},
		{
			"reserved field name",
			&models.SchemaProposal{
				DomainName: "exercise_log",
				Fields:     []models.FieldDef{{Name: "id", Type: models.FieldString, Required: true}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildCreateTable(tt.proposal)
			assert.Error(t, err)
		})
	}
}
