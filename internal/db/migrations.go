package db

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate. Dynamic-domain
// tables are not created here; the deployer issues their DDL at runtime.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "001_captured_turns",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&CapturedTurn{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("captured_turns")
			},
		},
		{
			ID: "002_turn_embeddings",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&TurnEmbedding{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("turn_embeddings")
			},
		},
		{
			ID: "003_schema_proposals",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&SchemaProposal{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("schema_proposals")
			},
		},
		{
			ID: "004_deployed_domains",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&DeployedDomain{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("deployed_domains")
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("run gormigrate migrations: %w", err)
	}

	return nil
}
