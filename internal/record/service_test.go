package record

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/thebtf/domainforge/internal/db"
	"github.com/thebtf/domainforge/internal/registry"
	"github.com/thebtf/domainforge/pkg/models"
)

func testService(t *testing.T) (*Service, *db.Store) {
	t.Helper()

	store, err := db.NewStore(db.Config{
		Path:     filepath.Join(t.TempDir(), "record-test.db"),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	err = store.DB.Exec(`CREATE TABLE "dyn_exercise_log" (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		"activity" TEXT NOT NULL,
		"duration_minutes" REAL NOT NULL,
		"completed" INTEGER,
		"performed_on" TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`).Error
	require.NoError(t, err)

	reg := registry.New()
	reg.Register(&models.DeployedDomain{
		Name:      "exercise_log",
		TableName: "dyn_exercise_log",
		Schema: []models.FieldDef{
			{Name: "activity", Type: models.FieldString, Required: true},
			{Name: "duration_minutes", Type: models.FieldNumber, Required: true},
			{Name: "completed", Type: models.FieldBoolean},
			{Name: "performed_on", Type: models.FieldDate},
		},
	})
	return NewService(store, reg), store
}

func validPayload() map[string]any {
	return map[string]any{
		"activity":         "morning run",
		"duration_minutes": float64(30),
		"completed":        true,
		"performed_on":     "2026-08-30",
	}
}

func TestService_CreateAndGet(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, "exercise_log", validPayload())
	require.NoError(t, err)

	assert.Equal(t, "morning run", rec["activity"])
	assert.Equal(t, float64(30), rec["duration_minutes"])
	assert.Equal(t, true, rec["completed"], "booleans round-trip through 0/1 storage")
	assert.Equal(t, "2026-08-30T00:00:00Z", rec["performed_on"], "dates are normalized to RFC3339")
	assert.NotEmpty(t, rec["created_at"])

	id, ok := rec["id"].(int64)
	require.True(t, ok)

	got, err := svc.Get(ctx, "exercise_log", id)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestService_CreateReportsAllViolations(t *testing.T) {
	svc, store := testService(t)

	_, err := svc.Create(context.Background(), "exercise_log", map[string]any{
		"duration_minutes": "not a number",
		"completed":        "not a bool",
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Violations, 3, "missing activity, bad duration, bad completed")

	// Nothing may be persisted on validation failure.
	var count int64
	require.NoError(t, store.DB.Raw(`SELECT COUNT(*) FROM "dyn_exercise_log"`).Scan(&count).Error)
	assert.Zero(t, count)
}

func TestService_UnknownFieldsDropped(t *testing.T) {
	svc, _ := testService(t)

	payload := validPayload()
	payload["made_up_field"] = "ignored"

	rec, err := svc.Create(context.Background(), "exercise_log", payload)
	require.NoError(t, err)
	_, present := rec["made_up_field"]
	assert.False(t, present)
}

func TestService_NaNRejected(t *testing.T) {
	svc, _ := testService(t)

	payload := validPayload()
	payload["duration_minutes"] = math.NaN()

	_, err := svc.Create(context.Background(), "exercise_log", payload)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "duration_minutes", verr.Violations[0].Field)
}

func TestService_UnknownDomain(t *testing.T) {
	svc, _ := testService(t)
	_, err := svc.Create(context.Background(), "nope", validPayload())
	assert.ErrorIs(t, err, ErrUnknownDomain)
}

func TestService_List(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, "exercise_log", validPayload())
		require.NoError(t, err)
	}

	records, err := svc.List(ctx, "exercise_log", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Greater(t, records[0]["id"].(int64), records[1]["id"].(int64), "most recent first")
}

func TestService_UpdateSuppliedFieldsOnly(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, "exercise_log", validPayload())
	require.NoError(t, err)
	id := rec["id"].(int64)

	updated, err := svc.Update(ctx, "exercise_log", id, map[string]any{
		"completed": false,
	})
	require.NoError(t, err)
	assert.Equal(t, false, updated["completed"])
	assert.Equal(t, "morning run", updated["activity"], "unsupplied fields untouched")
}

func TestService_UpdateValidatesSuppliedField(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, "exercise_log", validPayload())
	require.NoError(t, err)

	_, err = svc.Update(ctx, "exercise_log", rec["id"].(int64), map[string]any{
		"duration_minutes": "still not a number",
	})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestService_UpdateMissingRecord(t *testing.T) {
	svc, _ := testService(t)

	updated, err := svc.Update(context.Background(), "exercise_log", 9999, map[string]any{
		"completed": true,
	})
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestService_Delete(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, "exercise_log", validPayload())
	require.NoError(t, err)
	id := rec["id"].(int64)

	deleted, err := svc.Delete(ctx, "exercise_log", id)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := svc.Get(ctx, "exercise_log", id)
	require.NoError(t, err)
	assert.Nil(t, got)

	deleted, err = svc.Delete(ctx, "exercise_log", id)
	require.NoError(t, err)
	assert.False(t, deleted)
}
