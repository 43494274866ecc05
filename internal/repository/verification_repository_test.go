package repository_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/mautops/rdrealty-lms/internal/model"
	"github.com/mautops/rdrealty-lms/internal/repository"
	"github.com/mautops/rdrealty-lms/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedVerification(t *testing.T, db *gorm.DB, assets ...*model.AssetModel) (*model.InventoryVerificationModel, []*model.VerificationItemModel) {
	t.Helper()
	v := &model.InventoryVerificationModel{
		ID:             uuid.New().String(),
		Name:           "Q3",
		BusinessUnitID: "bu-1",
		Status:         model.VerificationInProgress,
		TotalAssets:    len(assets),
		CreatedBy:      "M-1",
		Version:        1,
	}
	items := make([]*model.VerificationItemModel, 0, len(assets))
	for _, a := range assets {
		items = append(items, &model.VerificationItemModel{
			ID:               uuid.New().String(),
			VerificationID:   v.ID,
			AssetID:          a.ID,
			ExpectedItemCode: a.ItemCode,
			Status:           model.ItemPending,
		})
	}
	require.NoError(t, repository.NewVerificationRepository(db).Create(context.Background(), v, items))
	return v, items
}

func TestVerificationRepository_IncrementCounters(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedBusinessUnit(t, db, "bu-1", "HO")
	ctx := context.Background()
	repo := repository.NewVerificationRepository(db)
	v, _ := seedVerification(t, db, testutil.SeedAsset(t, db, "A-1", "bu-1", ""))

	require.NoError(t, repo.IncrementCounters(ctx, v.ID, map[string]int{"scanned_count": 1, "verified_count": 1}))
	require.NoError(t, repo.IncrementCounters(ctx, v.ID, map[string]int{"scanned_count": 1, "discrepancy_count": 1, "not_found_count": 0}))
	require.NoError(t, repo.IncrementCounters(ctx, v.ID, nil))

	loaded, err := repo.FindByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.ScannedCount)
	assert.Equal(t, 1, loaded.VerifiedCount)
	assert.Equal(t, 1, loaded.DiscrepancyCount)
	assert.Zero(t, loaded.NotFoundCount)
	assert.Equal(t, 1, loaded.Version, "counter updates do not bump the version")
}

func TestVerificationRepository_ResolveItemOnlyOnce(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedBusinessUnit(t, db, "bu-1", "HO")
	ctx := context.Background()
	repo := repository.NewVerificationRepository(db)
	v, items := seedVerification(t, db,
		testutil.SeedAsset(t, db, "A-1", "bu-1", ""),
		testutil.SeedAsset(t, db, "A-2", "bu-1", ""))

	rows, err := repo.ResolveItem(ctx, items[0].ID, map[string]interface{}{"status": model.ItemVerified})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = repo.ResolveItem(ctx, items[0].ID, map[string]interface{}{"status": model.ItemDiscrepancy})
	require.NoError(t, err)
	assert.Zero(t, rows)

	remaining, err := repo.ResolveRemaining(ctx, v.ID, map[string]interface{}{"status": model.ItemNotFound})
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)

	tallies, err := repo.TallyItems(ctx, v.ID)
	require.NoError(t, err)
	byStatus := map[model.VerificationItemStatus]int64{}
	for _, tally := range tallies {
		byStatus[tally.Status] = tally.Total
	}
	assert.Equal(t, map[model.VerificationItemStatus]int64{
		model.ItemVerified: 1,
		model.ItemNotFound: 1,
	}, byStatus)
}

func TestVerificationRepository_UpdateWithVersion(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedBusinessUnit(t, db, "bu-1", "HO")
	ctx := context.Background()
	repo := repository.NewVerificationRepository(db)
	v, _ := seedVerification(t, db, testutil.SeedAsset(t, db, "A-1", "bu-1", ""))

	rows, err := repo.UpdateWithVersion(ctx, v.ID, 1, map[string]interface{}{"name": "Q3 recount"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = repo.UpdateWithVersion(ctx, v.ID, 1, map[string]interface{}{"name": "stale"})
	require.NoError(t, err)
	assert.Zero(t, rows)

	rows, err = repo.UpdateStatus(ctx, v.ID, []model.VerificationStatus{model.VerificationPlanned}, map[string]interface{}{
		"status": model.VerificationCancelled,
	})
	require.NoError(t, err)
	assert.Zero(t, rows)

	loaded, err := repo.FindByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "Q3 recount", loaded.Name)
	assert.Equal(t, 2, loaded.Version)
}
