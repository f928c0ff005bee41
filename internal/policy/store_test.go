package policy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leok974/ApplyLens-sub019/internal/models"
	"github.com/leok974/ApplyLens-sub019/internal/policy"
	"github.com/leok974/ApplyLens-sub019/internal/testutil"
)

func TestStore_ActiveWithoutSnapshot(t *testing.T) {
	store := policy.NewStore(testutil.SetupSQLiteTestDB(t))
	_, err := store.Active(context.Background())
	assert.ErrorIs(t, err, models.ErrNoActiveSnapshot)
}

func TestStore_ReplaceVersionsAndActivates(t *testing.T) {
	store := policy.NewStore(testutil.SetupSQLiteTestDB(t))
	ctx := context.Background()

	first, err := store.Replace(ctx, policy.DefaultRules(), policy.DefaultBudgets(), "bootstrap")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)
	assert.True(t, first.Active)

	second, err := store.Replace(ctx, []models.PolicyRule{
		{ID: "allow-all", Agent: "*", Action: "*", Effect: models.EffectAllow, Priority: 1},
	}, nil, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Version)

	active, err := store.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	require.Len(t, active.Rules, 1)
	assert.Equal(t, "allow-all", active.Rules[0].ID)
	assert.Equal(t, "admin@example.com", active.UpdatedBy)
}

func TestStore_ReplaceRejectsInvalidRules(t *testing.T) {
	store := policy.NewStore(testutil.SetupSQLiteTestDB(t))
	_, err := store.Replace(context.Background(), []models.PolicyRule{
		{ID: "bad", Agent: "*", Action: "*", Effect: "maybe"},
	}, nil, "")
	assert.ErrorIs(t, err, models.ErrInvalidRuleSet)

	// A failed replace leaves no active snapshot behind
	_, err = store.Active(context.Background())
	assert.ErrorIs(t, err, models.ErrNoActiveSnapshot)
}
