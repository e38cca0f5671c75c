package repository

import (
	"context"
	"testing"
	"time"

	"creditledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedIntent(t *testing.T, repo *IntentRepository, intentRef string) *model.PaymentIntent {
	t.Helper()
	intent := &model.PaymentIntent{
		IntentRef: intentRef,
		AccountNo: "ACC001",
		PackageID: "standard",
		Amount:    250,
		Currency:  "usd",
		Credits:   15,
		Status:    model.IntentStatusPending,
	}
	require.NoError(t, repo.Create(context.Background(), nil, intent))
	return intent
}

func TestMarkCompleted(t *testing.T) {
	db := newTestDB(t)
	repo := NewIntentRepository(db)
	ctx := context.Background()

	seedIntent(t, repo, "pi_001")

	intent, err := repo.MarkCompleted(ctx, nil, "pi_001")
	require.NoError(t, err)
	assert.Equal(t, model.IntentStatusCompleted, intent.Status)
	assert.NotNil(t, intent.CompletedAt)
}

func TestMarkCompletedIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewIntentRepository(db)
	ctx := context.Background()

	seedIntent(t, repo, "pi_001")

	_, err := repo.MarkCompleted(ctx, nil, "pi_001")
	require.NoError(t, err)

	// 重复转移：命中幂等，返回当前记录且不改任何字段
	intent, err := repo.MarkCompleted(ctx, nil, "pi_001")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Equal(t, model.IntentStatusCompleted, intent.Status)
}

func TestMarkFailedAfterCompleted(t *testing.T) {
	db := newTestDB(t)
	repo := NewIntentRepository(db)
	ctx := context.Background()

	seedIntent(t, repo, "pi_001")

	_, err := repo.MarkCompleted(ctx, nil, "pi_001")
	require.NoError(t, err)

	// 终态绝不回退
	intent, err := repo.MarkFailed(ctx, nil, "pi_001")
	assert.ErrorIs(t, err, ErrConflictingState)
	assert.Equal(t, model.IntentStatusCompleted, intent.Status)
}

func TestMarkFailedIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewIntentRepository(db)
	ctx := context.Background()

	seedIntent(t, repo, "pi_001")

	_, err := repo.MarkFailed(ctx, nil, "pi_001")
	require.NoError(t, err)

	intent, err := repo.MarkFailed(ctx, nil, "pi_001")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Equal(t, model.IntentStatusFailed, intent.Status)
}

func TestMarkCompletedNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewIntentRepository(db)

	_, err := repo.MarkCompleted(context.Background(), nil, "pi_404")
	assert.ErrorIs(t, err, ErrIntentNotFound)
}

func TestGetCompletedBefore(t *testing.T) {
	db := newTestDB(t)
	repo := NewIntentRepository(db)
	ctx := context.Background()

	seedIntent(t, repo, "pi_done")
	seedIntent(t, repo, "pi_pending")

	_, err := repo.MarkCompleted(ctx, nil, "pi_done")
	require.NoError(t, err)

	intents, err := repo.GetCompletedBefore(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "pi_done", intents[0].IntentRef)

	// 冷却窗口之外的不返回
	intents, err = repo.GetCompletedBefore(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, intents)
}
