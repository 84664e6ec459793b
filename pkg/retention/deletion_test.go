package retention

import (
	"context"
	"testing"
	"time"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/test/util"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeletionWorker_DeletesDueJob(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	c := newTestCall(t, client)

	_, err := client.DeletionJob.Create().
		SetID(uuid.NewString()).
		SetCallID(c.ID).
		SetTenantID(c.TenantID).
		SetScheduledFor(time.Now().Add(-time.Hour)).
		Save(ctx)
	require.NoError(t, err)

	w := NewDeletionWorker(client, DeletionConfig{})
	n, err := w.pollAndProcess(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = client.Call.Get(ctx, c.ID)
	assert.True(t, ent.IsNotFound(err), "call is purged once its deletion job is due")
}

func TestDeletionWorker_SkipsLegalHold(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	c := newTestCall(t, client)

	require.NoError(t, client.Call.UpdateOneID(c.ID).SetLegalHold(true).Exec(ctx))

	_, err := client.DeletionJob.Create().
		SetID(uuid.NewString()).
		SetCallID(c.ID).
		SetTenantID(c.TenantID).
		SetScheduledFor(time.Now().Add(-time.Hour)).
		Save(ctx)
	require.NoError(t, err)

	w := NewDeletionWorker(client, DeletionConfig{})
	n, err := w.pollAndProcess(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the job is still claimed and marked executed")

	refreshed, err := client.Call.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.NotNil(t, refreshed, "a legal-hold call survives")

	job, err := client.DeletionJob.Query().Only(ctx)
	require.NoError(t, err)
	assert.NotNil(t, job.ExecutedAt)
}
