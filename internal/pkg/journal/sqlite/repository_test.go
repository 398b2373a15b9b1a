package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/fabrik-saga/internal/pkg/journal"
)

func TestRecordAndHistory(t *testing.T) {
	repo, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	for _, status := range []string{"PENDING", "INVENTORY_RESERVED", "SHIPMENT_CREATED"} {
		require.NoError(t, repo.Record(ctx, journal.NewEntry(ctx, "test-service", "o-1", status)))
	}
	require.NoError(t, repo.Record(ctx, journal.NewEntry(ctx, "test-service", "o-2", "PENDING")))

	entries, err := repo.History(ctx, "o-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "PENDING", entries[0].Status)
	assert.Equal(t, "SHIPMENT_CREATED", entries[2].Status)
	assert.Equal(t, "test-service", entries[0].Source)
}

func TestNilRecorderIsSkipped(t *testing.T) {
	assert.NoError(t, journal.Record(context.Background(), nil, "svc", "o-1", "PENDING"))
}
