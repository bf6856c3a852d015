package service

import (
	"context"
	"testing"

	"EventSync/internal/repository"
	"EventSync/internal/repository/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogService(t *testing.T) {
	db, repo := newRepo(t)
	ctx := context.Background()
	fair := repotest.Main(t, db, "Fair", "2030-07-01", "", "")
	repotest.Sub(t, db, "Booths", "2030-07-01", "", fair.ID)
	oldSub := repotest.Sub(t, db, "Old talk", "2030-01-01", "", fair.ID)
	repotest.ArchiveSub(t, db, oldSub)
	gone := repotest.Main(t, db, "Gone", "2030-01-01", "", "")
	repotest.Archive(t, db, gone)

	svc := NewCatalogService(repo, quietLogger())

	active := false
	page, err := svc.ListEvents(ctx, repository.CatalogFilter{Archived: &active}, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Fair", page.Items[0].Title)
	assert.Len(t, page.Items[0].SubEvents, 1)

	detail, err := svc.GetEvent(ctx, fair.ID)
	require.NoError(t, err)
	assert.Len(t, detail.SubEvents, 2)

	_, err = svc.GetEvent(ctx, 999)
	assert.ErrorIs(t, err, ErrEventNotFound)

	clusters, err := svc.ActiveClusters(ctx)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, "Booths", clusters[0].SubEvents[0].Title)
}
