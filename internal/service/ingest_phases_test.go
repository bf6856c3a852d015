package service

import (
	"context"
	"errors"
	"testing"

	"EventSync/internal/interfaces"
	"EventSync/internal/model"
	"EventSync/internal/repository"
	"EventSync/internal/repository/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterMainsRemapsDuplicateToPersistedKey(t *testing.T) {
	db, repo := newRepo(t)
	ctx := context.Background()
	persisted := repotest.Main(t, db, "Open Day", "2030-07-01", "", "k0")

	keys := NewKeyMap()
	f := NewNewEntityFilter(repo, newStub(), 200, nil, quietLogger())
	kept, dup, err := f.FilterMains(ctx, []model.Candidate{
		candidate("main", "open day", "2030-07-01", "", "k1"),
		candidate("main", "Lab Tour", "2030-07-02", "", "k2"),
	}, keys)
	require.NoError(t, err)
	assert.Equal(t, 1, dup)
	assert.Equal(t, []string{"Lab Tour"}, titles(kept))

	id, ok := keys.Resolve("k1")
	assert.True(t, ok)
	assert.Equal(t, persisted.ID, id)
}

func TestFilterMainsDuplicateOfSubBindsToParent(t *testing.T) {
	db, repo := newRepo(t)
	ctx := context.Background()
	parent := repotest.Main(t, db, "Science Week", "2030-07-01", "", "")
	repotest.Sub(t, db, "Keynote", "2030-07-01", "", parent.ID)

	keys := NewKeyMap()
	f := NewNewEntityFilter(repo, newStub(), 200, nil, quietLogger())
	kept, dup, err := f.FilterMains(ctx, []model.Candidate{candidate("main", "Keynote", "2030-07-01", "", "kk")}, keys)
	require.NoError(t, err)
	assert.Empty(t, kept)
	assert.Equal(t, 1, dup)
	id, ok := keys.Resolve("kk")
	assert.True(t, ok)
	assert.Equal(t, parent.ID, id)
}

func TestFilterMainsWithinBatchDuplicate(t *testing.T) {
	_, repo := newRepo(t)
	keys := NewKeyMap()
	f := NewNewEntityFilter(repo, newStub(), 200, nil, quietLogger())
	kept, dup, err := f.FilterMains(context.Background(), []model.Candidate{
		candidate("main", "Hackathon", "2030-07-01", "", "h1"),
		candidate("main", "HACKATHON", "2030-07-01", "", "h2"),
	}, keys)
	require.NoError(t, err)
	assert.Equal(t, 1, dup)
	assert.Equal(t, []string{"Hackathon"}, titles(kept))
	assert.Equal(t, "h1", keys.Canonical("h2"))
}

func TestFilterMainsFailClosed(t *testing.T) {
	db, repo := newRepo(t)
	repotest.Main(t, db, "Existing", "2030-07-01", "", "")
	stub := newStub()
	stub.fail[interfaces.CallMatchExisting] = true

	f := NewNewEntityFilter(repo, stub, 200, nil, quietLogger())
	kept, _, err := f.FilterMains(context.Background(), []model.Candidate{candidate("main", "New", "2030-07-01", "", "n")}, NewKeyMap())
	assert.True(t, errors.Is(err, ErrMainFilterFailed))
	assert.Nil(t, kept)
}

func TestFilterMainsEmptyStoreSkipsOracle(t *testing.T) {
	_, repo := newRepo(t)
	stub := newStub()
	stub.fail[interfaces.CallMatchExisting] = true
	f := NewNewEntityFilter(repo, stub, 200, nil, quietLogger())
	kept, _, err := f.FilterMains(context.Background(), []model.Candidate{candidate("main", "New", "2030-07-01", "", "n")}, NewKeyMap())
	require.NoError(t, err)
	assert.Len(t, kept, 1)
	assert.Zero(t, stub.count(interfaces.CallMatchExisting))
}

func TestFilterSubsFailOpen(t *testing.T) {
	db, repo := newRepo(t)
	p := repotest.Main(t, db, "Parent", "2030-07-01", "", "")
	repotest.Sub(t, db, "Session", "2030-07-01", "", p.ID)
	subs := []model.Candidate{
		candidate("sub", "Session", "2030-07-01", "", "p"),
		candidate("sub", "Other", "2030-07-01", "", "p"),
	}

	kept, dup, err := NewNewEntityFilter(repo, newStub(), 200, nil, quietLogger()).FilterSubs(context.Background(), subs)
	require.NoError(t, err)
	assert.Equal(t, 1, dup)
	assert.Equal(t, []string{"Other"}, titles(kept))

	failing := newStub()
	failing.fail[interfaces.CallCheckNew] = true
	kept, dup, err = NewNewEntityFilter(repo, failing, 200, nil, quietLogger()).FilterSubs(context.Background(), subs)
	require.NoError(t, err)
	assert.Zero(t, dup)
	assert.Len(t, kept, 2)
}

func TestReclassifierQueuesAndRedirects(t *testing.T) {
	db, repo := newRepo(t)
	bad := repotest.Main(t, db, "Poster Session", "2030-07-01", "", "existing_key")
	stub := newStub()
	stub.override[interfaces.CallReclassifySub] = func(subjects, _ []model.EventSummary) []model.Decision {
		ref := model.Ref(model.RefMain, bad.ID)
		return []model.Decision{
			{IsNew: boolPtr(false), MatchesMainID: &ref, NewTempKey: strPtr("existing_key")},
			{IsNew: boolPtr(false), MatchesMainID: &ref},
			{IsNew: boolPtr(false)},
		}
	}
	keys := NewKeyMap()
	subs := []model.Candidate{
		candidate("sub", "Poster Session", "2030-07-01", "", "new_key"),
		candidate("sub", "Poster Session (2)", "2030-07-01", "", "other"),
		candidate("sub", "Unmatched", "2030-07-01", "", "third"),
	}
	out, queued, err := NewSubReclassifier(repo, stub, 200, nil, quietLogger()).Run(context.Background(), subs, keys)
	require.NoError(t, err)
	assert.Equal(t, []uint64{bad.ID}, queued, "queue is a set")
	require.Len(t, out, 3)
	assert.Equal(t, "existing_key", out[0].TempKey)
	assert.True(t, keys.Redirected("existing_key"))
	assert.Equal(t, "other", out[1].TempKey)
	assert.Equal(t, "third", out[2].TempKey)
	assert.Equal(t, "new_key", subs[0].TempKey, "input slice untouched")
}

func TestReclassifierFailOpen(t *testing.T) {
	db, repo := newRepo(t)
	repotest.Main(t, db, "Something", "2030-07-01", "", "")
	stub := newStub()
	stub.fail[interfaces.CallReclassifySub] = true
	subs := []model.Candidate{candidate("sub", "Something", "2030-07-01", "", "k")}
	out, queued, err := NewSubReclassifier(repo, stub, 200, nil, quietLogger()).Run(context.Background(), subs, NewKeyMap())
	require.NoError(t, err)
	assert.Empty(t, queued)
	assert.Equal(t, subs, out)
}

func TestLinkerBackfillsAndPropagatesRegistration(t *testing.T) {
	db, repo := newRepo(t)
	ctx := context.Background()
	existing := repotest.Main(t, db, "Existing conf", "2030-07-01", "", "old")
	existing.AppendChildIDs(99)
	require.NoError(t, repo.SaveMainEvent(ctx, existing))

	keys := NewKeyMap()
	keys.Bind("old", existing.ID)

	withURL := candidate("sub", "Workshop", "2030-07-02", "", "old")
	withURL.RegistrationURL = "https://example.org/register"
	mains := []model.Candidate{candidate("main", "New conf", "2030-08-01", "", "new")}
	subs := []model.Candidate{
		candidate("sub", "Opening", "2030-08-01", "", "new"),
		withURL,
		candidate("sub", "Stray", "2030-08-01", "", "missing"),
	}

	res, err := NewLinker(repo, quietLogger()).Run(ctx, mains, subs, keys)
	require.NoError(t, err)
	assert.Equal(t, 1, res.MainsInserted)
	assert.Equal(t, 3, res.SubsInserted)
	assert.Equal(t, 1, res.Unresolved)

	all, err := repo.ListSubEvents(ctx, repository.SubFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	byTitle := map[string]*model.SubEvent{}
	for _, s := range all {
		byTitle[s.Title] = s
	}
	assert.Nil(t, byTitle["Stray"].MainEventID)
	require.NotNil(t, byTitle["Workshop"].MainEventID)
	assert.Equal(t, existing.ID, *byTitle["Workshop"].MainEventID)

	got, err := repo.GetMainEvent(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{99, byTitle["Workshop"].ID}, got.ChildIDs(), "merge, never replace")
	require.NotNil(t, got.RegistrationNeeded)
	assert.True(t, *got.RegistrationNeeded)

	newMain, err := repo.GetMainEvent(ctx, *byTitle["Opening"].MainEventID)
	require.NoError(t, err)
	assert.Equal(t, "New conf", newMain.Title)
	assert.Equal(t, []uint64{byTitle["Opening"].ID}, newMain.ChildIDs())
	assert.Nil(t, newMain.RegistrationNeeded)
}
