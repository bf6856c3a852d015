package service

import (
	"context"
	"testing"

	"EventSync/internal/interfaces"
	"EventSync/internal/model"
	"EventSync/internal/repository"
	"EventSync/internal/repository/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lifecycleOfMain(t *testing.T, repo repository.EventRepository, id uint64) model.Lifecycle {
	t.Helper()
	m, err := repo.GetMainEvent(context.Background(), id)
	require.NoError(t, err)
	return m.Lifecycle
}

func subsByID(t *testing.T, repo repository.EventRepository) map[uint64]*model.SubEvent {
	t.Helper()
	subs, err := repo.ListSubEvents(context.Background(), repository.SubFilter{})
	require.NoError(t, err)
	out := make(map[uint64]*model.SubEvent, len(subs))
	for _, s := range subs {
		out[s.ID] = s
	}
	return out
}

func TestArchiverHierarchy(t *testing.T) {
	db, repo := newRepo(t)
	ctx := context.Background()

	mixed := repotest.Main(t, db, "Mixed cluster", "2030-01-01", "", "a")
	mixedPast := repotest.Sub(t, db, "Past part", "2030-01-01", "", mixed.ID)
	repotest.Sub(t, db, "Future part", "2030-07-01", "", mixed.ID)

	done := repotest.Main(t, db, "Finished cluster", "2030-09-01", "", "b") // 主事件自身日期不参与判断
	donePast1 := repotest.Sub(t, db, "Day 1", "2030-01-01", "2030-01-02", done.ID)
	donePast2 := repotest.Sub(t, db, "Day 2", "2030-02-01", "", done.ID)

	unknownKid := repotest.Main(t, db, "Cluster with unknown child", "2020-01-01", "", "c")
	repotest.Sub(t, db, "Undated", "", "", unknownKid.ID)

	endPast := repotest.Main(t, db, "Ended", "2030-01-01", "2030-06-14", "")
	startPast := repotest.Main(t, db, "Started long ago", "2030-06-01", "", "")
	endFuture := repotest.Main(t, db, "Running", "2030-06-01", "2030-06-30", "")
	noDates := repotest.Main(t, db, "No dates", "", "", "")
	orphanPast := repotest.Sub(t, db, "Orphan", "2030-01-01", "", 0)

	archiver := NewArchiver(repo, quietLogger())
	n, err := archiver.Run(ctx, today())
	require.NoError(t, err)
	assert.EqualValues(t, 6, n) // done + 2 kids, endPast, startPast, orphanPast

	assert.Equal(t, model.LifecycleActive, lifecycleOfMain(t, repo, mixed.ID))
	assert.Equal(t, model.LifecycleArchived, lifecycleOfMain(t, repo, done.ID))
	assert.Equal(t, model.LifecycleActive, lifecycleOfMain(t, repo, unknownKid.ID))
	assert.Equal(t, model.LifecycleArchived, lifecycleOfMain(t, repo, endPast.ID))
	assert.Equal(t, model.LifecycleArchived, lifecycleOfMain(t, repo, startPast.ID))
	assert.Equal(t, model.LifecycleActive, lifecycleOfMain(t, repo, endFuture.ID))
	assert.Equal(t, model.LifecycleActive, lifecycleOfMain(t, repo, noDates.ID))

	subs := subsByID(t, repo)
	assert.False(t, subs[mixedPast.ID].IsArchived(), "past child of a live cluster stays")
	assert.True(t, subs[donePast1.ID].IsArchived())
	assert.True(t, subs[donePast2.ID].IsArchived())
	assert.True(t, subs[orphanPast.ID].IsArchived())

	// 幂等
	n, err = archiver.Run(ctx, today())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestArchiverJudgesSubsOfArchivedParentIndividually(t *testing.T) {
	db, repo := newRepo(t)
	ctx := context.Background()

	gone := repotest.Main(t, db, "Last season", "2029-09-01", "", "ls")
	repotest.Archive(t, db, gone)
	pastKid := repotest.Sub(t, db, "Closing talk", "2030-01-01", "", gone.ID)
	futureKid := repotest.Sub(t, db, "Reunion", "2030-08-01", "", gone.ID)
	// 父事件已不存在
	missingParent := repotest.Sub(t, db, "Lost talk", "2030-02-01", "", 9999)

	n, err := NewArchiver(repo, quietLogger()).Run(ctx, today())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	subs := subsByID(t, repo)
	assert.True(t, subs[pastKid.ID].IsArchived())
	assert.False(t, subs[futureKid.ID].IsArchived())
	assert.True(t, subs[missingParent.ID].IsArchived())
}

func TestOrphanReconcilerSinglePass(t *testing.T) {
	db, repo := newRepo(t)
	ctx := context.Background()

	parent := repotest.Main(t, db, "Parent", "2030-07-01", "", "p")
	doomed := repotest.Main(t, db, "Doomed", "2030-07-01", "", "d")
	kept := repotest.Sub(t, db, "Kept", "2030-07-01", "", parent.ID)
	dangling := repotest.Sub(t, db, "Dangling", "2030-07-01", "", doomed.ID)
	repotest.Sub(t, db, "No parent", "2030-07-01", "", 0)

	// 绕过仓储的级联删除，模拟父事件被直接删除
	require.NoError(t, db.Delete(&model.MainEvent{}, doomed.ID).Error)

	n, err := NewOrphanReconciler(repo, quietLogger()).Run(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	subs := subsByID(t, repo)
	assert.Len(t, subs, 1)
	assert.Contains(t, subs, kept.ID)
	assert.NotContains(t, subs, dangling.ID)
}

func TestIntraTableDedup(t *testing.T) {
	db, repo := newRepo(t)
	ctx := context.Background()

	first := repotest.Main(t, db, "Spring Concert", "2030-07-01", "", "a")
	dupe := repotest.Main(t, db, "spring concert", "2030-07-01", "", "b")
	dupeChild := repotest.Sub(t, db, "Encore", "2030-07-01", "", dupe.ID)
	recurring := repotest.Main(t, db, "Spring Concert", "2030-07-08", "", "c")
	repotest.Sub(t, db, "Workshop", "2030-07-02", "", first.ID)
	repotest.Sub(t, db, "WORKSHOP", "2030-07-02", "", first.ID)
	archivedTwin := repotest.Main(t, db, "Spring Concert", "2030-07-01", "", "z")
	repotest.Archive(t, db, archivedTwin)

	stub := newStub()
	res, err := NewIntraTableDeduper(repo, stub, 200, nil, quietLogger()).Run(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.MainsDeleted)
	assert.EqualValues(t, 1, res.Cascaded)
	assert.EqualValues(t, 1, res.SubsDeleted)
	assert.Equal(t, 2, stub.count(interfaces.CallGroupDuplicates))

	mains, err := repo.ListMainEvents(ctx, repository.MainFilter{})
	require.NoError(t, err)
	var ids []uint64
	for _, m := range mains {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []uint64{first.ID, recurring.ID, archivedTwin.ID}, ids)
	assert.NotContains(t, subsByID(t, repo), dupeChild.ID)

	// 去重后再跑一次不再删除
	res, err = NewIntraTableDeduper(repo, stub, 200, nil, quietLogger()).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.MainsDeleted+res.SubsDeleted)
}

func TestIntraTableDedupFailSafe(t *testing.T) {
	db, repo := newRepo(t)
	ctx := context.Background()
	repotest.Main(t, db, "Talk", "2030-07-01", "", "")
	repotest.Main(t, db, "Talk", "2030-07-01", "", "")

	failing := newStub()
	failing.fail[interfaces.CallGroupDuplicates] = true
	res, err := NewIntraTableDeduper(repo, failing, 200, nil, quietLogger()).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.MainsDeleted)

	short := newStub()
	short.override[interfaces.CallGroupDuplicates] = func(subjects, _ []model.EventSummary) []model.Decision {
		return []model.Decision{{DuplicateGroup: intPtr(1)}}
	}
	res, err = NewIntraTableDeduper(repo, short, 200, nil, quietLogger()).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.MainsDeleted)

	mains, err := repo.ListMainEvents(ctx, repository.MainFilter{})
	require.NoError(t, err)
	assert.Len(t, mains, 2)
}

func TestIntraTableDedupSkipsSingleRow(t *testing.T) {
	db, repo := newRepo(t)
	repotest.Main(t, db, "Alone", "2030-07-01", "", "")
	stub := newStub()
	_, err := NewIntraTableDeduper(repo, stub, 200, nil, quietLogger()).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stub.count(interfaces.CallGroupDuplicates))
}

func TestCrossTableDedup(t *testing.T) {
	db, repo := newRepo(t)
	ctx := context.Background()

	conf := repotest.Main(t, db, "Science Week", "2030-07-01", "2030-07-07", "sw")
	keynote := repotest.Sub(t, db, "Keynote", "2030-07-01", "", conf.ID)
	promoted := repotest.Main(t, db, "Keynote", "2030-07-01", "", "kn")
	// 与自身子事件同名的主事件不算重复
	festival := repotest.Main(t, db, "Festival", "2030-08-01", "", "f")
	repotest.Sub(t, db, "Festival", "2030-08-01", "", festival.ID)

	stub := newStub()
	deleted, cascaded, err := NewCrossTableDeduper(repo, stub, 200, nil, quietLogger()).Run(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
	assert.Zero(t, cascaded)

	_, err = repo.GetMainEvent(ctx, promoted.ID)
	assert.Error(t, err)
	assert.Contains(t, subsByID(t, repo), keynote.ID, "the sub is never deleted")
	_, err = repo.GetMainEvent(ctx, festival.ID)
	assert.NoError(t, err)
}

func TestCrossTableDedupIgnoresBadIndexesAndDedupesTargets(t *testing.T) {
	db, repo := newRepo(t)
	ctx := context.Background()

	a := repotest.Main(t, db, "A", "2030-07-01", "", "")
	b := repotest.Main(t, db, "B", "2030-07-01", "", "")
	repotest.Sub(t, db, "child of a", "2030-07-01", "", a.ID)
	repotest.Sub(t, db, "child of b", "2030-07-01", "", b.ID)

	stub := newStub()
	stub.override[interfaces.CallCrossTable] = func(subjects, comparisons []model.EventSummary) []model.Decision {
		// a → 自身子事件（忽略）；b → 越界（忽略）
		return []model.Decision{{DuplicateOfSubIndex: intPtr(0)}, {DuplicateOfSubIndex: intPtr(9)}}
	}
	deleted, _, err := NewCrossTableDeduper(repo, stub, 200, nil, quietLogger()).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	failing := newStub()
	failing.fail[interfaces.CallCrossTable] = true
	deleted, _, err = NewCrossTableDeduper(repo, failing, 200, nil, quietLogger()).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestCrossTableDedupSkipsParentlessSubs(t *testing.T) {
	db, repo := newRepo(t)
	ctx := context.Background()

	talk := repotest.Main(t, db, "Open Lab", "2030-07-01", "", "ol")
	repotest.Sub(t, db, "Open Lab", "2030-07-01", "", 0)

	deleted, _, err := NewCrossTableDeduper(repo, newStub(), 200, nil, quietLogger()).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)
	_, err = repo.GetMainEvent(ctx, talk.ID)
	assert.NoError(t, err, "与孤儿子事件同名的主事件保留")
}
