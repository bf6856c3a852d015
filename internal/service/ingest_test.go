package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"EventSync/internal/interfaces"
	"EventSync/internal/repository"
	"EventSync/internal/repository/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name  string
	batch []byte
	err   error
}

func (f *fakeSource) GetName() string { return f.name }

func (f *fakeSource) FetchBatch(context.Context) ([]byte, error) {
	b := f.batch
	f.batch = nil
	return b, f.err
}

type fakeSources map[string]interfaces.CandidateSource

func (f fakeSources) Get(name string) (interfaces.CandidateSource, error) {
	if s, ok := f[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("unknown source %s", name)
}

func (f fakeSources) Names() []string {
	var out []string
	for n := range f {
		out = append(out, n)
	}
	return out
}

type recordingArchiver struct {
	batches [][]byte
	err     error
}

func (a *recordingArchiver) Archive(_ context.Context, runID string, raw []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.batches = append(a.batches, raw)
	return "batches/" + runID + ".json", nil
}

func TestDecodeBatchFormats(t *testing.T) {
	batch, err := DecodeBatch([]byte(`[{"Title":"Open Day","Event_Type":"main_event","Main_Event_Temp_Key":"k1","Start_Date":"2030-07-01"}]`))
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "main_event", batch[0].Type)
	assert.Equal(t, "k1", batch[0].TempKey)
	assert.Equal(t, "2030-07-01", batch[0].StartDate)

	batch, err = DecodeBatch([]byte(`{"events":[{"Title":"A","Type":"sub","Temp_Key":"x"}]}`))
	require.NoError(t, err)
	assert.Len(t, batch, 1)

	batch, err = DecodeBatch([]byte("  "))
	require.NoError(t, err)
	assert.NotNil(t, batch)
	assert.Empty(t, batch)

	_, err = DecodeBatch([]byte(`{"events":`))
	assert.Error(t, err)
}

func TestSyncSource(t *testing.T) {
	db := repotest.NewDB(t)
	p := newPipeline(t, db, newStub(), nil)
	archiver := &recordingArchiver{}
	src := &fakeSource{name: "inbox", batch: []byte(`[{"Title":"Open Day","Type":"main","Temp_Key":"k","Start_Date":"2030-07-01"}]`)}
	svc := NewIngestService(p, fakeSources{"inbox": src}, archiver, quietLogger())
	ctx := context.Background()

	report, err := svc.SyncSource(ctx, "inbox")
	require.NoError(t, err)
	assert.Equal(t, "inbox", report.Trigger)
	assert.Equal(t, 1, report.Stats.MainsInserted)
	assert.Len(t, archiver.batches, 1)

	// 来源无新批次时只做维护
	report, err = svc.SyncSource(ctx, "inbox")
	require.NoError(t, err)
	assert.Zero(t, report.Stats.CandidatesReceived)
	assert.Len(t, archiver.batches, 1)

	_, err = svc.SyncSource(ctx, "missing")
	assert.Error(t, err)
}

func TestIngestBatchSurvivesArchiveFailure(t *testing.T) {
	db := repotest.NewDB(t)
	p := newPipeline(t, db, newStub(), nil)
	svc := NewIngestService(p, fakeSources{}, &recordingArchiver{err: errors.New("s3 down")}, quietLogger())

	report, err := svc.IngestBatch(context.Background(), TriggerAPI, []byte(`[{"Title":"Talk","Type":"main","Temp_Key":"t","Start_Date":"2030-07-01"}]`))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.MainsInserted)

	mains, err := repository.NewEventRepository(db).ListMainEvents(context.Background(), repository.MainFilter{})
	require.NoError(t, err)
	assert.Len(t, mains, 1)

	_, err = svc.IngestBatch(context.Background(), TriggerAPI, []byte(`not json`))
	assert.Error(t, err)
}

func TestSyncAllContinuesAfterFailure(t *testing.T) {
	db := repotest.NewDB(t)
	p := newPipeline(t, db, newStub(), nil)
	svc := NewIngestService(p, fakeSources{
		"bad":  &fakeSource{name: "bad", err: errors.New("boom")},
		"good": &fakeSource{name: "good"},
	}, nil, quietLogger())

	reports := svc.SyncAll(context.Background(), []string{"bad", "good"})
	require.Len(t, reports, 1)
	assert.Equal(t, "good", reports[0].Trigger)
}
