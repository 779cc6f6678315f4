package artifact

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/movinture/latent-logic/agentloop"
	"github.com/movinture/latent-logic/canonical"
	"github.com/movinture/latent-logic/comparison"
	"github.com/movinture/latent-logic/validation"
)

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"gpt-4o":               "gpt-4o",
		"DeepSeek-V3.2":        "DeepSeek-V3.2",
		"Kimi K2 Thinking":     "Kimi_K2_Thinking",
		"openai/gpt-4o:latest": "openaigpt-4olatest",
		"../../etc":            "....etc",
		"..":                   "_",
		"":                     "_",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeName(in), in)
	}
}

func sampleRun(framework, model, prompt string) *agentloop.AgentRunRecord {
	start := time.Unix(1_700_000_000, 0).UTC()
	return &agentloop.AgentRunRecord{
		RunGroup:      "rg1",
		Framework:     framework,
		Model:         model,
		PromptID:      prompt,
		PromptVersion: "v1",
		PromptType:    agentloop.PromptLocation,
		FinalText:     "40.758 N, 73.9855 W",
		Turns:         2,
		ToolCalls: []agentloop.ToolInvocation{
			{Name: "http_request", CallID: "c1", Arguments: map[string]interface{}{"url": "https://x"}, Encoding: agentloop.EncodingKindStructured},
		},
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Status:     agentloop.StatusComplete,
	}
}

func sampleValidation(rec *agentloop.AgentRunRecord, v validation.Verdict) validation.ValidationRecord {
	return validation.ValidationRecord{
		RunGroup:   rec.RunGroup,
		Framework:  rec.Framework,
		Model:      rec.Model,
		PromptID:   rec.PromptID,
		PromptType: rec.PromptType,
		Valid:      v,
		Provenance: validation.Classify(true, v),
		ToolUsed:   true,
		ToolNames:  []string{"http_request"},
		DataHints:  validation.DataHints{Hosts: []string{"x"}},
	}
}

func TestWriteAndLoadRows(t *testing.T) {
	store := NewStore(t.TempDir(), zaptest.NewLogger(t))

	a := sampleRun("scratch", "Kimi K2.5", "where_ts")
	b := sampleRun("scratch", "gpt-4o", "where_ts")
	orphan := sampleRun("scratch", "gpt-4o", "no_sidecar")

	for _, rec := range []*agentloop.AgentRunRecord{a, b, orphan} {
		path, err := store.WriteRun(rec)
		require.NoError(t, err)
		assert.FileExists(t, path)
	}
	assert.Equal(t, filepath.Join(store.Root, "rg1", "scratch", "Kimi_K2.5", "where_ts.json"), store.RunPath("rg1", "scratch", "Kimi K2.5", "where_ts"))

	vpath, err := store.WriteValidation(sampleValidation(a, validation.Valid))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Root, "rg1", "scratch", "Kimi_K2.5", "where_ts_validation.json"), vpath)
	_, err = store.WriteValidation(sampleValidation(b, validation.Unverified))
	require.NoError(t, err)

	rows, err := store.LoadRows("rg1", "scratch")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Kimi K2.5", rows[0].Model)
	assert.Equal(t, validation.Valid, rows[0].Validation.Valid)
	assert.Equal(t, 2, rows[0].Turns)
	assert.Equal(t, 1, rows[0].ToolCalls)
	assert.Equal(t, validation.Unverified, rows[1].Validation.Valid)

	back, err := ReadRun(store.RunPath("rg1", "scratch", "gpt-4o", "where_ts"))
	require.NoError(t, err)
	assert.Equal(t, b.FinishedAt, back.FinishedAt)
	assert.Equal(t, b.ToolCalls, back.ToolCalls)

	none, err := store.LoadRows("rg1", "strands")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWriteRunReplaces(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	rec := sampleRun("strands", "gpt-4o", "p")
	_, err := store.WriteRun(rec)
	require.NoError(t, err)
	rec.Turns = 5
	path, err := store.WriteRun(rec)
	require.NoError(t, err)

	back, err := ReadRun(path)
	require.NoError(t, err)
	assert.Equal(t, 5, back.Turns)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestRunGroups(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	for _, rg := range []string{"rg-b", "rg-a"} {
		rec := sampleRun("strands", "m", "p")
		rec.RunGroup = rg
		_, err := store.WriteRun(rec)
		require.NoError(t, err)
	}
	rec := sampleRun("scratch", "m", "p")
	rec.RunGroup = "rg-c"
	_, err := store.WriteRun(rec)
	require.NoError(t, err)

	groups, err := store.RunGroups("strands")
	require.NoError(t, err)
	assert.Equal(t, []string{"rg-a", "rg-b"}, groups)
}

func TestWriteComparison(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	summary := comparison.Compare(nil, nil, []string{"m"}, []string{"p"})
	path, err := store.WriteComparison("rg1", summary)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Root, "rg1", "comparison.json"), path)
	assert.FileExists(t, path)
}

func TestSnapshotsAreImmutable(t *testing.T) {
	store := NewStore(t.TempDir(), zaptest.NewLogger(t))
	lat, lon := 1.0, 2.0
	snap := &canonical.Snapshot{
		PromptVersion: "v1",
		FetchedAtUnix: 100,
		Entries:       map[string]canonical.Entry{"p": {Type: agentloop.PromptLocation, Lat: &lat, Lon: &lon}},
	}

	path, err := store.SaveSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Root, "canonical", "canonical_v1_100.json"), path)

	_, err = store.SaveSnapshot(snap)
	assert.True(t, errors.Is(err, ErrSnapshotExists))

	newer := *snap
	newer.FetchedAtUnix = 250
	_, err = store.SaveSnapshot(&newer)
	require.NoError(t, err)

	other := *snap
	other.PromptVersion = "v10"
	other.FetchedAtUnix = 999
	_, err = store.SaveSnapshot(&other)
	require.NoError(t, err)

	latest, latestPath, err := store.LatestSnapshot("v1")
	require.NoError(t, err)
	assert.Equal(t, int64(250), latest.FetchedAtUnix)
	assert.Equal(t, "canonical_v1_250.json", filepath.Base(latestPath))
	e, ok := latest.Entry("p")
	require.True(t, ok)
	assert.Equal(t, 1.0, *e.Lat)

	_, _, err = store.LatestSnapshot("v2")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestIndexUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	ix, err := OpenIndex(ctx, ":memory:")
	require.NoError(t, err)
	defer ix.Close()

	rows := []IndexRow{
		{RunGroup: "rg1", Framework: "strands", Model: "m1", PromptID: "p1", Valid: validation.Valid, Provenance: "tool-assisted", Turns: 2, ToolCalls: 1, Status: "complete", RunPath: "a", ValidationPath: "a_v"},
		{RunGroup: "rg1", Framework: "scratch", Model: "m1", PromptID: "p1", Valid: validation.Unverified, Provenance: "unverified_parametric", FailureReason: "no_canonical_entry", Turns: 1, Status: "complete", RunPath: "b", ValidationPath: "b_v"},
		{RunGroup: "rg2", Framework: "strands", Model: "m1", PromptID: "p2", Valid: validation.Invalid, Provenance: "parametric_failed", Turns: 1, Status: "error", RunPath: "c", ValidationPath: "c_v"},
	}
	for _, r := range rows {
		require.NoError(t, ix.Upsert(ctx, r))
	}

	updated := rows[0]
	updated.Valid = validation.Invalid
	updated.Turns = 4
	require.NoError(t, ix.Upsert(ctx, updated))

	got, err := ix.Rows(ctx, "rg1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, rows[1], got[0])
	assert.Equal(t, updated, got[1])

	keys, err := ix.Keys(ctx, "strands")
	require.NoError(t, err)
	assert.Equal(t, map[string][]comparison.Key{
		"rg1": {{Model: "m1", PromptID: "p1"}},
		"rg2": {{Model: "m1", PromptID: "p2"}},
	}, keys)
}

func TestOpenIndexOnDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), IndexFile)
	ix, err := OpenIndex(ctx, path)
	require.NoError(t, err)
	require.NoError(t, ix.Upsert(ctx, IndexRow{RunGroup: "rg", Framework: "scratch", Model: "m", PromptID: "p", Provenance: "parametric", Valid: validation.Valid, Status: "complete"}))
	require.NoError(t, ix.Close())

	ix, err = OpenIndex(ctx, path)
	require.NoError(t, err)
	defer ix.Close()
	got, err := ix.Rows(ctx, "rg")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, validation.Valid, got[0].Valid)

	_, err = OpenIndex(ctx, "")
	assert.Error(t, err)
}
