package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalLoadMissingFileReturnsEmptyDocument(t *testing.T) {
	j := newJournal(t.TempDir(), "never-written")
	doc, err := j.load()
	require.NoError(t, err)
	assert.Empty(t, doc.Records)
}

func TestJournalSaveThenLoadRoundTrips(t *testing.T) {
	j := newJournal(t.TempDir(), "notes")
	doc := &journalDocument{
		Collection: "notes",
		Dimension:  3,
		Metric:     "cosine",
		Records: []journalRecord{
			{ID: 1, Vector: []float32{1, 0, 0}, Payload: map[string]interface{}{"tag": "a"}},
			{ID: 2, Vector: []float32{0, 1, 0}, Payload: map[string]interface{}{"tag": "b"}},
		},
	}
	require.NoError(t, j.save(doc))

	loaded, err := j.load()
	require.NoError(t, err)
	assert.Equal(t, "notes", loaded.Collection)
	assert.Equal(t, 3, loaded.Dimension)
	require.Len(t, loaded.Records, 2)
	assert.Equal(t, int64(1), loaded.Records[0].ID)
	assert.Equal(t, "a", loaded.Records[0].Payload["tag"])
}

func TestJournalSaveOverwritesPreviousContent(t *testing.T) {
	j := newJournal(t.TempDir(), "notes")
	require.NoError(t, j.save(&journalDocument{Collection: "notes", Records: []journalRecord{{ID: 1}}}))
	require.NoError(t, j.save(&journalDocument{Collection: "notes", Records: []journalRecord{{ID: 2}}}))

	loaded, err := j.load()
	require.NoError(t, err)
	require.Len(t, loaded.Records, 1)
	assert.Equal(t, int64(2), loaded.Records[0].ID)
}

func TestJournalSaveLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	j := newJournal(dir, "notes")
	require.NoError(t, j.save(&journalDocument{Collection: "notes"}))

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestJournalRemoveIsIdempotentOnMissingFile(t *testing.T) {
	j := newJournal(t.TempDir(), "ghost")
	require.NoError(t, j.remove())
	require.NoError(t, j.remove())
}

func TestJournalRemoveDeletesExistingFile(t *testing.T) {
	dir := t.TempDir()
	j := newJournal(dir, "notes")
	require.NoError(t, j.save(&journalDocument{Collection: "notes"}))

	require.NoError(t, j.remove())

	doc, err := j.load()
	require.NoError(t, err)
	assert.Empty(t, doc.Records)
}
