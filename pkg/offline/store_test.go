package offline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, "queue", []byte(`[1]`)))
	require.NoError(t, s.Set(ctx, "queue", []byte(`[1,2]`)))
	got, err := s.Get(ctx, "queue")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(got))

	require.NoError(t, s.Remove(ctx, "queue"))
	_, err = s.Get(ctx, "queue")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, s.Remove(ctx, "queue"), "removing twice is not an error")
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	v := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", v))
	v[0] = 'x'
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "offline"))
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFileStore_RejectsPathKeys(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, s.Set(context.Background(), "../escape", []byte("x")))
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "offline.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestQueue_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "offline.db")

	s1, err := OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	q1 := NewQueue(s1, &recordingTransport{})
	require.NoError(t, q1.Enqueue(ctx, mustRecord(t, submitURL, map[string]string{"patientId": "temp-1"})))
	require.NoError(t, s1.Close())

	s2, err := OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer s2.Close()
	tr := &recordingTransport{}
	q2 := NewQueue(s2, tr)

	records, err := q2.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.JSONEq(t, `{"patientId":"temp-1"}`, string(records[0].Body))

	_, err = q2.SyncAll(ctx)
	require.NoError(t, err)
	assert.Len(t, tr.sent, 1)
}
