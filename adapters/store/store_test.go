package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/albert-vybestein/neobank/ports"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID   string `json:"id"`
	Seen bool   `json:"seen"`
}

func backends(t *testing.T) map[string]ports.RecordStore {
	t.Helper()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]ports.RecordStore{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"redis":  NewRedisStore(client),
	}
}

func TestRecordStore_ReadMissingCollection(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			data, err := s.Read(context.Background(), "nothing-here")
			require.NoError(t, err)
			assert.Nil(t, data)
		})
	}
}

func TestRecordStore_WriteThenRead(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Write(ctx, "things", []byte(`[{"id":"a"}]`)))
			require.NoError(t, s.Write(ctx, "things", []byte(`[{"id":"b"}]`)))

			data, err := s.Read(ctx, "things")
			require.NoError(t, err)
			assert.JSONEq(t, `[{"id":"b"}]`, string(data))
		})
	}
}

func TestCollection_UpdateAndAppend(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewCollection[record](s, "records")

			require.NoError(t, c.Append(ctx, record{ID: "1"}))
			require.NoError(t, c.Append(ctx, record{ID: "2"}))

			err := c.Update(ctx, func(rs []record) ([]record, bool, error) {
				for i := range rs {
					if rs[i].ID == "2" {
						rs[i].Seen = true
					}
				}
				return rs, true, nil
			})
			require.NoError(t, err)

			all, err := c.All(ctx)
			require.NoError(t, err)
			assert.Equal(t, []record{{ID: "1"}, {ID: "2", Seen: true}}, all)
		})
	}
}

func TestCollection_UpdateWithoutChangeDoesNotWrite(t *testing.T) {
	s := NewMemoryStore()
	c := NewCollection[record](s, "records")

	err := c.Update(context.Background(), func(rs []record) ([]record, bool, error) {
		return append(rs, record{ID: "ignored"}), false, nil
	})
	require.NoError(t, err)

	data, err := s.Read(context.Background(), "records")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestCollection_CorruptContentReadsEmpty(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Write(context.Background(), "records", []byte("{not json")))

	all, err := NewCollection[record](s, "records").All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFileStore_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), SessionsCollection, []byte("[]")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, SessionsCollection+".json", entries[0].Name())
}

func TestFileStore_RejectsPathTraversal(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Read(context.Background(), "../escape")
	assert.Error(t, err)
	assert.Error(t, s.Write(context.Background(), "a/b", []byte("[]")))
}

func TestMemoryStore_Clear(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Write(context.Background(), "records", []byte("[]")))
	s.Clear()

	data, err := s.Read(context.Background(), "records")
	require.NoError(t, err)
	assert.Nil(t, data)
}
