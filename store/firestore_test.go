package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFirestoreClient connects to the emulator (or a real project) named
// by FIRESTORE_PROJECT.
func testFirestoreClient(t *testing.T) *firestore.Client {
	t.Helper()
	projectID := os.Getenv("FIRESTORE_PROJECT")
	if projectID == "" {
		t.Skip("FIRESTORE_PROJECT not set, skipping Firestore tests")
	}
	client, err := firestore.NewClient(context.Background(), projectID)
	if err != nil {
		t.Fatalf("failed to create Firestore client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// uniqueCollection returns a unique collection name for test isolation.
func uniqueCollection(t *testing.T) string {
	return fmt.Sprintf("test-%s-%d", t.Name(), time.Now().UnixNano())
}

func cleanupCollection(t *testing.T, s *FirestoreStore, name string) {
	t.Helper()
	docs, _ := s.Collection(name).Get(context.Background())
	for _, d := range docs {
		s.Collection(name).Doc(d.ID()).Delete(context.Background())
	}
}

func TestFirestoreStore_AddGetUpdateDelete(t *testing.T) {
	s := NewFirestoreStore(testFirestoreClient(t))
	ctx := context.Background()
	name := uniqueCollection(t)
	t.Cleanup(func() { cleanupCollection(t, s, name) })

	ref, err := s.Collection(name).Add(ctx, map[string]any{"v": 1, "timestamp": s.ServerTimestamp()})
	require.NoError(t, err)

	snap, err := ref.Get(ctx)
	require.NoError(t, err)
	require.True(t, snap.Exists())
	assert.Equal(t, int64(1), snap.Data()["v"])
	assert.IsType(t, time.Time{}, snap.Data()["timestamp"])

	require.NoError(t, ref.Update(ctx, map[string]any{"v": 2}))
	snap, _ = ref.Get(ctx)
	assert.Equal(t, int64(2), snap.Data()["v"])

	require.NoError(t, ref.Delete(ctx))
	snap, err = ref.Get(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Exists())
}

func TestFirestoreStore_UpdateNotFound(t *testing.T) {
	s := NewFirestoreStore(testFirestoreClient(t))
	err := s.Collection(uniqueCollection(t)).Doc("missing").Update(context.Background(), map[string]any{"a": 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFirestoreStore_Where(t *testing.T) {
	s := NewFirestoreStore(testFirestoreClient(t))
	ctx := context.Background()
	name := uniqueCollection(t)
	t.Cleanup(func() { cleanupCollection(t, s, name) })

	for _, age := range []int{10, 30, 50} {
		_, err := s.Collection(name).Add(ctx, map[string]any{"age": age})
		require.NoError(t, err)
	}

	docs, err := s.Collection(name).Where("age", ">", float64(21)).Get(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestFirestoreStore_OnSnapshot(t *testing.T) {
	s := NewFirestoreStore(testFirestoreClient(t))
	ctx := context.Background()
	name := uniqueCollection(t)
	t.Cleanup(func() { cleanupCollection(t, s, name) })

	sizes := make(chan int, 16)
	unsub := s.Collection(name).OnSnapshot(func(docs []DocumentSnapshot) { sizes <- len(docs) }, nil)
	defer unsub()

	waitFor := func(want int) {
		t.Helper()
		deadline := time.After(10 * time.Second)
		for {
			select {
			case n := <-sizes:
				if n == want {
					return
				}
			case <-deadline:
				t.Fatalf("timeout waiting for snapshot of size %d", want)
			}
		}
	}

	waitFor(0)
	_, err := s.Collection(name).Add(ctx, map[string]any{"a": 1})
	require.NoError(t, err)
	waitFor(1)
}
