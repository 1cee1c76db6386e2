package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/replica/internal/core/entity"
	"github.com/zeusync/replica/internal/core/observability/log"
)

func newEntity(id uint64) *entity.Entity {
	return entity.New(id, entity.TypeObject, 1, log.Nop())
}

func TestAddGetRemove(t *testing.T) {
	r := New(0)
	assert.Equal(t, DefaultShardCount, r.ShardCount())

	e := newEntity(5)
	require.True(t, r.Add(e))
	assert.False(t, r.Add(newEntity(5)), "duplicate id")
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get(5)
	require.True(t, ok)
	assert.Same(t, e, got)

	removed, ok := r.Remove(5)
	require.True(t, ok)
	assert.Same(t, e, removed)
	_, ok = r.Remove(5)
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestIdsSpreadAcrossShards(t *testing.T) {
	used := map[uint64]bool{}
	for id := uint64(0); id < 256; id++ {
		used[shardHash(id)%8] = true
	}
	assert.Len(t, used, 8)
	assert.Equal(t, shardHash(42), shardHash(42))
}

func TestSnapshotAndClear(t *testing.T) {
	r := New(4)
	for _, id := range []uint64{9, 3, 7, 1} {
		r.Add(newEntity(id))
	}
	version := r.Version()

	ids := func(es []*entity.Entity) []uint64 {
		out := make([]uint64, len(es))
		for i, e := range es {
			out[i] = e.ID()
		}
		return out
	}
	assert.Equal(t, []uint64{1, 3, 7, 9}, ids(r.Snapshot()))

	visited := 0
	r.ForEach(func(*entity.Entity) bool { visited++; return visited < 2 })
	assert.Equal(t, 2, visited)

	assert.Equal(t, []uint64{1, 3, 7, 9}, ids(r.Clear()))
	assert.Zero(t, r.Len())
	assert.Greater(t, r.Version(), version)
}

func TestConcurrentAccess(t *testing.T) {
	r := New(4)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := uint64(w*1000 + i)
				r.Add(newEntity(id))
				r.Get(id)
				if i%2 == 0 {
					r.Remove(id)
				}
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 400, r.Len())
	assert.Len(t, r.Snapshot(), 400)
}
