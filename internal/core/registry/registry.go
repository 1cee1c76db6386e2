// Package registry holds the entities known to a session, sharded by a
// hash of the entity id so that patch traffic on unrelated entities does
// not contend on one lock.
package registry

import (
	"encoding/binary"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/replica/internal/core/entity"
)

const DefaultShardCount = 16

type shard struct {
	mx       sync.RWMutex
	entities map[uint64]*entity.Entity
}

// Registry is a concurrent map of entity id to entity.
type Registry struct {
	shards  []shard
	count   int
	size    atomic.Int64
	version atomic.Uint64
}

func New(shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	r := &Registry{
		shards: make([]shard, shardCount),
		count:  shardCount,
	}
	for i := range r.shards {
		r.shards[i].entities = make(map[uint64]*entity.Entity)
	}
	return r
}

func shardHash(id uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], id)
	return xxhash.Sum64(buf[:])
}

func (r *Registry) shardFor(id uint64) *shard {
	return &r.shards[shardHash(id)%uint64(r.count)]
}

// Add stores e. It returns false, leaving the registry unchanged, if an
// entity with the same id is already present.
func (r *Registry) Add(e *entity.Entity) bool {
	sh := r.shardFor(e.ID())
	sh.mx.Lock()
	defer sh.mx.Unlock()
	if _, exists := sh.entities[e.ID()]; exists {
		return false
	}
	sh.entities[e.ID()] = e
	r.size.Add(1)
	r.version.Add(1)
	return true
}

func (r *Registry) Get(id uint64) (*entity.Entity, bool) {
	sh := r.shardFor(id)
	sh.mx.RLock()
	defer sh.mx.RUnlock()
	e, ok := sh.entities[id]
	return e, ok
}

// Remove deletes and returns the entity with the given id.
func (r *Registry) Remove(id uint64) (*entity.Entity, bool) {
	sh := r.shardFor(id)
	sh.mx.Lock()
	defer sh.mx.Unlock()
	e, ok := sh.entities[id]
	if !ok {
		return nil, false
	}
	delete(sh.entities, id)
	r.size.Add(-1)
	r.version.Add(1)
	return e, true
}

func (r *Registry) Len() int { return int(r.size.Load()) }

// Version increases on every Add and Remove.
func (r *Registry) Version() uint64 { return r.version.Load() }

func (r *Registry) ShardCount() int { return r.count }

// ForEach visits entities shard by shard until action returns false. The
// shard lock is not held while action runs.
func (r *Registry) ForEach(action func(e *entity.Entity) bool) {
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mx.RLock()
		batch := make([]*entity.Entity, 0, len(sh.entities))
		for _, e := range sh.entities {
			batch = append(batch, e)
		}
		sh.mx.RUnlock()

		for _, e := range batch {
			if !action(e) {
				return
			}
		}
	}
}

// Snapshot returns every entity ordered by id.
func (r *Registry) Snapshot() []*entity.Entity {
	out := make([]*entity.Entity, 0, r.Len())
	r.ForEach(func(e *entity.Entity) bool {
		out = append(out, e)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Clear removes every entity and returns them ordered by id.
func (r *Registry) Clear() []*entity.Entity {
	var out []*entity.Entity
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mx.Lock()
		for id, e := range sh.entities {
			out = append(out, e)
			delete(sh.entities, id)
			r.size.Add(-1)
		}
		sh.mx.Unlock()
	}
	r.version.Add(1)
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
