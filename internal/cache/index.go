package cache

import (
	"iter"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const indexShardCount = 32

// Index 是 id → Entry 的内存映射，Store 通过它判断“什么存在”。
// 实现必须允许并发读写不同 id，且不依赖单一全局锁。
type Index interface {
	TryGet(id string) (Entry, bool)
	// Upsert 无条件写入条目（后写者胜出）。
	Upsert(entry Entry)
	// Add 仅在 id 不存在时写入，返回最终保留的条目以及是否为本次写入。
	Add(entry Entry) (Entry, bool)
	Remove(id string) (Entry, bool)
	// Scan 逐个分片快照后再回调，迭代期间可以安全地 Remove。
	Scan() iter.Seq2[string, Entry]
	Len() int
}

// ShardedIndex 将条目按 xxhash(id) 分散到多个分片，每个分片独立加锁。
type ShardedIndex struct {
	shards [indexShardCount]indexShard
}

type indexShard struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewIndex 创建空的分片索引。
func NewIndex() *ShardedIndex {
	idx := &ShardedIndex{}
	for i := range idx.shards {
		idx.shards[i].entries = make(map[string]Entry)
	}
	return idx
}

func (i *ShardedIndex) shard(id string) *indexShard {
	return &i.shards[xxhash.Sum64String(id)%indexShardCount]
}

func (i *ShardedIndex) TryGet(id string) (Entry, bool) {
	s := i.shard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	return entry, ok
}

func (i *ShardedIndex) Upsert(entry Entry) {
	s := i.shard(entry.ID)
	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.mu.Unlock()
}

func (i *ShardedIndex) Add(entry Entry) (Entry, bool) {
	s := i.shard(entry.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[entry.ID]; ok {
		return existing, false
	}
	s.entries[entry.ID] = entry
	return entry, true
}

func (i *ShardedIndex) Remove(id string) (Entry, bool) {
	s := i.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	return entry, ok
}

func (i *ShardedIndex) Scan() iter.Seq2[string, Entry] {
	return func(yield func(string, Entry) bool) {
		for n := range i.shards {
			s := &i.shards[n]
			s.mu.RLock()
			snapshot := make([]Entry, 0, len(s.entries))
			for _, entry := range s.entries {
				snapshot = append(snapshot, entry)
			}
			s.mu.RUnlock()

			for _, entry := range snapshot {
				if !yield(entry.ID, entry) {
					return
				}
			}
		}
	}
}

func (i *ShardedIndex) Len() int {
	total := 0
	for n := range i.shards {
		s := &i.shards[n]
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}
