// This file contains code controlling the entity cache.

package server

import (
	"sort"
	"sync"
	"time"

	"github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"
	"github.com/juju/errors"

	"github.com/lynxkite/lynxkite/epgm/disk"
	"github.com/lynxkite/lynxkite/epgm/epgm"
)

// EntityCache keeps computed collections in memory. Once their estimated
// size exceeds maxMem the least recently used ones are dropped.
type EntityCache struct {
	sync.Mutex
	cache         map[disk.GUID]cacheEntry
	totalMemUsage int
	maxMem        int
}

func NewEntityCache(maxMemMB int) *EntityCache {
	return &EntityCache{
		cache:  make(map[disk.GUID]cacheEntry),
		maxMem: maxMemMB * 1024 * 1024,
	}
}

type cacheEntry struct {
	collection *epgm.GraphCollection
	timestamp  int64 // The last time this entity was accessed
	memUsage   int
}

func (entityCache *EntityCache) Get(guid disk.GUID) (*epgm.GraphCollection, bool) {
	ts := ourTimestamp()
	entityCache.Lock()
	defer entityCache.Unlock()
	entry, exists := entityCache.cache[guid]
	if exists {
		entry.timestamp = ts
		entityCache.cache[guid] = entry
		return entry.collection, true
	}
	return nil, false
}

func (entityCache *EntityCache) Clear() {
	entityCache.Lock()
	defer entityCache.Unlock()
	entityCache.cache = make(map[disk.GUID]cacheEntry)
	entityCache.totalMemUsage = 0
}

// MemUsage returns the estimated size of the cached collections.
func (entityCache *EntityCache) MemUsage() int {
	entityCache.Lock()
	defer entityCache.Unlock()
	return entityCache.totalMemUsage
}

// Set puts the collection in the cache and drops old items if the cache grew
// too big.
func (entityCache *EntityCache) Set(guid disk.GUID, c *epgm.GraphCollection) {
	memUsage := estimatedMemUsage(c)
	entityCache.Lock()
	defer entityCache.Unlock()
	// An entity that is already there keeps its timestamp. This happens when
	// a request is repeated to recreate some other lost output.
	if _, exists := entityCache.cache[guid]; exists {
		return
	}
	entityCache.cache[guid] = cacheEntry{
		collection: c,
		timestamp:  ourTimestamp(),
		memUsage:   memUsage,
	}
	entityCache.totalMemUsage += memUsage
	entityCache.maybeGarbageCollect()
}

func NotInCacheError(kind string, guid disk.GUID) error {
	// Dropping something right after loading it means the cache is too small.
	return errors.NotFoundf(
		"%v %v in memory (increase EPGM_CACHED_ENTITIES_MAX_MEM_MB?)", kind, guid)
}

type entityEvictionItem struct {
	guid      disk.GUID
	timestamp int64
	memUsage  int
}

func (entityCache *EntityCache) maybeGarbageCollect() {
	howMuchMemoryToRecycle := entityCache.totalMemUsage - entityCache.maxMem
	if howMuchMemoryToRecycle <= 0 {
		return
	}
	start := ourTimestamp()
	evictionCandidates := make([]entityEvictionItem, 0, len(entityCache.cache))
	for guid, e := range entityCache.cache {
		evictionCandidates = append(evictionCandidates, entityEvictionItem{
			guid:      guid,
			timestamp: e.timestamp,
			memUsage:  e.memUsage,
		})
	}
	// Nanosecond timestamps put inputs before the outputs computed from them.
	sort.Slice(evictionCandidates, func(i, j int) bool {
		return evictionCandidates[i].timestamp < evictionCandidates[j].timestamp
	})

	memEvicted := 0
	itemsEvicted := 0
	for i := 0; i < len(evictionCandidates) && memEvicted < howMuchMemoryToRecycle; i++ {
		guid := evictionCandidates[i].guid
		log.Debug("evicting {{guid}}", "guid", guid, "size", humanize.Bytes(uint64(evictionCandidates[i].memUsage)))
		delete(entityCache.cache, guid)
		memEvicted += evictionCandidates[i].memUsage
		itemsEvicted++
	}
	log.Info("evicted {{count}} entities (out of {{total}}), estimated size: {{size}}",
		"count", itemsEvicted, "total", len(evictionCandidates),
		"size", humanize.Bytes(uint64(memEvicted)), "duration", time.Duration(ourTimestamp()-start))
	entityCache.totalMemUsage -= memEvicted
}

func ourTimestamp() int64 {
	// This must be precise
	return time.Now().UnixNano()
}

// estimatedMemUsage walks the records of the collection. A failed collection
// holds no records.
func estimatedMemUsage(c *epgm.GraphCollection) int {
	total := 0
	if heads, err := c.CollectHeads(); err == nil {
		total += size.Of(heads)
	}
	if vertices, err := c.CollectVertices(); err == nil {
		total += size.Of(vertices)
	}
	if edges, err := c.CollectEdges(); err == nil {
		total += size.Of(edges)
	}
	return total
}
