package native

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// ShaderCache caches compiled SPIR-V indexed by a hash of the WGSL source.
//
// naga compilation dominates program creation, and a host typically loads
// the same kernels on every device it opens. ShaderCache is safe for
// concurrent use. It uses RWMutex with double-check locking for reads.
type ShaderCache struct {
	mu      sync.RWMutex
	modules map[uint64][]uint32

	hits   uint64
	misses uint64

	// compile is swapped in tests.
	compile func(string) ([]uint32, error)
}

// NewShaderCache creates an empty cache.
func NewShaderCache() *ShaderCache {
	return &ShaderCache{
		modules: make(map[uint64][]uint32),
		compile: CompileShaderToSPIRV,
	}
}

// defaultShaderCache is shared by every Device.
var defaultShaderCache = NewShaderCache()

// HashShaderSource returns the cache key of a WGSL source.
func HashShaderSource(source string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(source))
	return h.Sum64()
}

// GetOrCompile returns the cached SPIR-V for source, compiling it on a miss.
// Failed compilations are not cached. The returned slice must not be
// modified.
func (c *ShaderCache) GetOrCompile(source string) ([]uint32, error) {
	key := HashShaderSource(source)

	c.mu.RLock()
	if words, ok := c.modules[key]; ok {
		c.mu.RUnlock()
		atomic.AddUint64(&c.hits, 1)
		return words, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if words, ok := c.modules[key]; ok {
		atomic.AddUint64(&c.hits, 1)
		return words, nil
	}

	words, err := c.compile(source)
	if err != nil {
		return nil, err
	}
	c.modules[key] = words
	atomic.AddUint64(&c.misses, 1)
	return words, nil
}

// Stats returns the number of cache hits and misses.
func (c *ShaderCache) Stats() (hits, misses uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses)
}

// Len returns the number of cached modules.
func (c *ShaderCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.modules)
}

// Clear drops every cached module and resets the statistics.
func (c *ShaderCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modules = make(map[uint64][]uint32)
	atomic.StoreUint64(&c.hits, 0)
	atomic.StoreUint64(&c.misses, 0)
}
