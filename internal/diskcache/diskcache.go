// Package diskcache is an optional local disk cache for fetched slivers
// and metadata, backed by Pebble. A metadata or sliver fetch whose entry
// is cached is served from disk instead of a storage node; slivers that
// are not cached are still fetched from nodes. Writes are
// non-blocking (NoSync); a background goroutine syncs the WAL every
// defaultSyncInterval (100ms), trading that much durability for write latency on
// what is, after all, a disposable cache of remotely-recoverable data.
package diskcache

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"walrus/internal/types"
)

const defaultSyncInterval = 100 * time.Millisecond

// Cache is a Pebble-backed local cache keyed by blob ID and sliver
// identity.
type Cache struct {
	db       *pebble.DB
	stopSync chan struct{}
	wg       sync.WaitGroup
}

// Open opens (or creates) a disk cache at path.
func Open(path string) (*Cache, error) {
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(32 << 20),
		MemTableSize:                16 << 20,
		MemTableStopWritesThreshold: 2,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}

	c := &Cache{db: db, stopSync: make(chan struct{})}
	c.startSyncLoop()

	return c, nil
}

// Close stops the sync goroutine, flushes, and closes the database.
func (c *Cache) Close() error {
	close(c.stopSync)
	c.wg.Wait()

	if err := c.sync(); err != nil {
		return err
	}
	return c.db.Close()
}

func (c *Cache) startSyncLoop() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(defaultSyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = c.sync()
			case <-c.stopSync:
				return
			}
		}
	}()
}

func (c *Cache) sync() error {
	return c.db.LogData(nil, pebble.Sync)
}

func metadataKey(blobID types.BlobID) []byte {
	key := make([]byte, 0, 9+32)
	key = append(key, "meta/"...)
	key = append(key, blobID[:]...)
	return key
}

func sliverKey(blobID types.BlobID, pairIndex int, primary bool) []byte {
	key := make([]byte, 0, 5+32+1+4)
	key = append(key, "sliv/"...)
	key = append(key, blobID[:]...)
	if primary {
		key = append(key, 'p')
	} else {
		key = append(key, 's')
	}
	var idxBuf [4]byte
	binary.BigEndian.PutUint32(idxBuf[:], uint32(pairIndex))
	key = append(key, idxBuf[:]...)
	return key
}

// PutMetadata caches a blob's metadata.
func (c *Cache) PutMetadata(blobID types.BlobID, rootHash [32]byte, unencodedLength uint64) error {
	value := make([]byte, 40)
	copy(value[:32], rootHash[:])
	binary.LittleEndian.PutUint64(value[32:], unencodedLength)
	return c.db.Set(metadataKey(blobID), value, pebble.NoSync)
}

// GetMetadata returns the cached metadata for a blob, or ok=false if not
// cached.
func (c *Cache) GetMetadata(blobID types.BlobID) (meta types.BlobMetadata, ok bool, err error) {
	value, closer, getErr := c.db.Get(metadataKey(blobID))
	if getErr == pebble.ErrNotFound {
		return types.BlobMetadata{}, false, nil
	}
	if getErr != nil {
		return types.BlobMetadata{}, false, getErr
	}
	defer closer.Close()

	if len(value) != 40 {
		return types.BlobMetadata{}, false, nil
	}

	meta.BlobID = blobID
	copy(meta.RootHash[:], value[:32])
	meta.UnencodedLength = binary.LittleEndian.Uint64(value[32:])

	return meta, true, nil
}

// PutSliver caches one sliver's raw bytes.
func (c *Cache) PutSliver(blobID types.BlobID, pairIndex int, primary bool, data []byte) error {
	return c.db.Set(sliverKey(blobID, pairIndex, primary), data, pebble.NoSync)
}

// GetSliver returns a cached sliver's bytes, or ok=false if not cached.
func (c *Cache) GetSliver(blobID types.BlobID, pairIndex int, primary bool) (data []byte, ok bool, err error) {
	value, closer, getErr := c.db.Get(sliverKey(blobID, pairIndex, primary))
	if getErr == pebble.ErrNotFound {
		return nil, false, nil
	}
	if getErr != nil {
		return nil, false, getErr
	}
	defer closer.Close()

	out := make([]byte, len(value))
	copy(out, value)

	return out, true, nil
}

// CountPrimarySlivers returns how many distinct primary slivers are
// cached for a blob, used to decide whether reconstruction can be
// attempted from disk alone.
func (c *Cache) CountPrimarySlivers(blobID types.BlobID) (int, error) {
	prefix := make([]byte, 0, 5+32+1)
	prefix = append(prefix, "sliv/"...)
	prefix = append(prefix, blobID[:]...)
	prefix = append(prefix, 'p')

	upperBound := prefixUpperBound(prefix)

	iter, err := c.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	count := 0
	for iter.First(); iter.Valid(); iter.Next() {
		count++
	}

	return count, iter.Error()
}

func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper
		}
	}
	return nil
}
