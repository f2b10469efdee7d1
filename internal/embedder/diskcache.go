package embedder

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var embeddingsBucket = []byte("embeddings")

// DiskCache persists embeddings in a bbolt file so re-indexing after a
// restart does not pay for the same vectors twice
type DiskCache struct {
	db *bolt.DB
}

// OpenDiskCache opens or creates the cache file at path
func OpenDiskCache(path string) (*DiskCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(embeddingsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &DiskCache{db: db}, nil
}

// Get returns the cached vector for key
func (d *DiskCache) Get(key string) ([]float32, bool, error) {
	var vec []float32
	err := d.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(embeddingsBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		// raw is only valid inside the transaction
		v, err := decodeVector(raw)
		vec = v
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return vec, vec != nil, nil
}

// Set stores vec under key
func (d *DiskCache) Set(key string, vec []float32) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(embeddingsBucket).Put([]byte(key), encodeVector(vec))
	})
}

// Len returns the number of cached vectors
func (d *DiskCache) Len() int {
	n := 0
	_ = d.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(embeddingsBucket).Stats().KeyN
		return nil
	})
	return n
}

// Close closes the underlying file
func (d *DiskCache) Close() error {
	return d.db.Close()
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached vector: %d bytes", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
