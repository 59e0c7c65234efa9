package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	bucketEmbeddings = []byte("embeddings")
	bucketMeta       = []byte("meta")
)

// EmbeddingCache persists embeddings keyed by model name and text hash so a
// rebuild over unchanged text does not run the model again. Each model gets
// its own nested bucket.
type EmbeddingCache struct {
	db *bbolt.DB
}

type storedVector struct {
	Vector []float32 `json:"v"`
}

func NewEmbeddingCache(path string) (*EmbeddingCache, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketEmbeddings, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	c := &EmbeddingCache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate embedding cache: %w", err)
	}
	return c, nil
}

func textKey(text string) []byte {
	hash := sha256.Sum256([]byte(text))
	return []byte(hex.EncodeToString(hash[:16]))
}

// Get returns the cached vectors for texts, keyed by position in texts.
// Texts without an entry are absent from the map.
func (c *EmbeddingCache) Get(model string, texts []string) (map[int][]float32, error) {
	found := make(map[int][]float32)
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEmbeddings).Bucket([]byte(model))
		if b == nil {
			return nil
		}
		for i, text := range texts {
			data := b.Get(textKey(text))
			if data == nil {
				continue
			}
			var stored storedVector
			if err := json.Unmarshal(data, &stored); err != nil {
				continue // Skip corrupted entries
			}
			if len(stored.Vector) == 0 {
				continue
			}
			found[i] = stored.Vector
		}
		return nil
	})
	return found, err
}

// Put stores vectors[i] as the embedding of texts[i] under model.
func (c *EmbeddingCache) Put(model string, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("cannot cache %d vectors for %d texts", len(vectors), len(texts))
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketEmbeddings).CreateBucketIfNotExists([]byte(model))
		if err != nil {
			return fmt.Errorf("failed to create model bucket: %w", err)
		}
		for i, text := range texts {
			data, err := json.Marshal(storedVector{Vector: vectors[i]})
			if err != nil {
				return err
			}
			if err := b.Put(textKey(text), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of cached embeddings for model.
func (c *EmbeddingCache) Count(model string) (int, error) {
	n := 0
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEmbeddings).Bucket([]byte(model))
		if b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

func (c *EmbeddingCache) Close() error {
	return c.db.Close()
}
