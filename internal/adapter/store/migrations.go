package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

// CurrentSchemaVersion is the current cache schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var keySchemaVersion = []byte("schema_version")

// SchemaVersion returns the version recorded in the cache, 0 if none.
func (c *EmbeddingCache) SchemaVersion() (int, error) {
	version := 0
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keySchemaVersion)
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &version); err != nil {
			version = 0
		}
		return nil
	})
	return version, err
}

func (c *EmbeddingCache) setSchemaVersion(tx *bbolt.Tx, version int) error {
	data, err := json.Marshal(version)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketMeta).Put(keySchemaVersion, data)
}

// migrate stamps a fresh cache and clears one written by an unknown schema.
// Cached vectors are disposable, so every mismatch is resolved by clearing.
func (c *EmbeddingCache) migrate() error {
	version, err := c.SchemaVersion()
	if err != nil {
		return err
	}

	switch {
	case version == CurrentSchemaVersion:
		return nil
	case version == 0:
		return c.db.Update(func(tx *bbolt.Tx) error {
			return c.setSchemaVersion(tx, CurrentSchemaVersion)
		})
	default:
		if err := c.Clear(); err != nil {
			return fmt.Errorf("failed to clear cache from schema v%d: %w", version, err)
		}
		return c.db.Update(func(tx *bbolt.Tx) error {
			return c.setSchemaVersion(tx, CurrentSchemaVersion)
		})
	}
}

// Clear removes every cached embedding.
func (c *EmbeddingCache) Clear() error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketEmbeddings); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(bucketEmbeddings)
		return err
	})
}
