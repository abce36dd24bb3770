// Package registry persists rewritten model blobs and their metadata in
// an embedded key-value store, and can watch a directory for newly
// dropped model files.
package registry

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/weiqilab/katacore/internal/apperr"
)

const (
	blobPrefix = "blob:"
	metaPrefix = "meta:"
)

// Metadata describes one registered model: its board size, which
// back-end it was exported for, and whether the static-dims rewriter has
// already been applied to it.
type Metadata struct {
	// ID is a unique identifier minted on every Put, distinct from Name:
	// re-registering a model under the same name (e.g. after a rewrite)
	// still gets its own ID, so callers can tell two stored versions of
	// "model.onnx" apart.
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	BoardSize  int       `json:"boardSize"`
	SourceKind string    `json:"sourceKind"`
	Rewritten  bool      `json:"rewritten"`
	StoredAt   time.Time `json:"storedAt"`
}

// Registry wraps a Badger handle holding {name -> model bytes} and
// {name -> Metadata}, one database directory per registry instance.
type Registry struct {
	db *badger.DB
}

// Open opens (creating if necessary) a registry rooted at dir.
func Open(dir string) (*Registry, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, apperr.Wrap(apperr.LoadError, "registry: open failed", err)
	}
	return &Registry{db: db}, nil
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Put stores a model's bytes and metadata under name, overwriting any
// existing entry.
func (r *Registry) Put(name string, modelBytes []byte, meta Metadata) error {
	meta.ID = uuid.NewString()
	meta.Name = name
	meta.StoredAt = time.Now()

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return apperr.Wrap(apperr.ConfigurationError, "registry: marshal metadata failed", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(blobPrefix+name), modelBytes); err != nil {
			return err
		}
		return txn.Set([]byte(metaPrefix+name), metaBytes)
	})
	if err != nil {
		return apperr.Wrap(apperr.LoadError, "registry: put failed", err)
	}
	return nil
}

// Get loads a model's bytes and metadata by name.
func (r *Registry) Get(name string) ([]byte, Metadata, error) {
	var modelBytes []byte
	var meta Metadata

	err := r.db.View(func(txn *badger.Txn) error {
		blobItem, err := txn.Get([]byte(blobPrefix + name))
		if err != nil {
			return err
		}
		modelBytes, err = blobItem.ValueCopy(nil)
		if err != nil {
			return err
		}

		metaItem, err := txn.Get([]byte(metaPrefix + name))
		if err != nil {
			return err
		}
		return metaItem.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, Metadata{}, apperr.New(apperr.LoadError, "registry: model "+name+" not found")
	}
	if err != nil {
		return nil, Metadata{}, apperr.Wrap(apperr.LoadError, "registry: get failed", err)
	}
	return modelBytes, meta, nil
}

// List returns the metadata of every registered model.
func (r *Registry) List() ([]Metadata, error) {
	var out []Metadata
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(metaPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var meta Metadata
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			})
			if err != nil {
				return err
			}
			out = append(out, meta)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.LoadError, "registry: list failed", err)
	}
	return out, nil
}

// Delete removes a model's bytes and metadata.
func (r *Registry) Delete(name string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(blobPrefix + name)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Delete([]byte(metaPrefix + name)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.LoadError, "registry: delete failed", err)
	}
	return nil
}
