// Package pipeline stages preprocessed chunks on disk and feeds them to
// training as fixed-size batches.
//
// Each chunk of the sample budget becomes a Task: a memoized invocation of
// the preprocessing engine, keyed by a content hash of its exact call
// signature. Resolving a task either returns the previously computed tensors
// from the BadgerDB archive or computes and stores them. The Generator then
// walks an ordered task list forever, slicing each resolved chunk into
// mini-batches, optionally prefetching the next chunk on a background
// worker.
package pipeline

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"

	"github.com/openhep/tensorprep/preprocess"
	"github.com/openhep/tensorprep/profile"
	"github.com/openhep/tensorprep/tensor"
)

// ChunkSpec is the full invocation signature of one preprocessing chunk.
// Two specs with identical content share one archive slot regardless of
// process or host.
type ChunkSpec struct {
	Pairs           []preprocess.LabelDir
	Start           int
	SamplesPerLabel int
	Profiles        []*profile.ObjectProfile
	Observables     []string
	Seed            int64
}

// Key returns the content hash identifying this spec in the archive.
func (s ChunkSpec) Key() (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// rng derives the chunk's random source. Folding the window start into the
// seed keeps chunks of one campaign deterministic but mutually independent.
func (s ChunkSpec) rng() *rand.Rand {
	return rand.New(rand.NewSource(s.Seed + int64(s.Start)))
}

// Task resolves to one chunk's (X, Y) tensors. Resolve is idempotent: a
// previously computed result is returned from the archive without
// recomputation.
type Task interface {
	Key() string
	Resolve() ([]*tensor.Dense, *tensor.Dense, error)
}

// Cache is the disk-backed task archive.
type Cache struct {
	db *badger.DB
}

// OpenCache opens (or creates) the archive directory.
func OpenCache(dir string) (*Cache, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", dir, err)
	}
	return &Cache{db: db}, nil
}

// Close releases the archive.
func (c *Cache) Close() error { return c.db.Close() }

// Submit wraps spec into a memoized task. No work happens until Resolve.
func (c *Cache) Submit(spec ChunkSpec) (Task, error) {
	key, err := spec.Key()
	if err != nil {
		return nil, err
	}
	return &chunkTask{cache: c, spec: spec, key: key}, nil
}

// chunkPayload is the gob shape of an archived chunk.
type chunkPayload struct {
	X []*tensor.Dense
	Y *tensor.Dense
}

type chunkTask struct {
	cache *Cache
	spec  ChunkSpec
	key   string
}

func (t *chunkTask) Key() string { return t.key }

func (t *chunkTask) Resolve() ([]*tensor.Dense, *tensor.Dense, error) {
	if X, Y, ok, err := t.cache.load(t.key); err != nil {
		return nil, nil, err
	} else if ok {
		log.Debug().Str("key", t.key).Int("start", t.spec.Start).Msg("archive hit")
		return X, Y, nil
	}

	log.Debug().Str("key", t.key).Int("start", t.spec.Start).
		Int("samples_per_label", t.spec.SamplesPerLabel).Msg("archive miss, preprocessing chunk")
	X, Y, err := preprocess.Preprocess(t.spec.Pairs, t.spec.Start, t.spec.SamplesPerLabel,
		t.spec.Profiles, t.spec.Observables, t.spec.rng())
	if err != nil {
		return nil, nil, err
	}
	if err := t.cache.store(t.key, X, Y); err != nil {
		return nil, nil, err
	}
	return X, Y, nil
}

func (c *Cache) load(key string) ([]*tensor.Dense, *tensor.Dense, bool, error) {
	var payload chunkPayload
	found := false
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&payload); err != nil {
				return fmt.Errorf("decode archived chunk %s: %w", key, err)
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return nil, nil, false, err
	}
	return payload.X, payload.Y, found, nil
}

func (c *Cache) store(key string, X []*tensor.Dense, Y *tensor.Dense) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(chunkPayload{X: X, Y: Y}); err != nil {
		return fmt.Errorf("encode chunk %s: %w", key, err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), buf.Bytes())
	})
}

// PlanChunks splits a per-label window into stride-sized chunks and submits
// one task per chunk, in window order.
func (c *Cache) PlanChunks(pairs []preprocess.LabelDir, w preprocess.Window, stride int,
	profiles []*profile.ObjectProfile, observables []string, seed int64) ([]Task, error) {

	var tasks []Task
	for _, chunk := range preprocess.Chunks(w, stride) {
		t, err := c.Submit(ChunkSpec{
			Pairs:           pairs,
			Start:           chunk.Start,
			SamplesPerLabel: chunk.Count,
			Profiles:        profiles,
			Observables:     observables,
			Seed:            seed,
		})
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
