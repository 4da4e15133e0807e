// Package storage is the persistent block index: three logical
// keyspaces in one embedded key-value store (§4.7 C3). Grounded on the
// three-keyspace layout of the spec and backed by github.com/boltdb/bolt,
// an indirect dependency of the teacher promoted to direct here — it is
// the natural fit for an embedded, transactional, opaque-KV block store,
// and its Update/View transactions give the atomic three-key write the
// spec asks for.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"

	"github.com/empower1/chainnode/internal/chaintypes"
	"github.com/empower1/chainnode/internal/ledger"
)

var (
	blocksBucket  = []byte("blocks")
	heightsBucket = []byte("heights")
	metaBucket    = []byte("meta")
	lastIndexKey  = []byte("last_index")
)

// Store is the bolt-backed block index.
type Store struct {
	db     *bolt.DB
	logger *zap.SugaredLogger
}

// Open opens (creating if necessary) the bolt database at path and
// ensures all three buckets exist.
func Open(path string, logger *zap.SugaredLogger) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open database at %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{blocksBucket, heightsBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: failed to initialize buckets: %w", err)
	}

	if logger != nil {
		logger.Infow("storage opened", "path", path)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// StoreBlock writes all three keys inside a single bolt transaction:
// block body (JSON), height→hash, and the last_index marker. Bolt gives
// this true atomicity — a crash mid-write leaves none of the three keys
// changed, stronger than the spec's "should be ordered" language.
func (s *Store) StoreBlock(block *ledger.Block) error {
	hash := block.Header.Hash()
	body, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("storage: failed to marshal block %s: %w", hash, err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(blocksBucket).Put(hash[:], body); err != nil {
			return err
		}
		if err := tx.Bucket(heightsBucket).Put(encodeHeight(block.Header.Index), hash[:]); err != nil {
			return err
		}
		return tx.Bucket(metaBucket).Put(lastIndexKey, encodeHeight(block.Header.Index))
	})
	if err != nil {
		return fmt.Errorf("storage: failed to store block %s: %w", hash, err)
	}

	if s.logger != nil {
		s.logger.Infow("block stored", "index", block.Header.Index, "hash", hash.String())
	}
	return nil
}

// GetBlockByHash returns the block stored under hash. A missing key
// returns (nil, nil) — absence is nullable success, not an error (§4.7).
func (s *Store) GetBlockByHash(hash chaintypes.Hash) (*ledger.Block, error) {
	var block *ledger.Block
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(blocksBucket).Get(hash[:])
		if raw == nil {
			return nil
		}
		var b ledger.Block
		if err := json.Unmarshal(raw, &b); err != nil {
			return fmt.Errorf("storage: failed to unmarshal block %s: %w", hash, err)
		}
		block = &b
		return nil
	})
	return block, err
}

// GetBlockByHeight looks up the hash at height, then loads the block. A
// missing height returns (nil, nil).
func (s *Store) GetBlockByHeight(height uint64) (*ledger.Block, error) {
	var hash chaintypes.Hash
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(heightsBucket).Get(encodeHeight(height))
		if raw == nil {
			return nil
		}
		copy(hash[:], raw)
		found = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return s.GetBlockByHash(hash)
}

// LastIndex returns the height of the most recently stored block and
// whether any block has ever been stored.
func (s *Store) LastIndex() (height uint64, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(metaBucket).Get(lastIndexKey)
		if raw == nil {
			return nil
		}
		height = decodeHeight(raw)
		ok = true
		return nil
	})
	return height, ok, err
}

func encodeHeight(h uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, h)
	return buf
}

func decodeHeight(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}
