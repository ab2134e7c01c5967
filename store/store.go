package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/axiomesh/axiom-kit/storage"
	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/axiomesh/govproof/journal"
	"github.com/axiomesh/govproof/state"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	snapshotPrefix = "snapshot/"
	recordPrefix   = "record/"

	latestSnapshotKey = "latestSnapshot"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyCommitted = errors.New("record already committed")
)

// Committed is a record as it was handed to the committer.
type Committed struct {
	Mode    string `json:"mode"`
	Journal []byte `json:"journal"`
	Proof   []byte `json:"proof"`
}

// Store keeps snapshots and committed records in leveldb.
type Store struct {
	db     storage.Storage
	logger logrus.FieldLogger
}

var _ journal.Committer = (*Store)(nil)

func Open(path string, logger logrus.FieldLogger) (*Store, error) {
	db, err := leveldb.New(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open leveldb at %s", path)
	}
	return New(db, logger), nil
}

func New(db storage.Storage, logger logrus.FieldLogger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func snapshotKey(block uint64) []byte {
	key := []byte(snapshotPrefix)
	return binary.BigEndian.AppendUint64(key, block)
}

// PutSnapshot stores snapshot under its block number. Reads already stored
// for the same block are kept, so evaluations at one block share a snapshot.
func (s *Store) PutSnapshot(snapshot *state.Snapshot) error {
	if existing := s.db.Get(snapshotKey(snapshot.Header.BlockNumber)); existing != nil {
		merged, err := state.DecodeSnapshot(existing)
		if err != nil {
			return err
		}
		if err := merged.Merge(snapshot); err != nil {
			return err
		}
		snapshot = merged
	}

	data, err := snapshot.Encode()
	if err != nil {
		return err
	}
	s.db.Put(snapshotKey(snapshot.Header.BlockNumber), data)

	latest := make([]byte, 8)
	binary.BigEndian.PutUint64(latest, snapshot.Header.BlockNumber)
	s.db.Put([]byte(latestSnapshotKey), latest)

	s.logger.WithFields(logrus.Fields{
		"block": snapshot.Header.BlockNumber,
		"reads": len(snapshot.Keys()),
	}).Debug("snapshot stored")
	return nil
}

// GetSnapshot loads the snapshot taken at block. Block 0 loads the most
// recently stored one.
func (s *Store) GetSnapshot(block uint64) (*state.Snapshot, error) {
	if block == 0 {
		latest := s.db.Get([]byte(latestSnapshotKey))
		if latest == nil {
			return nil, errors.Wrap(ErrNotFound, "no snapshot stored")
		}
		block = binary.BigEndian.Uint64(latest)
	}

	data := s.db.Get(snapshotKey(block))
	if data == nil {
		return nil, errors.Wrapf(ErrNotFound, "snapshot at block %d", block)
	}
	return state.DecodeSnapshot(data)
}

// Commit stores the encoded record with its proof. A record key is written
// once; committing it again fails.
func (s *Store) Commit(_ context.Context, record journal.Record, proof []byte) error {
	key := []byte(recordPrefix + record.Key())
	if s.db.Has(key) {
		return errors.Wrap(ErrAlreadyCommitted, record.Key())
	}

	encoded, err := record.Encode()
	if err != nil {
		return err
	}
	data, err := json.Marshal(&Committed{
		Mode:    record.Mode().String(),
		Journal: encoded,
		Proof:   proof,
	})
	if err != nil {
		return errors.Wrap(err, "marshal committed record")
	}
	s.db.Put(key, data)

	s.logger.WithFields(logrus.Fields{
		"key":     record.Key(),
		"journal": fmt.Sprintf("%d bytes", len(encoded)),
	}).Info("record committed")
	return nil
}

func (s *Store) Record(key string) (*Committed, error) {
	data := s.db.Get([]byte(recordPrefix + key))
	if data == nil {
		return nil, errors.Wrap(ErrNotFound, key)
	}
	c := &Committed{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "unmarshal committed record")
	}
	return c, nil
}
