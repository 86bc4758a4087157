package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
)

const bucketName = "uploads"

// Entry is the last finished upload attempt of a log to one service
type Entry struct {
	LogID      string              `msgpack:"log_id" json:"log_id"`
	Service    domain.Service      `msgpack:"service" json:"service"`
	Encounter  string              `msgpack:"encounter" json:"encounter"`
	Status     domain.UploadStatus `msgpack:"status" json:"status"`
	URL        string              `msgpack:"url,omitempty" json:"url,omitempty"`
	RemoteID   string              `msgpack:"remote_id,omitempty" json:"remote_id,omitempty"`
	Error      string              `msgpack:"error,omitempty" json:"error,omitempty"`
	FinishedAt time.Time           `msgpack:"finished_at" json:"finished_at"`
}

// EntryFromLog builds the ledger entry for svc from a record snapshot
func EntryFromLog(d domain.LogData, svc domain.Service) Entry {
	state := d.Upload(svc)
	entry := Entry{
		LogID:      d.ID,
		Service:    svc,
		Encounter:  d.DisplayName(),
		FinishedAt: time.Now().UTC(),
	}
	if state != nil {
		entry.Status = state.Status
		entry.URL = state.URL
		entry.RemoteID = state.RemoteID
		entry.Error = state.Error
	}
	return entry
}

// Store is a BoltDB ledger of upload results that survives restarts
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the ledger at dbPath
func Open(dbPath string) (*Store, error) {
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb (file may be locked by another process): %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	log.Info().
		Str("db_path", dbPath).
		Msg("Upload history initialized")

	return &Store{db: db}, nil
}

// Put records entry, replacing the previous result of the same log and service
func (s *Store) Put(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	val, err := msgpack.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode history entry: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Put(makeKey(entry.Service, entry.LogID), val)
	})
	if err != nil {
		return fmt.Errorf("failed to store history entry: %w", err)
	}

	log.Debug().
		Str("log_id", entry.LogID).
		Str("service", string(entry.Service)).
		Str("status", string(entry.Status)).
		Msg("Upload history updated")
	return nil
}

// Get returns the entry for a log and service
func (s *Store) Get(ctx context.Context, svc domain.Service, logID string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}

	var entry Entry
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		val := b.Get(makeKey(svc, logID))
		if val == nil {
			return nil
		}
		found = true
		return msgpack.Unmarshal(val, &entry)
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to get history entry: %w", err)
	}

	return entry, found, nil
}

// List returns every entry, most recent first
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		return b.ForEach(func(k, v []byte) error {
			var entry Entry
			if err := msgpack.Unmarshal(v, &entry); err != nil {
				log.Warn().Err(err).Str("key", string(k)).Msg("Skipping corrupt history entry")
				return nil
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].FinishedAt.After(entries[j].FinishedAt)
	})
	return entries, nil
}

// Delete removes the entry for a log and service
func (s *Store) Delete(ctx context.Context, svc domain.Service, logID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Delete(makeKey(svc, logID))
	})
	if err != nil {
		return fmt.Errorf("failed to delete history entry: %w", err)
	}
	return nil
}

// Close closes the BoltDB database
func (s *Store) Close() error {
	log.Info().Msg("Closing upload history")
	return s.db.Close()
}

func makeKey(svc domain.Service, logID string) []byte {
	return []byte(string(svc) + ":" + logID)
}
