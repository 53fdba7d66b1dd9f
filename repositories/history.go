package repositories

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo/mutable"
)

var _ contract.IHistoryRepository = (*HistoryRepository)(nil)

const historyPrefix = "history:"

type HistoryRepository struct {
	mu  sync.Mutex
	db  *badger.DB
	log *slog.Logger
}

func NewHistoryRepository(db *badger.DB, log *slog.Logger) *HistoryRepository {
	return &HistoryRepository{db: db, log: log}
}

// Append persists a record in BadgerDB.
// The key is formatted as "history:{timestamp_padded}:{uuid}" to:
//  1. Keep chronological order with 19-digit zero padding (lexicographical order).
//  2. Never overwrite a record when two arrive at the same nanosecond.
//
// Appends are serialized by a single writer lock.
func (h *HistoryRepository) Append(record domain.HistoryRecord) error {
	key := recordKey(record)
	value := marshalRecord(record)

	h.mu.Lock()
	defer h.mu.Unlock()

	err := h.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	return nil
}

func recordKey(record domain.HistoryRecord) string {
	return fmt.Sprintf("%s%019d:%s", historyPrefix, record.At.UnixNano(), record.ID)
}

// List returns the most recent records, oldest first.
// A nil limit returns the whole history.
func (h *HistoryRepository) List(limit *int) ([]domain.HistoryRecord, error) {
	return h.scan(limit, func(domain.HistoryRecord) bool { return true })
}

// ListFor is List restricted to a single target (username, group or ALL).
func (h *HistoryRepository) ListFor(target string, limit *int) ([]domain.HistoryRecord, error) {
	return h.scan(limit, func(r domain.HistoryRecord) bool { return r.Target == target })
}

// scan walks the history backwards from the newest key so that a limit keeps
// the latest records, then restores chronological order.
func (h *HistoryRepository) scan(limit *int, keep func(domain.HistoryRecord) bool) ([]domain.HistoryRecord, error) {
	var records []domain.HistoryRecord
	err := h.db.View(func(txn *badger.Txn) error {
		prefix := []byte(historyPrefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// Let's go to the newest possible position history:9999999999999999999
		seekKey := append([]byte(historyPrefix), []byte("9999999999999999999;")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit != nil && len(records) == *limit {
				h.log.Debug(fmt.Sprintf("Maximum of %d records reached", *limit))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				record, err := unmarshalRecord(value)
				if err != nil {
					return err
				}
				if keep(record) {
					records = append(records, record)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	mutable.Reverse(records)
	return records, nil
}
