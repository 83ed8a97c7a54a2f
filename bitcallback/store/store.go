package store

import (
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/go-sql-driver/mysql"

	"github.com/secnot/bitcallback/bitcallback/command"
	"github.com/secnot/bitcallback/bitcallback/dispatch"
)

// farPast mirrors dispatch's sentinel for "immediately eligible", used when
// seeding a freshly created Callback row's last_retry.
var farPast = time.Unix(0, 0).UTC()

// Store is the durable store: a Gorm connection plus the
// transactional-scope helper every write goes through. It implements both
// chainmon.Store and dispatch.Store, and also the CRUD operations the
// admission layer needs.
type Store struct {
	db *gorm.DB
}

// Open connects to dialect/args (e.g. "mysql", dsn, or "sqlite3",
// "file::memory:?mode=memory&cache=shared" for tests) and ensures the three
// tables exist.
func Open(dialect string, args ...interface{}) (*Store, error) {
	db, err := gorm.Open(dialect, args...)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Subscription{}, &Callback{}, &ChainCursor{}).Error; err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx wraps fn in a transaction: commit on normal return, rollback and
// rethrow on error, connection always released back to the pool. All
// writes in this package go through it.
func (s *Store) WithTx(fn func(tx *gorm.DB) error) error {
	tx := s.db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		log.Debugf("transaction rolled back: %v", err)
		return err
	}

	return tx.Commit().Error
}

// --- chainmon.Store ---

// ActiveSubscriptions loads every Subscription still in the active state,
// for Chain Monitor Task startup.
func (s *Store) ActiveSubscriptions() ([]command.SubscriptionData, error) {
	var rows []Subscription
	if err := s.db.Where("state = ?", StateActive).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]command.SubscriptionData, len(rows))
	for i, r := range rows {
		out[i] = command.SubscriptionData{
			ID:          r.ID,
			Address:     r.Address,
			CallbackURL: r.CallbackURL,
			Expiration:  r.Expiration,
		}
	}
	return out, nil
}

// ExpireSubscriptions marks every subscription in ids as expired.
func (s *Store) ExpireSubscriptions(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.WithTx(func(tx *gorm.DB) error {
		return tx.Model(&Subscription{}).
			Where("id IN (?)", ids).
			Update("state", StateExpired).Error
	})
}

// LoadCursor returns the persisted chain cursor, or 0 if none exists yet.
func (s *Store) LoadCursor() (int32, error) {
	var row ChainCursor
	err := s.db.First(&row, chainCursorSingletonID).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.BlockNumber, nil
}

// SaveCursor persists height as the chain cursor, creating the singleton
// row on first use.
func (s *Store) SaveCursor(height int32) error {
	return s.WithTx(func(tx *gorm.DB) error {
		row := ChainCursor{ID: chainCursorSingletonID, BlockNumber: height}
		return tx.Save(&row).Error
	})
}

// --- dispatch.Store ---

// CreateCallback persists a fresh Callback row with retries = retriesMax+1
// and last_retry set far in the past, so the dispatcher's recovery query
// and its own in-memory state agree about its initial eligibility.
func (s *Store) CreateCallback(data command.CallbackData, retriesMax int32) error {
	return s.WithTx(func(tx *gorm.DB) error {
		row := Callback{
			ID:             data.ID,
			SubscriptionID: data.Subscription.ID,
			Txid:           data.Txid,
			Amount:         data.Amount,
			Created:        time.Now().UTC(),
			LastRetry:      farPast,
			Retries:        retriesMax + 1,
			Acknowledged:   false,
		}
		return tx.Create(&row).Error
	})
}

// AckCallback sets acknowledged = true; the row is never mutated again
// after this.
func (s *Store) AckCallback(id string) error {
	return s.WithTx(func(tx *gorm.DB) error {
		return tx.Model(&Callback{}).
			Where("id = ?", id).
			Update("acknowledged", true).Error
	})
}

// UpdateRetry persists the new retries/last_retry pair after a send
// attempt completes.
func (s *Store) UpdateRetry(id string, retries int32, lastRetry time.Time) error {
	return s.WithTx(func(tx *gorm.DB) error {
		return tx.Model(&Callback{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"retries":    retries,
				"last_retry": lastRetry,
			}).Error
	})
}

// LoadForSend loads everything needed to build one outbound request.
func (s *Store) LoadForSend(id string) (dispatch.CallbackRecord, error) {
	var row Callback
	if err := s.db.Preload("Subscription").First(&row, "id = ?", id).Error; err != nil {
		return dispatch.CallbackRecord{}, err
	}
	return toCallbackRecord(row), nil
}

// PendingCallbacks returns every unacknowledged callback with retries
// remaining, oldest last_retry first, for crash recovery.
func (s *Store) PendingCallbacks() ([]dispatch.PendingCallback, error) {
	var rows []Callback
	err := s.db.
		Where("acknowledged = ? AND retries > 0", false).
		Order("last_retry ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]dispatch.PendingCallback, len(rows))
	for i, r := range rows {
		out[i] = dispatch.PendingCallback{
			ID:        r.ID,
			Retries:   r.Retries,
			LastRetry: r.LastRetry,
		}
	}
	return out, nil
}

func toCallbackRecord(row Callback) dispatch.CallbackRecord {
	return dispatch.CallbackRecord{
		ID: row.ID,
		Subscription: dispatch.SubscriptionRef{
			ID:      row.Subscription.ID,
			Address: row.Subscription.Address,
		},
		CallbackURL:  row.Subscription.CallbackURL,
		Txid:         row.Txid,
		Amount:       row.Amount,
		Created:      row.Created,
		LastRetry:    row.LastRetry,
		Retries:      row.Retries,
		Acknowledged: row.Acknowledged,
	}
}
