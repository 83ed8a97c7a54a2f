package store

import (
	"time"

	"github.com/jinzhu/gorm"
)

// Page is a single page of a paginated listing.
type Page struct {
	Total   int
	Page    int
	PerPage int
	Pages   int
}

func newPage(total, page, perPage int) Page {
	pages := total / perPage
	if total%perPage != 0 {
		pages++
	}
	return Page{Total: total, Page: page, PerPage: perPage, Pages: pages}
}

// CreateSubscription inserts a new Subscription row in the active state.
func (s *Store) CreateSubscription(address, callbackURL string, expiration time.Time) (Subscription, error) {
	row := Subscription{
		Address:     address,
		CallbackURL: callbackURL,
		Created:     time.Now().UTC(),
		Expiration:  expiration,
		State:       StateActive,
	}
	err := s.WithTx(func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
	return row, err
}

// CancelSubscription sets a Subscription's state to canceled, provided it
// is still active. State never moves back to active.
func (s *Store) CancelSubscription(id int64) error {
	return s.WithTx(func(tx *gorm.DB) error {
		return tx.Model(&Subscription{}).
			Where("id = ? AND state = ?", id, StateActive).
			Update("state", StateCanceled).Error
	})
}

// GetSubscription loads one subscription by id.
func (s *Store) GetSubscription(id int64) (Subscription, error) {
	var row Subscription
	err := s.db.First(&row, id).Error
	return row, err
}

// ListSubscriptions returns one page of subscriptions ordered by id.
func (s *Store) ListSubscriptions(page, perPage int) ([]Subscription, Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}

	var total int
	if err := s.db.Model(&Subscription{}).Count(&total).Error; err != nil {
		return nil, Page{}, err
	}

	var rows []Subscription
	err := s.db.Order("id ASC").Limit(perPage).Offset((page - 1) * perPage).Find(&rows).Error
	if err != nil {
		return nil, Page{}, err
	}

	return rows, newPage(total, page, perPage), nil
}

// GetCallback loads one callback by id, with its subscription preloaded.
func (s *Store) GetCallback(id string) (Callback, error) {
	var row Callback
	err := s.db.Preload("Subscription").First(&row, "id = ?", id).Error
	return row, err
}

// ListCallbacks returns one page of callbacks for a subscription, newest
// first.
func (s *Store) ListCallbacks(subscriptionID int64, page, perPage int) ([]Callback, Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}

	var total int
	if err := s.db.Model(&Callback{}).Where("subscription_id = ?", subscriptionID).Count(&total).Error; err != nil {
		return nil, Page{}, err
	}

	var rows []Callback
	err := s.db.Where("subscription_id = ?", subscriptionID).
		Order("created DESC").
		Limit(perPage).Offset((page - 1) * perPage).
		Find(&rows).Error
	if err != nil {
		return nil, Page{}, err
	}

	return rows, newPage(total, page, perPage), nil
}
