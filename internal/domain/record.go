// Package domain defines the user balance record, its composite key and the
// storage contract shared by the handlers and the store backends.
package domain

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/LCOGT/photonranch-userinfo/internal/numeric"
)

// Record field names.
const (
	FieldUserID              = "user_id"
	FieldLastUpdated         = "last_updated"
	FieldAvailableTime       = "available_time"
	FieldTimeAmount          = "time_amount"
	FieldPreviousLastUpdated = "previous_last_updated"
)

// Key addresses a single record: user_id is the hash key and last_updated the
// range key, so every mutation moves the record to a new key.
type Key struct {
	UserID      string `dynamodbav:"user_id" bson:"user_id" json:"user_id"`
	LastUpdated string `dynamodbav:"last_updated" bson:"last_updated" json:"last_updated"`
}

// Validate reports whether both key parts are present.
func (k Key) Validate() error {
	if strings.TrimSpace(k.UserID) == "" {
		return errors.New("user_id is required")
	}
	if strings.TrimSpace(k.LastUpdated) == "" {
		return errors.New("last_updated is required")
	}
	return nil
}

// StringSet is a string-set attribute. It stays a set across a read and
// rewrite of the record instead of degrading to a list.
type StringSet []string

// BinarySet is a binary-set attribute.
type BinarySet [][]byte

// UserRecord is a stored user item. Numeric values are held as decimal.Decimal
// between the storage boundary and the response encoder.
type UserRecord map[string]any

// NewUserRecord returns a record holding only the key attributes.
func NewUserRecord(key Key) UserRecord {
	return UserRecord{
		FieldUserID:      key.UserID,
		FieldLastUpdated: key.LastUpdated,
	}
}

// Key extracts the composite key from the record attributes.
func (r UserRecord) Key() Key {
	userID, _ := r[FieldUserID].(string)
	lastUpdated, _ := r[FieldLastUpdated].(string)

	return Key{UserID: userID, LastUpdated: lastUpdated}
}

// AvailableTime returns the balance; ok is false when the attribute is absent
// or not a number.
func (r UserRecord) AvailableTime() (decimal.Decimal, bool) {
	raw, found := r[FieldAvailableTime]
	if !found {
		return decimal.Zero, false
	}

	return numeric.ToDecimal(raw)
}

// SetAvailableTime overwrites the balance.
func (r UserRecord) SetAvailableTime(amount decimal.Decimal) {
	r[FieldAvailableTime] = amount
}

// SetLastUpdated moves the record to a new range key.
func (r UserRecord) SetLastUpdated(lastUpdated string) {
	r[FieldLastUpdated] = lastUpdated
}

// Clone returns a shallow copy of the record.
func (r UserRecord) Clone() UserRecord {
	out := make(UserRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Plain returns the record with decimals converted for JSON encoding.
func (r UserRecord) Plain() map[string]any {
	return numeric.PlainMap(map[string]any(r))
}
