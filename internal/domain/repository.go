package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserRepository performs record lookups and key-moving replacements against
// a Table.
type UserRepository struct {
	table Table
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(table Table) *UserRepository {
	return &UserRepository{table: table}
}

// GetUserInfo looks up the record stored at exactly key. A missing record is
// reported through exists=false with an empty record, not an error.
func (r *UserRepository) GetUserInfo(ctx context.Context, key Key) (bool, UserRecord, error) {
	if r == nil || r.table == nil {
		return false, UserRecord{}, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return false, UserRecord{}, errors.New("context is required")
	}
	if err := key.Validate(); err != nil {
		return false, UserRecord{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	record, found, err := r.table.Get(ctx, key)
	if err != nil {
		return false, UserRecord{}, fmt.Errorf("get user: %w", err)
	}
	if !found {
		return false, UserRecord{}, nil
	}

	return true, record, nil
}

// Latest returns the record with the newest last_updated for userID.
func (r *UserRepository) Latest(ctx context.Context, userID string) (bool, UserRecord, error) {
	if r == nil || r.table == nil {
		return false, UserRecord{}, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return false, UserRecord{}, errors.New("context is required")
	}
	if strings.TrimSpace(userID) == "" {
		return false, UserRecord{}, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}

	record, found, err := r.table.Latest(ctx, userID)
	if err != nil {
		return false, UserRecord{}, fmt.Errorf("latest user: %w", err)
	}
	if !found {
		return false, UserRecord{}, nil
	}

	return true, record, nil
}

// Replace deletes the record at oldKey and inserts record under its own key.
// The two writes are not atomic: a failure after the delete loses the record.
func (r *UserRepository) Replace(ctx context.Context, oldKey Key, record UserRecord) (WriteAck, error) {
	if r == nil || r.table == nil {
		return WriteAck{}, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return WriteAck{}, errors.New("context is required")
	}
	if err := record.Key().Validate(); err != nil {
		return WriteAck{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if _, err := r.table.Delete(ctx, oldKey); err != nil {
		return WriteAck{}, fmt.Errorf("delete user: %w", err)
	}

	ack, err := r.table.Put(ctx, record)
	if err != nil {
		return WriteAck{}, fmt.Errorf("put user: %w", err)
	}

	return ack, nil
}
