package domain

import "context"

// Table is the key-value store holding user records. Implementations are
// point-lookup only: Get never scans, and Latest reads the newest range key
// for a single hash key.
type Table interface {
	Get(ctx context.Context, key Key) (UserRecord, bool, error)
	Delete(ctx context.Context, key Key) (WriteAck, error)
	Put(ctx context.Context, record UserRecord) (WriteAck, error)
	Latest(ctx context.Context, userID string) (UserRecord, bool, error)
	Ping(ctx context.Context) error
}

// WriteAck is the storage engine's acknowledgment of a write, returned verbatim
// as the body of successful mutations.
type WriteAck struct {
	ResponseMetadata ResponseMetadata `json:"ResponseMetadata"`
}

// ResponseMetadata carries the backend request id and status.
type ResponseMetadata struct {
	RequestID      string `json:"RequestId"`
	HTTPStatusCode int    `json:"HTTPStatusCode"`
}

// NewWriteAck builds an acknowledgment for a successful write.
func NewWriteAck(requestID string) WriteAck {
	return WriteAck{ResponseMetadata: ResponseMetadata{RequestID: requestID, HTTPStatusCode: 200}}
}
