// Package storage provides the storage abstraction layer for issuer and
// certificate records.
package storage

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrCASFailed is returned when a compare-and-swap version check fails.
	ErrCASFailed = errors.New("CAS version mismatch")
)

// Record is a stored document. Data is opaque to the repository; Version is
// maintained by callers and checked by PutCAS.
type Record struct {
	Data    []byte `json:"data"`
	Version uint64 `json:"version,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	return &Record{
		Data:    append([]byte(nil), r.Data...),
		Version: r.Version,
	}
}

// BatchTx provides reads and writes within an atomic transaction.
// The namespace is scoped to the batch, so methods don't require it.
type BatchTx interface {
	Get(recordType string, recordID string) (*Record, error)
	List(recordType string) ([]string, error)
	Put(recordType string, recordID string, record *Record) error
	PutCAS(recordType string, recordID string, expectedVersion uint64, record *Record) error
	Delete(recordType string, recordID string) error
}

// Repository defines the interface for record storage.
//
// PutCAS with expectedVersion 0 is create-only: it fails with ErrCASFailed
// when the record already exists. Otherwise the stored version must equal
// expectedVersion.
type Repository interface {
	Put(namespace string, recordType string, recordID string, record *Record) error
	Get(namespace string, recordType string, recordID string) (*Record, error)
	List(namespace string, recordType string) ([]string, error)
	Delete(namespace string, recordType string, recordID string) error
	PutCAS(namespace string, recordType string, recordID string, expectedVersion uint64, record *Record) error
	Batch(namespace string, fn func(tx BatchTx) error) error
}
