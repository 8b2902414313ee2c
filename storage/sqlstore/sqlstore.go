// Package sqlstore implements storage.Repository on top of gorm, backed by
// either SQLite or MySQL.
package sqlstore

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jmcleod/ironrsa/storage"
)

const TblRecord = "tbl_record"

// recordRow uses a composite primary key (namespace, record_type, record_id)
// that mirrors the key space of the bbolt and in-memory backends.
type recordRow struct {
	Namespace  string `gorm:"column:namespace;primaryKey;size:128"`
	RecordType string `gorm:"column:record_type;primaryKey;size:64"`
	RecordID   string `gorm:"column:record_id;primaryKey;size:255"`
	Data       []byte `gorm:"column:data"`
	Version    uint64 `gorm:"column:version"`
}

func (recordRow) TableName() string {
	return TblRecord
}

// Store implements storage.Repository backed by a gorm database.
type Store struct {
	db *gorm.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository migrates the records table and returns a Repository using db.
func NewRepository(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Put(namespace, recordType, recordID string, record *storage.Record) error {
	return put(s.db, namespace, recordType, recordID, record)
}

func (s *Store) Get(namespace, recordType, recordID string) (*storage.Record, error) {
	return get(s.db, namespace, recordType, recordID)
}

func (s *Store) List(namespace, recordType string) ([]string, error) {
	return list(s.db, namespace, recordType)
}

func (s *Store) Delete(namespace, recordType, recordID string) error {
	return del(s.db, namespace, recordType, recordID)
}

func (s *Store) PutCAS(namespace, recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	return putCAS(s.db, namespace, recordType, recordID, expectedVersion, record)
}

// Batch runs fn inside a database transaction, rolled back if fn fails.
func (s *Store) Batch(namespace string, fn func(tx storage.BatchTx) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&sqlBatchTx{db: tx, namespace: namespace})
	})
}

func whereKey(db *gorm.DB, namespace, recordType, recordID string) *gorm.DB {
	return db.Where("namespace = ? AND record_type = ? AND record_id = ?", namespace, recordType, recordID)
}

func put(db *gorm.DB, namespace, recordType, recordID string, record *storage.Record) error {
	row := &recordRow{
		Namespace:  namespace,
		RecordType: recordType,
		RecordID:   recordID,
		Data:       record.Data,
		Version:    record.Version,
	}
	return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
}

func get(db *gorm.DB, namespace, recordType, recordID string) (*storage.Record, error) {
	var row recordRow
	err := whereKey(db, namespace, recordType, recordID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &storage.Record{Data: row.Data, Version: row.Version}, nil
}

func list(db *gorm.DB, namespace, recordType string) ([]string, error) {
	var ids []string
	err := db.Model(&recordRow{}).
		Where("namespace = ? AND record_type = ?", namespace, recordType).
		Order("record_id").
		Pluck("record_id", &ids).Error
	return ids, err
}

func del(db *gorm.DB, namespace, recordType, recordID string) error {
	tx := whereKey(db, namespace, recordType, recordID).Delete(&recordRow{})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// putCAS relies on the primary key for create-only writes and on a
// version-qualified UPDATE otherwise, so the check and the write are a single
// statement.
func putCAS(db *gorm.DB, namespace, recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	if expectedVersion == 0 {
		row := &recordRow{
			Namespace:  namespace,
			RecordType: recordType,
			RecordID:   recordID,
			Data:       record.Data,
			Version:    record.Version,
		}
		tx := db.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		if tx.Error != nil {
			return tx.Error
		}
		if tx.RowsAffected == 0 {
			return storage.ErrCASFailed
		}
		return nil
	}

	tx := whereKey(db.Model(&recordRow{}), namespace, recordType, recordID).
		Where("version = ?", expectedVersion).
		Updates(map[string]any{"data": record.Data, "version": record.Version})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return storage.ErrCASFailed
	}
	return nil
}

type sqlBatchTx struct {
	db        *gorm.DB
	namespace string
}

func (tx *sqlBatchTx) Get(recordType, recordID string) (*storage.Record, error) {
	return get(tx.db, tx.namespace, recordType, recordID)
}

func (tx *sqlBatchTx) List(recordType string) ([]string, error) {
	return list(tx.db, tx.namespace, recordType)
}

func (tx *sqlBatchTx) Put(recordType, recordID string, record *storage.Record) error {
	return put(tx.db, tx.namespace, recordType, recordID, record)
}

func (tx *sqlBatchTx) PutCAS(recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	return putCAS(tx.db, tx.namespace, recordType, recordID, expectedVersion, record)
}

func (tx *sqlBatchTx) Delete(recordType, recordID string) error {
	return del(tx.db, tx.namespace, recordType, recordID)
}
