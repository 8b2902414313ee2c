package issuance

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jmcleod/ironrsa/storage"
)

// Namespace is the storage namespace holding all issuance records.
const Namespace = "ironrsa"

const (
	recordIssuer        = "issuer"
	recordIssuerName    = "issuer-cn"
	recordCertificate   = "certificate"
	recordCertificateCN = "certificate-cn"
)

// Store persists issuers and certificates in a storage.Repository.
//
// Common-name uniqueness is enforced with index records written through
// create-only PutCAS, so two concurrent creates cannot both succeed. Every
// multi-record change runs inside a single Batch.
type Store struct {
	repo storage.Repository
}

// NewStore wraps repo.
func NewStore(repo storage.Repository) *Store {
	return &Store{repo: repo}
}

// CreateIssuer stores a new issuer and reserves its common name.
func (s *Store) CreateIssuer(iss *Issuer) error {
	data, err := json.Marshal(iss)
	if err != nil {
		return fmt.Errorf("encoding issuer: %w", err)
	}
	err = s.repo.Batch(Namespace, func(tx storage.BatchTx) error {
		if err := tx.PutCAS(recordIssuerName, iss.CommonName, 0, &storage.Record{Data: []byte(iss.ID), Version: 1}); err != nil {
			if errors.Is(err, storage.ErrCASFailed) {
				return fmt.Errorf("vars record for %s: %w", iss.CommonName, ErrDuplicate)
			}
			return err
		}
		return tx.PutCAS(recordIssuer, iss.ID, 0, &storage.Record{Data: data, Version: 1})
	})
	if err != nil {
		return err
	}
	iss.Version = 1
	return nil
}

// GetIssuer loads an issuer by id.
func (s *Store) GetIssuer(id string) (*Issuer, error) {
	rec, err := s.repo.Get(Namespace, recordIssuer, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrIssuerNotFound
		}
		return nil, err
	}
	return decodeIssuer(rec)
}

// ListIssuers returns the issuers owned by userID, oldest first.
func (s *Store) ListIssuers(userID string) ([]*Issuer, error) {
	ids, err := s.repo.List(Namespace, recordIssuer)
	if err != nil {
		return nil, err
	}
	issuers := make([]*Issuer, 0, len(ids))
	for _, id := range ids {
		iss, err := s.GetIssuer(id)
		if err != nil {
			if errors.Is(err, ErrIssuerNotFound) {
				continue
			}
			return nil, err
		}
		if iss.UserID == userID {
			issuers = append(issuers, iss)
		}
	}
	sort.SliceStable(issuers, func(i, j int) bool {
		return issuers[i].CreatedAt.Before(issuers[j].CreatedAt)
	})
	return issuers, nil
}

// UpdateIssuer writes iss if its stored version still equals iss.Version.
func (s *Store) UpdateIssuer(iss *Issuer) error {
	return s.AdvanceStatus(iss, nil)
}

// AdvanceStatus writes iss (normally with a new status) and, when cert is
// non-nil, registers cert in the same batch. The write fails with
// ErrStatusConflict if the issuer changed since it was read, and with
// ErrDuplicate if the certificate common name is taken.
func (s *Store) AdvanceStatus(iss *Issuer, cert *Certificate) error {
	data, err := json.Marshal(iss)
	if err != nil {
		return fmt.Errorf("encoding issuer: %w", err)
	}
	next := iss.Version + 1
	err = s.repo.Batch(Namespace, func(tx storage.BatchTx) error {
		if cert != nil {
			if err := putCertificate(tx, cert); err != nil {
				return err
			}
		}
		if err := tx.PutCAS(recordIssuer, iss.ID, iss.Version, &storage.Record{Data: data, Version: next}); err != nil {
			if errors.Is(err, storage.ErrCASFailed) {
				return fmt.Errorf("issuer %s: %w", iss.ID, ErrStatusConflict)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	iss.Version = next
	return nil
}

// DeleteIssuer removes the issuer, its name reservation and every
// certificate issued under it. It returns the number of certificates removed.
func (s *Store) DeleteIssuer(id string) (int, error) {
	removed := 0
	err := s.repo.Batch(Namespace, func(tx storage.BatchTx) error {
		removed = 0
		rec, err := tx.Get(recordIssuer, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrIssuerNotFound
			}
			return err
		}
		iss, err := decodeIssuer(rec)
		if err != nil {
			return err
		}
		if err := tx.Delete(recordIssuer, id); err != nil {
			return err
		}
		if err := deleteIgnoringMissing(tx, recordIssuerName, iss.CommonName); err != nil {
			return err
		}

		certIDs, err := tx.List(recordCertificate)
		if err != nil {
			return err
		}
		for _, certID := range certIDs {
			rec, err := tx.Get(recordCertificate, certID)
			if err != nil {
				return err
			}
			cert, err := decodeCertificate(rec)
			if err != nil {
				return err
			}
			if cert.IssuerID != id {
				continue
			}
			if err := deleteCertificate(tx, cert); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// CertificateNameTaken reports whether a certificate already uses commonName.
func (s *Store) CertificateNameTaken(commonName string) (bool, error) {
	return s.exists(recordCertificateCN, commonName)
}

// GetCertificate loads a certificate by id.
func (s *Store) GetCertificate(id string) (*Certificate, error) {
	rec, err := s.repo.Get(Namespace, recordCertificate, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrCertificateNotFound
		}
		return nil, err
	}
	return decodeCertificate(rec)
}

// ListCertificates returns the certificates of an issuer, oldest first.
func (s *Store) ListCertificates(issuerID string) ([]*Certificate, error) {
	ids, err := s.repo.List(Namespace, recordCertificate)
	if err != nil {
		return nil, err
	}
	certs := make([]*Certificate, 0)
	for _, id := range ids {
		cert, err := s.GetCertificate(id)
		if err != nil {
			if errors.Is(err, ErrCertificateNotFound) {
				continue
			}
			return nil, err
		}
		if cert.IssuerID == issuerID {
			certs = append(certs, cert)
		}
	}
	sort.SliceStable(certs, func(i, j int) bool {
		return certs[i].CreatedAt.Before(certs[j].CreatedAt)
	})
	return certs, nil
}

// DeleteCertificate removes one certificate and its name reservation.
func (s *Store) DeleteCertificate(id string) error {
	return s.repo.Batch(Namespace, func(tx storage.BatchTx) error {
		rec, err := tx.Get(recordCertificate, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrCertificateNotFound
			}
			return err
		}
		cert, err := decodeCertificate(rec)
		if err != nil {
			return err
		}
		return deleteCertificate(tx, cert)
	})
}

func (s *Store) exists(recordType, id string) (bool, error) {
	_, err := s.repo.Get(Namespace, recordType, id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func putCertificate(tx storage.BatchTx, cert *Certificate) error {
	data, err := json.Marshal(cert)
	if err != nil {
		return fmt.Errorf("encoding certificate: %w", err)
	}
	if err := tx.PutCAS(recordCertificateCN, cert.CommonName, 0, &storage.Record{Data: []byte(cert.ID), Version: 1}); err != nil {
		if errors.Is(err, storage.ErrCASFailed) {
			return fmt.Errorf("certificate %s: %w", cert.CommonName, ErrDuplicate)
		}
		return err
	}
	return tx.PutCAS(recordCertificate, cert.ID, 0, &storage.Record{Data: data, Version: 1})
}

func deleteCertificate(tx storage.BatchTx, cert *Certificate) error {
	if err := tx.Delete(recordCertificate, cert.ID); err != nil {
		return err
	}
	return deleteIgnoringMissing(tx, recordCertificateCN, cert.CommonName)
}

func deleteIgnoringMissing(tx storage.BatchTx, recordType, id string) error {
	if err := tx.Delete(recordType, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

func decodeIssuer(rec *storage.Record) (*Issuer, error) {
	var iss Issuer
	if err := json.Unmarshal(rec.Data, &iss); err != nil {
		return nil, fmt.Errorf("decoding issuer: %w", err)
	}
	iss.Version = rec.Version
	return &iss, nil
}

func decodeCertificate(rec *storage.Record) (*Certificate, error) {
	var cert Certificate
	if err := json.Unmarshal(rec.Data, &cert); err != nil {
		return nil, fmt.Errorf("decoding certificate: %w", err)
	}
	return &cert, nil
}
