package issuance

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironrsa/storage"
	"github.com/jmcleod/ironrsa/storage/bbolt"
	"github.com/jmcleod/ironrsa/storage/memory"
)

func storeBackends(t *testing.T) map[string]storage.Repository {
	t.Helper()
	db, err := bbolt.NewRepositoryFromFile(filepath.Join(t.TempDir(), "ironrsa.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return map[string]storage.Repository{
		"memory": memory.NewRepository(),
		"bbolt":  db,
	}
}

func testIssuer(id, cn string) *Issuer {
	p := exampleParams(cn)
	p.normalize()
	return &Issuer{ID: id, UserID: owner, IssuerParams: p, Status: StatusCreatedVars, CreatedAt: time.Now().UTC()}
}

func TestStore_StaleStatusRejected(t *testing.T) {
	for name, repo := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			s := NewStore(repo)
			require.NoError(t, s.CreateIssuer(testIssuer("i1", "example.org")))

			first, err := s.GetIssuer("i1")
			require.NoError(t, err)
			second, err := s.GetIssuer("i1")
			require.NoError(t, err)

			first.Status = StatusInitializedPKI
			require.NoError(t, s.AdvanceStatus(first, nil))
			assert.Equal(t, uint64(2), first.Version)

			second.Status = StatusInitializedPKI
			err = s.AdvanceStatus(second, &Certificate{ID: "c1", CommonName: "x.example.org", Category: CategoryServer, IssuerID: "i1"})
			require.ErrorIs(t, err, ErrStatusConflict)

			// The certificate written in the failed batch was rolled back.
			taken, err := s.CertificateNameTaken("x.example.org")
			require.NoError(t, err)
			assert.False(t, taken)
			_, err = s.GetCertificate("c1")
			assert.ErrorIs(t, err, ErrCertificateNotFound)
		})
	}
}

// issue advances iss with cert in one batch, as an issuance step does.
func issue(t *testing.T, s *Store, iss *Issuer, cert *Certificate) error {
	t.Helper()
	iss.Status = StatusGeneratedClient
	return s.AdvanceStatus(iss, cert)
}

func TestStore_AdvanceStatus_DuplicateCertificate(t *testing.T) {
	for name, repo := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			s := NewStore(repo)
			iss := testIssuer("i1", "example.org")
			require.NoError(t, s.CreateIssuer(iss))
			require.NoError(t, issue(t, s, iss, &Certificate{ID: "c1", CommonName: "a.example.org", Category: CategoryClient, IssuerID: "i1"}))
			err := issue(t, s, iss, &Certificate{ID: "c2", CommonName: "a.example.org", Category: CategoryClient, IssuerID: "i1"})
			require.ErrorIs(t, err, ErrDuplicate)

			// The failed batch left the issuer version alone.
			stored, err := s.GetIssuer("i1")
			require.NoError(t, err)
			assert.Equal(t, iss.Version, stored.Version)

			certs, err := s.ListCertificates("i1")
			require.NoError(t, err)
			require.Len(t, certs, 1)
			assert.Equal(t, "c1", certs[0].ID)
		})
	}
}

func TestStore_DeleteIssuer(t *testing.T) {
	for name, repo := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			s := NewStore(repo)
			issuers := map[string]*Issuer{
				"i1": testIssuer("i1", "example.org"),
				"i2": testIssuer("i2", "other.org"),
			}
			for _, iss := range issuers {
				require.NoError(t, s.CreateIssuer(iss))
			}
			for _, c := range []*Certificate{
				{ID: "c1", CommonName: "example.org", Category: CategoryCA, IssuerID: "i1"},
				{ID: "c2", CommonName: "vpn.example.org", Category: CategoryServer, IssuerID: "i1"},
				{ID: "c3", CommonName: "other.org", Category: CategoryCA, IssuerID: "i2"},
			} {
				require.NoError(t, issue(t, s, issuers[c.IssuerID], c))
			}

			removed, err := s.DeleteIssuer("i1")
			require.NoError(t, err)
			assert.Equal(t, 2, removed)

			_, err = s.GetIssuer("i1")
			assert.ErrorIs(t, err, ErrIssuerNotFound)
			certs, err := s.ListCertificates("i1")
			require.NoError(t, err)
			assert.Empty(t, certs)
			certs, err = s.ListCertificates("i2")
			require.NoError(t, err)
			assert.Len(t, certs, 1)

			_, err = s.DeleteIssuer("i1")
			assert.ErrorIs(t, err, ErrIssuerNotFound)

			// The name reservation went with the issuer.
			require.NoError(t, s.CreateIssuer(testIssuer("i3", "example.org")))
		})
	}
}

func TestStore_IssuerVersionNotSerialized(t *testing.T) {
	repo := memory.NewRepository()
	s := NewStore(repo)
	iss := testIssuer("i1", "example.org")
	require.NoError(t, s.CreateIssuer(iss))

	rec, err := repo.Get(Namespace, recordIssuer, "i1")
	require.NoError(t, err)
	assert.NotContains(t, string(rec.Data), "Version")
	assert.Equal(t, uint64(1), rec.Version)
}
