package sqlstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironrsa/config"
	"github.com/jmcleod/ironrsa/storage/storagetest"
)

func TestSQLiteStorage(t *testing.T) {
	repo, err := Open(config.StorageSQLite, &config.DB{Address: t.TempDir(), DB: "records.db"})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	storagetest.Run(t, repo)
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open("postgres", &config.DB{})
	assert.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	dsn, err := mysqlDSN(&config.DB{
		Address:  "db.internal:3306",
		DB:       "ironrsa",
		Username: "pki",
		Password: "secret",
		Options:  "charset=utf8mb4",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, "pki:secret@tcp(db.internal:3306)/ironrsa?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestMySQLTLSConfigMissingCA(t *testing.T) {
	_, err := mysqlTLSConfig(&config.TLS{Enable: true, CA: "/nonexistent/ca.pem"})
	assert.Error(t, err)
}
