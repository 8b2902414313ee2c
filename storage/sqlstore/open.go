package sqlstore

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	driver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jmcleod/ironrsa/config"
)

const mysqlTLSConfigName = "ironrsa"

// Open connects to the database selected by driver (config.StorageSQLite or
// config.StorageMySQL) and returns a migrated Repository.
func Open(driverName string, conf *config.DB) (*Store, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch driverName {
	case config.StorageSQLite:
		db, err = NewSqlite3(conf.Address, conf.DB, conf.Options, conf.Debug)
		if err != nil {
			return nil, err
		}
		// sqlite allows a single writer.
		if err = setMaxConn(db, 1, 0); err != nil {
			return nil, err
		}
	case config.StorageMySQL:
		db, err = NewMySQL(conf)
		if err != nil {
			return nil, err
		}
		if err = setMaxConn(db, conf.MaxOpenConn, conf.MaxIdleConn); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driverName)
	}
	return NewRepository(db)
}

func setMaxConn(db *gorm.DB, maxOpenConn, maxIdleConn int) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if maxOpenConn != 0 {
		sqlDB.SetMaxOpenConns(maxOpenConn)
	}
	if maxIdleConn != 0 {
		sqlDB.SetMaxIdleConns(maxIdleConn)
	}
	return nil
}

// NewSqlite3 opens dataDir/dbName. option is a URL query string appended to
// the DSN; WAL journaling and a busy timeout are always set.
func NewSqlite3(dataDir, dbName, option string, debug bool) (*gorm.DB, error) {
	values, err := url.ParseQuery(option)
	if err != nil {
		return nil, fmt.Errorf("parsing sqlite options: %w", err)
	}
	values.Set("_journal_mode", "WAL")
	if values.Get("_busy_timeout") == "" {
		values.Set("_busy_timeout", "5000")
	}
	dsn := filepath.Join(dataDir, dbName) + "?" + values.Encode()

	db, err := gorm.Open(
		sqlite.Open(dsn),
		&gorm.Config{
			SkipDefaultTransaction:                   true,
			PrepareStmt:                              true,
			DisableForeignKeyConstraintWhenMigrating: true,
			CreateBatchSize:                          100,
		})
	if err != nil {
		return nil, err
	}
	if debug {
		db = db.Debug()
	}
	return db, nil
}

func NewMySQL(conf *config.DB) (*gorm.DB, error) {
	dsn, err := mysqlDSN(conf)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(
		mysql.New(mysql.Config{
			DriverName: "mysql",
			DSN:        dsn,
		}),
		&gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
			IgnoreRelationshipsWhenMigrating:         true,
		})
	if err != nil {
		return nil, err
	}
	if conf.Debug {
		db = db.Debug()
	}
	return db, nil
}

func mysqlDSN(conf *config.DB) (string, error) {
	mc := driver.NewConfig()
	mc.User = conf.Username
	mc.Passwd = conf.Password
	mc.Net = "tcp"
	mc.Addr = conf.Address
	mc.DBName = conf.DB
	mc.ParseTime = true

	if conf.Options != "" {
		values, err := url.ParseQuery(conf.Options)
		if err != nil {
			return "", fmt.Errorf("parsing mysql options: %w", err)
		}
		mc.Params = make(map[string]string, len(values))
		for k := range values {
			mc.Params[k] = values.Get(k)
		}
	}

	if conf.TLS != nil && conf.TLS.Enable {
		tlsConfig, err := mysqlTLSConfig(conf.TLS)
		if err != nil {
			return "", err
		}
		if err := driver.RegisterTLSConfig(mysqlTLSConfigName, tlsConfig); err != nil {
			return "", fmt.Errorf("sql: failed to register tls config: %w", err)
		}
		mc.TLSConfig = mysqlTLSConfigName
	}
	return mc.FormatDSN(), nil
}

func mysqlTLSConfig(conf *config.TLS) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: conf.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	if conf.Cert != "" && conf.Key != "" {
		cert, err := tls.LoadX509KeyPair(conf.Cert, conf.Key)
		if err != nil {
			return nil, fmt.Errorf("loading mysql client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	if conf.CA != "" {
		pem, err := os.ReadFile(conf.CA)
		if err != nil {
			return nil, fmt.Errorf("reading mysql ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", conf.CA)
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}
