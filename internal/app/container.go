// Package app wires the server's components together.
package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.uber.org/dig"

	"github.com/jmcleod/ironrsa/api"
	"github.com/jmcleod/ironrsa/config"
	"github.com/jmcleod/ironrsa/easyrsa"
	"github.com/jmcleod/ironrsa/internal/util"
	"github.com/jmcleod/ironrsa/issuance"
	"github.com/jmcleod/ironrsa/storage"
	"github.com/jmcleod/ironrsa/storage/bbolt"
	"github.com/jmcleod/ironrsa/storage/memory"
	"github.com/jmcleod/ironrsa/storage/sqlstore"
)

const defaultDBFile = "ironrsa.db"

// BuildContainer registers constructors for every server component.
// Nothing is built until the container is invoked.
func BuildContainer(conf *config.Config, logger *slog.Logger) (*dig.Container, error) {
	container := dig.New()
	// provide config and logger
	if err := container.Provide(func() *config.Config { return conf }); err != nil {
		return nil, err
	}
	if err := container.Provide(func() *slog.Logger { return logger }); err != nil {
		return nil, err
	}
	// provide storage
	if err := container.Provide(NewRepository); err != nil {
		return nil, err
	}
	if err := container.Provide(issuance.NewStore); err != nil {
		return nil, err
	}
	// provide easyrsa
	if err := container.Provide(NewProvisioner); err != nil {
		return nil, err
	}
	if err := container.Provide(NewRunner); err != nil {
		return nil, err
	}
	// provide issuance manager
	if err := container.Provide(NewManager); err != nil {
		return nil, err
	}
	// provide http api
	if err := container.Provide(NewTokenAuthority); err != nil {
		return nil, err
	}
	if err := container.Provide(NewAPI); err != nil {
		return nil, err
	}
	return container, nil
}

// NewRepository opens the storage backend named by storage.driver. Backends
// holding files or connections implement io.Closer.
func NewRepository(conf *config.Config) (storage.Repository, error) {
	switch conf.Storage.Driver {
	case config.StorageMemory:
		return memory.NewRepository(), nil
	case config.StorageBBolt:
		path := conf.Storage.Path
		if path == "" {
			if err := os.MkdirAll(conf.Server.DataDir, 0o700); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
			path = filepath.Join(conf.Server.DataDir, defaultDBFile)
		}
		repo, err := bbolt.NewRepositoryFromFile(path, nil)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.StorageSQLite, config.StorageMySQL:
		db := conf.Storage.DB
		if conf.Storage.Driver == config.StorageSQLite && db.Address == "" {
			db.Address = conf.Server.DataDir
		}
		repo, err := sqlstore.Open(conf.Storage.Driver, &db)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", conf.Storage.Driver)
	}
}

func NewProvisioner(conf *config.Config, logger *slog.Logger) (*easyrsa.Provisioner, error) {
	return easyrsa.NewProvisioner(conf.EasyRSA, easyrsa.WithProvisionerLogger(logger))
}

func NewRunner(conf *config.Config, logger *slog.Logger) easyrsa.Runner {
	return easyrsa.NewExecutor(
		easyrsa.WithTimeout(conf.EasyRSA.CommandTimeout),
		easyrsa.WithExecutorLogger(logger),
	)
}

func NewManager(conf *config.Config, logger *slog.Logger, store *issuance.Store, prov *easyrsa.Provisioner, runner easyrsa.Runner) *issuance.Manager {
	return issuance.NewManager(store, prov, runner,
		issuance.WithLogger(logger),
		issuance.WithBestEffort(conf.EasyRSA.BestEffort),
		issuance.WithOpenVPN(conf.EasyRSA.OpenVPN),
	)
}

// NewTokenAuthority loads the signing secret and wipes the plaintext copy
// once it is sealed.
func NewTokenAuthority(conf *config.Config) (*api.TokenAuthority, error) {
	secret, err := conf.AuthSecret()
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(secret)
	return api.NewTokenAuthority(secret, conf.Auth.Issuer, conf.Auth.TokenTTL)
}

func NewAPI(logger *slog.Logger, manager *issuance.Manager, tokens *api.TokenAuthority) *api.API {
	return api.New(manager, tokens,
		api.WithLogger(logger),
		api.WithAlertFunc(func(e api.AlertEvent) {
			logger.Warn("alert", "type", string(e.Type), "message", e.Message, "count", e.Count)
		}),
	)
}
