package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/ironrsa/api"
	"github.com/jmcleod/ironrsa/config"
	"github.com/jmcleod/ironrsa/internal/app"
	"github.com/jmcleod/ironrsa/internal/logging"
	"github.com/jmcleod/ironrsa/internal/util"
	"github.com/jmcleod/ironrsa/storage"
)

var (
	port    int
	dataDir string
	tlsCert string
	tlsKey  string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the issuance API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}
		applyServerFlags(cmd, conf)

		logger, logCloser, err := logging.New(conf.Log)
		if err != nil {
			return err
		}
		defer logCloser.Close()

		container, err := app.BuildContainer(conf, logger)
		if err != nil {
			return err
		}

		var (
			a    *api.API
			repo storage.Repository
		)
		if err := container.Invoke(func(built *api.API, r storage.Repository) {
			a, repo = built, r
		}); err != nil {
			return fmt.Errorf("failed to build server: %w", err)
		}
		if c, ok := repo.(io.Closer); ok {
			defer c.Close()
		}

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Use(api.SecurityHeaders)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		tlsConfig, err := serverTLSConfig(conf.Server, logger)
		if err != nil {
			return err
		}

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", conf.Server.Port),
			Handler:           r,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Steps block until EasyRSA exits.
			WriteTimeout: writeTimeout(conf.EasyRSA.CommandTimeout),
			IdleTimeout:  60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		logger.Info("starting server",
			slog.Int("port", conf.Server.Port),
			slog.String("storage", conf.Storage.Driver),
			slog.String("easyrsa_root", conf.EasyRSA.RootPath),
		)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", slog.String("signal", sig.String()))
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

// applyServerFlags lets explicitly set flags override the config file.
func applyServerFlags(cmd *cobra.Command, conf *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		conf.Server.Port = port
	}
	if flags.Changed("data-dir") {
		conf.Server.DataDir = dataDir
	}
	if flags.Changed("tls-cert") {
		conf.Server.TLSCert = tlsCert
	}
	if flags.Changed("tls-key") {
		conf.Server.TLSKey = tlsKey
	}
}

func serverTLSConfig(conf config.Server, logger *slog.Logger) (*tls.Config, error) {
	var cert tls.Certificate
	var err error
	if conf.TLSCert != "" && conf.TLSKey != "" {
		cert, err = tls.LoadX509KeyPair(conf.TLSCert, conf.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
	} else {
		cert, err = util.GenerateSelfSignedCert()
		if err != nil {
			return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
		logger.Warn("using self-signed runtime generated certificate for TLS")
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func writeTimeout(commandTimeout time.Duration) time.Duration {
	const base = 30 * time.Second
	if commandTimeout <= 0 {
		// gen-dh can run for many minutes on large key sizes.
		return 0
	}
	return commandTimeout + base
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8443, "Port to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
}
