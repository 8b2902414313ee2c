package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironrsa/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "ironrsa",
	Short: "IronRSA is an EasyRSA certificate issuance service",
	Long: `An HTTP service that drives EasyRSA through the steps of building a PKI:
vars, init-pki, CA, DH parameters, server and client certificates and the
OpenVPN TLS auth key.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file")
}

func loadConfig() (*config.Config, error) {
	return config.Load(configFile)
}
