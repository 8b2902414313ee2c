package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironrsa/api"
	"github.com/jmcleod/ironrsa/internal/util"
)

var (
	tokenUser string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for a user",
	Long: `Mint a bearer token signed with the configured auth secret. Requests made
with the token own the issuers they create.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenUser == "" {
			return errors.New("--user is required")
		}
		conf, err := loadConfig()
		if err != nil {
			return err
		}
		secret, err := conf.AuthSecret()
		if err != nil {
			return err
		}
		tokens, err := api.NewTokenAuthority(secret, conf.Auth.Issuer, conf.Auth.TokenTTL)
		util.WipeBytes(secret)
		if err != nil {
			return err
		}
		tok, err := tokens.Issue(tokenUser, tokenTTL)
		if err != nil {
			return fmt.Errorf("issuing token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", "", "User id placed in the userid claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (defaults to auth.token_ttl)")
}
