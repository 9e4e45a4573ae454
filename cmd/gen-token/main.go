package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"taskboard/api"
)

func main() {
	var (
		secret string
		name   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "gen-token <user-id>",
		Short: "Sign an HS256 token for a board-api in local auth mode",
		Long: `Prints a bearer token accepted by a board-api started with
LOCAL_AUTH_MODE=hs256 (or AUTH0_TEST_MODE=1) and the same shared secret.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("no secret: pass --secret or set LOCAL_AUTH_SHARED_SECRET")
			}
			tok, err := api.SignLocalToken(secret, args[0], name, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", defaultSecret(), "shared HS256 secret")
	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultSecret() string {
	if s := os.Getenv("LOCAL_AUTH_SHARED_SECRET"); s != "" {
		return s
	}
	return os.Getenv("TEST_JWT_SECRET")
}
