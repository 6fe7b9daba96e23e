package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/congregate/backend/internal/client"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the tenant's refetch signals as they arrive",
	Long: `Open the tenant websocket and print one line per "<entity>.changed" signal.
Stops on Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		tenant, err := tenantID()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		fmt.Fprintf(cmd.ErrOrStderr(), "watching tenant %s\n", tenant)
		return c.Watch(ctx, tenant, func(s client.Signal) {
			id, ok := s.ChangedID()
			if !ok {
				fmt.Fprintf(out, "%s  %s\n", time.Now().Format(time.TimeOnly), s.Event)
				return
			}
			fmt.Fprintf(out, "%s  %-20s %s\n", time.Now().Format(time.TimeOnly), s.Entity(), id)
		})
	},
}

var loginOpts struct {
	email, password string
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange email and password for a token",
	Long: `Print a bearer token for use as CONGREGATE_TOKEN.

  export CONGREGATE_TOKEN=$(congregatectl login --email me@example.org --password ...)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
		defer cancel()
		s, err := client.New(baseURL(), "").Login(ctx, loginOpts.email, loginOpts.password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "logged in as %s\n", s.User.Email)
		fmt.Fprintln(cmd.OutOrStdout(), s.Token)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginOpts.email, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginOpts.password, "password", "", "account password (default $CONGREGATE_PASSWORD)")
	_ = loginCmd.MarkFlagRequired("email")
	loginCmd.PreRun = func(*cobra.Command, []string) {
		if loginOpts.password == "" {
			loginOpts.password = os.Getenv("CONGREGATE_PASSWORD")
		}
	}
}
