package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newLoginCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		Long: `Signs in against the school API and stores the access token in the
configured session store, where serve and the transfer commands pick it up.

The password is read from --password or SMS_PASSWORD.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, password := v.GetString("email"), v.GetString("password")
			if email == "" || password == "" {
				return errors.New("email and password are required")
			}

			a, err := newCommandApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := withTimeout(cmd.Context(), a.cfg)
			defer cancel()

			user, err := a.client.Login(ctx, email, password)
			if err != nil {
				return err
			}
			name, _ := user["firstName"].(string)
			if name == "" {
				name = email
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", name)
			return nil
		},
	}
	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password")
	cmd.Flags().Bool("verbose", false, "log backend requests")
	return cmd
}

func newLogoutCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newCommandApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := withTimeout(cmd.Context(), a.cfg)
			defer cancel()

			if err := a.client.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
	cmd.Flags().Bool("verbose", false, "log backend requests")
	return cmd
}
