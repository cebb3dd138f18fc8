// Package main is the entry point for the school console. It runs the local
// BFF for the browser shell and the one-shot transfer and session commands.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Every flag is bound to a viper key of
// the same name, with SMS_<FLAG> environment fallbacks (SMS_CONFIG,
// SMS_SCOPE, SMS_PASSWORD, ...).
func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SMS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "console",
		Short:         "School management console",
		Long:          "Runs the entity-management console for the school API: a local UI backend\nand scriptable export, import and session commands.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return v.BindPFlags(cmd.Flags())
		},
	}
	root.PersistentFlags().String("config", "config.yaml", "path to configuration file")

	root.AddCommand(
		newServeCmd(v),
		newExportCmd(v),
		newImportCmd(v),
		newTemplateCmd(v),
		newLoginCmd(v),
		newLogoutCmd(v),
	)
	return root
}
