package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/session"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/transfer"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

func newExportCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <page> [key=value...]",
		Short: "Export a page's entities to a file",
		Long: `Downloads the export of a page into the download directory.

Filters are given as key=value pairs, the same keys the page's filter bar
uses. --ids exports exactly those entities and ignores filters.`,
		Example: `  console export students status=active --format xlsx
  console export students --ids 64f1,64f2 --dir ./out`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := parseFilters(args[1:])
			if err != nil {
				return err
			}
			format, err := model.ParseExportFormat(v.GetString("format"))
			if err != nil {
				return err
			}

			a, err := newCommandApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.close()

			def, err := a.page(args[0])
			if err != nil {
				return err
			}
			if scope := v.GetString("scope"); scope != "" {
				filters[def.ScopeKey] = scope
			}

			ctx, cancel := withTimeout(cmd.Context(), a.cfg)
			defer cancel()

			res := transfer.NewExporter(a.client, a.logger, a.metrics).Export(ctx, transfer.ExportRequest{
				Endpoint: def.Endpoint,
				Format:   format,
				IDs:      splitList(v.GetString("ids")),
				Filters:  filters,
			}, a.downloadSink(v))
			return report(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().String("format", "csv", "export format: csv or excel")
	cmd.Flags().String("ids", "", "comma-separated entity ids to export")
	cmd.Flags().String("scope", "", "campus id to restrict the export to")
	cmd.Flags().String("dir", "", "download directory (overrides transfer.download_dir)")
	cmd.Flags().Bool("verbose", false, "log backend requests")
	return cmd
}

func newImportCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <page> <file>",
		Short: "Import entities from a CSV or Excel file",
		Long: `Uploads a file to a page's import endpoint. With --dry-run the backend
validates every row without creating anything.`,
		Example: `  console import students ./students.csv --scope 64f0c0ffee --dry-run`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[1], err)
			}

			a, err := newCommandApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.close()

			def, err := a.page(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(cmd.Context(), a.cfg)
			defer cancel()

			importer := transfer.NewImporter(a.client, a.cfg.Transfer, nil, a.logger, a.metrics)
			res := importer.Import(ctx, transfer.ImportRequest{
				Endpoint: def.Endpoint,
				Scope:    v.GetString("scope"),
				File:     transfer.File{Name: filepath.Base(args[1]), Data: data},
				DryRun:   v.GetBool("dry-run"),
			})
			return report(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().String("scope", "", "campus id the entities belong to (required)")
	cmd.Flags().Bool("dry-run", false, "validate rows without importing")
	cmd.Flags().Bool("verbose", false, "log backend requests")
	return cmd
}

func newTemplateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template <page>",
		Short: "Download the import template of a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := model.ParseExportFormat(v.GetString("format"))
			if err != nil {
				return err
			}

			a, err := newCommandApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.close()

			def, err := a.page(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(cmd.Context(), a.cfg)
			defer cancel()

			res := transfer.NewExporter(a.client, a.logger, a.metrics).
				Template(ctx, def.Endpoint, format, a.downloadSink(v))
			return report(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().String("format", "csv", "template format: csv or excel")
	cmd.Flags().String("dir", "", "download directory (overrides transfer.download_dir)")
	cmd.Flags().Bool("verbose", false, "log backend requests")
	return cmd
}

// newCommandApp builds the app for a one-shot command: console logs on
// stderr, no metrics, and session expiry reported as a login hint.
func newCommandApp(cmd *cobra.Command, v *viper.Viper) (*app, error) {
	logger := consoleLogger(cmd.ErrOrStderr(), v.GetBool("verbose"))
	return newApp(v, appOptions{
		navigator: &session.LogNavigator{Out: cmd.ErrOrStderr(), Logger: logger},
		logger:    logger,
	})
}

func (a *app) downloadSink(v *viper.Viper) transfer.DirSink {
	dir := v.GetString("dir")
	if dir == "" {
		dir = a.cfg.Transfer.DownloadDir
	}
	return transfer.DirSink{Dir: dir}
}

// report prints the result message and data. A failed result becomes the
// command error.
func report(w io.Writer, res model.Result) error {
	if !res.Success {
		if res.Error != "" {
			return errors.New(res.Error)
		}
		return errors.New(res.Message)
	}
	if res.Message != "" {
		fmt.Fprintln(w, res.Message)
	}
	if res.Data != nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Data); err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
	}
	return nil
}

// parseFilters turns key=value arguments into filter values. Values that
// parse as JSON keep their type so numbers and booleans reach the backend
// unquoted.
func parseFilters(args []string) (map[string]any, error) {
	filters := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key=value", arg)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		filters[key] = value
	}
	return filters, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
