package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/feedback-hub/migrations"
	"github.com/iota-uz/feedback-hub/modules/hierarchy/services"
	"github.com/iota-uz/feedback-hub/pkg/configuration"
	"github.com/iota-uz/feedback-hub/pkg/logging"
)

func newMigrateCmd() *cobra.Command {
	var down, status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := configuration.Use()
			runner, err := migrations.Open(conf.Database.Opts, logging.ConsoleLogger(conf.LogrusLogLevel()))
			if err != nil {
				return withCode(exitDB, err)
			}
			defer func() { _ = runner.Close() }()

			switch {
			case status:
				rows, err := runner.Status(cmd.Context())
				if err != nil {
					return withCode(exitDB, err)
				}
				for _, row := range rows {
					state := "pending"
					if row.Applied {
						state = "applied"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%05d\t%s\t%s\n", row.Version, state, row.Path)
				}
				return nil
			case down:
				return withCode(exitDB, runner.Down(cmd.Context()))
			default:
				return withCode(exitDB, runner.Up(cmd.Context()))
			}
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "Roll back the most recent migration")
	cmd.Flags().BoolVar(&status, "status", false, "Print migration status and exit")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var orgID uuid.UUID
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Report hierarchy statistics, warnings and integrity errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := s.validator.ValidateHierarchy(s.ctx, orgID)
			if err != nil {
				return withCode(exitDB, err)
			}
			if err := writeJSON(cmd, result); err != nil {
				return err
			}
			if !result.IsValid {
				return withCode(exitValidation, fmt.Errorf("hierarchy has %d integrity errors", len(result.Errors)))
			}
			return nil
		},
	}
	orgFlag(cmd, &orgID)
	return cmd
}

func newTreeCmd() *cobra.Command {
	var orgID uuid.UUID
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the reporting forest as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			forest, err := s.hierarchy.GetHierarchyTree(s.ctx, orgID)
			if err != nil {
				return withCode(exitDB, err)
			}
			return writeJSON(cmd, forest)
		},
	}
	orgFlag(cmd, &orgID)
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		orgID uuid.UUID
		out   string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the reporting forest to an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			forest, err := s.hierarchy.GetHierarchyTree(s.ctx, orgID)
			if err != nil {
				return withCode(exitDB, err)
			}
			book, err := services.ExportForest(forest)
			if err != nil {
				return err
			}
			defer func() { _ = book.Close() }()
			if err := book.SaveAs(out); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	orgFlag(cmd, &orgID)
	cmd.Flags().StringVar(&out, "out", "hierarchy.xlsx", "Output workbook path")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
