package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/feedback-hub/internal/bootstrap"
	"github.com/iota-uz/feedback-hub/modules/hierarchy/services"
	"github.com/iota-uz/feedback-hub/pkg/composables"
	"github.com/iota-uz/feedback-hub/pkg/configuration"
	"github.com/iota-uz/feedback-hub/pkg/logging"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hierarchy",
		Short:         "Reporting hierarchy maintenance: migrations, validation, CSV import and export",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newTreeCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newExportCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}

// session is an initialized runtime plus a context carrying its pool.
type session struct {
	rt        *bootstrap.Runtime
	ctx       context.Context
	hierarchy *services.HierarchyService
	validator *services.HierarchyValidator
}

func openSession(ctx context.Context) (*session, error) {
	conf := configuration.Use()
	logger := logging.ConsoleLogger(conf.LogrusLogLevel())
	rt, err := bootstrap.New(ctx, conf, logger)
	if err != nil {
		return nil, withCode(exitDB, err)
	}
	return &session{
		rt:        rt,
		ctx:       composables.WithPool(ctx, rt.Pool),
		hierarchy: rt.App.Service(services.HierarchyService{}).(*services.HierarchyService),
		validator: rt.App.Service(services.HierarchyValidator{}).(*services.HierarchyValidator),
	}, nil
}

func (s *session) Close() {
	_ = s.rt.Close()
}

func orgFlag(cmd *cobra.Command, target *uuid.UUID) {
	var raw string
	cmd.Flags().StringVar(&raw, "org", "", "Organization UUID (required)")
	_ = cmd.MarkFlagRequired("org")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil || id == uuid.Nil {
			return withCode(exitUsage, fmt.Errorf("invalid --org: %q", raw))
		}
		*target = id
		return nil
	}
}
