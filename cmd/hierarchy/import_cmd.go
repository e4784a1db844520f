package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	corepersistence "github.com/iota-uz/feedback-hub/modules/core/infrastructure/persistence"
	"github.com/iota-uz/feedback-hub/modules/hierarchy/domain/hierarchy"
)

const (
	colEmployeeEmail = "employee_email"
	colManagerEmail  = "manager_email"
)

// relationshipRow is one CSV line; an empty manager email marks a root.
type relationshipRow struct {
	line          int
	employeeEmail string
	managerEmail  string
}

type emailLookup func(ctx context.Context, email string) (uuid.UUID, error)

func newImportCmd() *cobra.Command {
	var (
		orgID  uuid.UUID
		file   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk upsert reporting lines from an employee_email,manager_email CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return withCode(exitUsage, err)
			}
			defer func() { _ = f.Close() }()

			rows, err := readRelationshipsCSV(f)
			if err != nil {
				return withCode(exitValidation, fmt.Errorf("%s: %w", file, err))
			}

			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			users := corepersistence.NewUserRepository()
			lookup := func(ctx context.Context, email string) (uuid.UUID, error) {
				u, err := users.GetByEmail(ctx, orgID, email)
				if err != nil {
					return uuid.Nil, err
				}
				return u.ID, nil
			}
			relationships, problems, err := resolveRelationships(s.ctx, rows, lookup)
			if err != nil {
				return withCode(exitDB, err)
			}
			for _, p := range problems {
				fmt.Fprintln(cmd.ErrOrStderr(), p)
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "dry run: %d relationships resolved, %d rows skipped\n", len(relationships), len(problems))
				return nil
			}

			result, err := s.hierarchy.BulkUpdateHierarchy(s.ctx, orgID, relationships)
			if err != nil {
				return withCode(exitDB, err)
			}
			if err := writeJSON(cmd, result); err != nil {
				return err
			}
			if len(result.Errors) > 0 || len(problems) > 0 {
				return withCode(exitValidation, fmt.Errorf("%d rows failed", len(result.Errors)+len(problems)))
			}
			return nil
		},
	}
	orgFlag(cmd, &orgID)
	cmd.Flags().StringVar(&file, "file", "", "CSV file with employee_email,manager_email columns (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Resolve emails without writing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readRelationshipsCSV(r io.Reader) ([]relationshipRow, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = br.Discard(3)
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing header")
		}
		return nil, err
	}
	idx := map[string]int{}
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	empCol, ok := idx[colEmployeeEmail]
	if !ok {
		return nil, fmt.Errorf("missing %s column", colEmployeeEmail)
	}
	mgrCol, ok := idx[colManagerEmail]
	if !ok {
		return nil, fmt.Errorf("missing %s column", colManagerEmail)
	}

	var rows []relationshipRow
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row := relationshipRow{line: line, employeeEmail: field(rec, empCol), managerEmail: field(rec, mgrCol)}
		if row.employeeEmail == "" && row.managerEmail == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(rec[i]))
}

// resolveRelationships maps emails to user ids. Unknown emails become
// per-row problems; any other lookup error aborts.
func resolveRelationships(ctx context.Context, rows []relationshipRow, lookup emailLookup) ([]hierarchy.Relationship, []string, error) {
	cache := map[string]uuid.UUID{}
	resolve := func(email string) (uuid.UUID, bool, error) {
		if id, ok := cache[email]; ok {
			return id, true, nil
		}
		id, err := lookup(ctx, email)
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		if err != nil {
			return uuid.Nil, false, err
		}
		cache[email] = id
		return id, true, nil
	}

	var (
		out      []hierarchy.Relationship
		problems []string
	)
	for _, row := range rows {
		if row.employeeEmail == "" {
			problems = append(problems, fmt.Sprintf("line %d: %s is empty", row.line, colEmployeeEmail))
			continue
		}
		employeeID, ok, err := resolve(row.employeeEmail)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			problems = append(problems, fmt.Sprintf("line %d: unknown employee %s", row.line, row.employeeEmail))
			continue
		}
		rel := hierarchy.Relationship{EmployeeID: employeeID}
		if row.managerEmail != "" {
			managerID, ok, err := resolve(row.managerEmail)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				problems = append(problems, fmt.Sprintf("line %d: unknown manager %s", row.line, row.managerEmail))
				continue
			}
			rel.ManagerID = &managerID
		}
		out = append(out, rel)
	}
	return out, problems, nil
}
