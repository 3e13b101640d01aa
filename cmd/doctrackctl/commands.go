package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/doctrack/doctrack/internal/document/repository"
	"github.com/doctrack/doctrack/internal/document/service"
	"github.com/doctrack/doctrack/internal/models"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// opener returns the document store and a release func.
type opener func(ctx context.Context) (repository.Repository, func(), error)

var operator = models.Principal{ID: "doctrackctl", Role: models.RoleAdmin, Department: "ADMIN", DisplayName: "doctrackctl"}

func newRootCmd(open opener, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "doctrackctl",
		Short:         "Maintenance commands for the doctrack document store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.AddCommand(nextNumberCmd(open), collisionsCmd(open), purgeCmd(open))
	return root
}

func withService(cmd *cobra.Command, open opener, now func() time.Time, fn func(ctx context.Context, svc *service.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	repo, release, err := open(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, service.New(service.Options{Repo: repo, Now: now}))
}

// parseWhen accepts RFC 3339 or a bare date.
func parseWhen(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

func nextNumberCmd(open opener) *cobra.Command {
	var dept, at string
	var dispatch bool
	cmd := &cobra.Command{
		Use:   "next-number",
		Short: "Preview the next control number for a department",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(dept) == "" {
				return fmt.Errorf("--dept is required")
			}
			when := time.Now()
			if at != "" {
				t, err := parseWhen(at)
				if err != nil {
					return err
				}
				when = t
			}
			actor := models.Principal{ID: operator.ID, Role: models.RoleUser, Department: dept}
			if dispatch {
				actor.Role = models.RoleDispatch
			}
			return withService(cmd, open, func() time.Time { return when }, func(ctx context.Context, svc *service.Service) error {
				ref, err := svc.NextNumber(ctx, actor)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ref)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dept, "dept", "", "department code")
	cmd.Flags().BoolVar(&dispatch, "dispatch", false, "use the message-center format")
	cmd.Flags().StringVar(&at, "at", "", "reference time (RFC 3339 or YYYY-MM-DD), default now")
	return cmd
}

func collisionsCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "collisions",
		Short: "List control numbers held by more than one document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, open, nil, func(ctx context.Context, svc *service.Service) error {
				found, err := svc.Collisions(ctx, operator)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if len(found) == 0 {
					fmt.Fprintln(w, color.New(color.FgGreen).Sprint("no collisions"))
					return nil
				}
				for _, c := range found {
					fmt.Fprintf(w, "%s  %s\n", color.New(color.FgYellow).Sprint(c.ReferenceNumber), strings.Join(c.DocumentIDs, ", "))
				}
				return nil
			})
		},
	}
}

func purgeCmd(open opener) *cobra.Command {
	var before string
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete documents created before a cutoff, keeping numbering checkpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			if before == "" {
				return fmt.Errorf("--before is required")
			}
			cutoff, err := parseWhen(before)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			return withService(cmd, open, nil, func(ctx context.Context, svc *service.Service) error {
				if !yes {
					plan, err := svc.PurgePreview(ctx, operator, cutoff)
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "%s %d documents created before %s would be deleted\n",
						color.New(color.FgYellow).Sprint("dry run:"), plan.Deleted, cutoff.Format(time.RFC3339))
					for _, ref := range plan.Checkpoints {
						fmt.Fprintf(w, "  would keep checkpoint %s\n", color.New(color.FgBlue).Sprint(ref))
					}
					fmt.Fprintln(w, "rerun with --yes to delete")
					return nil
				}
				res, err := svc.Purge(ctx, operator, cutoff)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "deleted %d documents\n", res.Deleted)
				for _, ref := range res.Checkpoints {
					fmt.Fprintf(w, "  checkpoint %s\n", color.New(color.FgBlue).Sprint(ref))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "cutoff (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().BoolVar(&yes, "yes", false, "actually delete")
	return cmd
}
