package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/client"
	model "github.com/mikaelcharbonneau/void-space-create-sub000/internal/domain/walkthrough"
)

// reportSource is implemented by the local report service and the API client.
type reportSource interface {
	list(ctx context.Context, limit int) ([]model.AuditReport, error)
	get(ctx context.Context, id string) (*model.AuditReport, error)
	export(ctx context.Context, id string) ([]byte, string, error)
	close() error
}

type localReports struct{ a *app }

func (l localReports) list(ctx context.Context, limit int) ([]model.AuditReport, error) {
	return l.a.reports.ListRecent(ctx, limit)
}

func (l localReports) get(ctx context.Context, id string) (*model.AuditReport, error) {
	return l.a.reports.Get(ctx, id)
}

func (l localReports) export(ctx context.Context, id string) ([]byte, string, error) {
	return l.a.reports.Export(ctx, id)
}

func (l localReports) close() error { return l.a.Close() }

type remoteReports struct{ c *client.Client }

func (r remoteReports) list(ctx context.Context, limit int) ([]model.AuditReport, error) {
	out, err := r.c.ListInspections(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r remoteReports) get(ctx context.Context, id string) (*model.AuditReport, error) {
	return r.c.GetReport(ctx, id)
}

func (r remoteReports) export(ctx context.Context, id string) ([]byte, string, error) {
	return r.c.ExportReport(ctx, id)
}

func (remoteReports) close() error { return nil }

func openReports(ctx context.Context, opts *globalOptions) (reportSource, error) {
	if opts.server != "" {
		return remoteReports{c: client.New(client.Config{
			BaseURL:    opts.server,
			Token:      opts.token,
			UserID:     opts.userID,
			UserEmail:  opts.email,
			RetryCount: 2,
		})}, nil
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	a, err := newApp(ctx, cfg, newLogger(cfg))
	if err != nil {
		return nil, err
	}
	return localReports{a: a}, nil
}

func newReportsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Read audit reports",
	}

	var limit int
	var asJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent audit reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := openReports(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer src.close()

			list, err := src.list(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), list)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tWALKTHROUGH\tDATACENTER\tHALL\tSTATE\tISSUES\tCREATED")
			for _, r := range list {
				created := ""
				if r.CreatedAt != nil {
					created = r.CreatedAt.Local().Format(time.DateTime)
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d\t%s\n",
					r.ID, r.WalkthroughID, r.Datacenter, r.DataHall, r.State, r.IssuesReported, created)
			}
			return tw.Flush()
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 50, "maximum number of reports")
	listCmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print one audit report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := openReports(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer src.close()

			report, err := src.get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	var output string
	exportCmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write an audit report and its incidents to an xlsx workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := openReports(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer src.close()

			data, name, err := src.export(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = name
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}
	exportCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: server-suggested name)")

	cmd.AddCommand(listCmd, getCmd, exportCmd)
	return cmd
}
