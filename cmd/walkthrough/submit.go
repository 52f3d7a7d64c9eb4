package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/client"
	model "github.com/mikaelcharbonneau/void-space-create-sub000/internal/domain/walkthrough"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/walkthrough"
)

type submitOutput struct {
	ReportID          string            `json:"report_id"`
	WalkthroughNumber int               `json:"walkthrough_number"`
	State             model.ReportState `json:"state"`
	IssuesReported    int               `json:"issues_reported"`
	Incidents         int               `json:"incidents"`
}

func newSubmitCmd(opts *globalOptions) *cobra.Command {
	var (
		deviceID string
		name     string
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "submit <script.yaml>",
		Short: "Replay a recorded walkthrough through the form and submit it",
		Long: `submit fills a walkthrough form from a YAML or JSON script, numbers it from
the device sequence and runs the submission pipeline, locally against the
configured datastore or remotely with --server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := walkthrough.LoadScript(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if deviceID == "" {
				deviceID = cfg.DeviceID
			}
			logger := newLogger(cfg)
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			seq := a.sequenceFor(deviceID)
			form, err := walkthrough.Begin(ctx, seq)
			if err != nil {
				return err
			}
			script.Replay(form)
			draft := form.Draft()

			if dryRun {
				if err := a.submissions.Validate(draft); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), draft)
			}

			if opts.server != "" {
				c := client.New(client.Config{
					BaseURL:    opts.server,
					Token:      opts.token,
					UserID:     opts.userID,
					UserEmail:  opts.email,
					RetryCount: 2,
				})
				res, err := c.SubmitWalkthrough(ctx, draft, deviceID)
				if err != nil {
					return err
				}
				if err := seq.Save(ctx, draft.WalkthroughNumber); err != nil {
					logger.WithError(err).Warn("failed to persist walkthrough number")
				}
				return printJSON(cmd.OutOrStdout(), submitOutput{
					ReportID:          res.ID,
					WalkthroughNumber: draft.WalkthroughNumber,
					State:             res.State,
					IssuesReported:    res.IssuesReported,
					Incidents:         res.Incidents,
				})
			}

			if opts.userID == "" {
				return fmt.Errorf("--user-id is required for local submissions")
			}
			user := model.User{ID: opts.userID, Email: opts.email, DisplayName: name}
			res, err := a.submissions.WithSequence(seq).Submit(ctx, draft, user)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), submitOutput{
				ReportID:          res.Report.ID,
				WalkthroughNumber: res.Report.WalkthroughID,
				State:             res.Report.State,
				IssuesReported:    res.Report.IssuesReported,
				Incidents:         len(res.Incidents),
			})
		},
	}
	cmd.Flags().StringVar(&deviceID, "device", "", "device whose walkthrough sequence numbers the draft (default DEVICE_ID)")
	cmd.Flags().StringVar(&name, "name", "", "technician display name")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and print the draft without submitting")
	return cmd
}
