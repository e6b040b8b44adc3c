package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	assignmentapp "coaching-fees/internal/assignment/application"
	"coaching-fees/internal/audit"
	"coaching-fees/internal/auth"
	fees "coaching-fees/internal/fees/domain"
	settlementapp "coaching-fees/internal/settlement/application"
)

func newLedgerCmd(opts *options) *cobra.Command {
	var coachingID, memberID string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Print a student's ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, coachingID, func(ctx context.Context, rt *runtime) error {
				ledger, err := rt.ledger.StudentLedger(ctx, coachingID, memberID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return printJSON(out, ledger)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DATE\tTYPE\tDESCRIPTION\tAMOUNT\tBALANCE")
				for _, e := range ledger.Timeline {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Date.Format("2006-01-02"), e.Type, e.Label, e.Amount.StringFixed(2), e.RunningBalance.StringFixed(2))
				}
				s := ledger.Summary
				fmt.Fprintf(tw, "\ncharged %s\tpaid %s\trefunded %s\twaived %s\tbalance %s\n",
					s.TotalCharged.StringFixed(2), s.TotalPaid.StringFixed(2), s.TotalRefunded.StringFixed(2),
					s.TotalWaived.StringFixed(2), s.Balance.StringFixed(2))
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&coachingID, "coaching", "", "coaching id")
	cmd.Flags().StringVar(&memberID, "member", "", "member id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("coaching")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func newPreviewCmd(opts *options) *cobra.Command {
	var req settlementapp.Request
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show what reassigning a member would settle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, req.CoachingID, func(ctx context.Context, rt *runtime) error {
				preview, err := rt.preview.Preview(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), preview)
			})
		},
	}
	cmd.Flags().StringVar(&req.CoachingID, "coaching", "", "coaching id")
	cmd.Flags().StringVar(&req.MemberID, "member", "", "member id")
	cmd.Flags().StringVar(&req.Concern, "concern", "", "fee concern (defaults from --structure)")
	cmd.Flags().StringVar(&req.StructureID, "structure", "", "target fee structure id")
	_ = cmd.MarkFlagRequired("coaching")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func newBulkAssignCmd(opts *options) *cobra.Command {
	var (
		coachingID, structureID, file, start string
		discount                             string
		discountReason                       string
	)
	cmd := &cobra.Command{
		Use:   "bulk-assign",
		Short: "Assign a fee structure to every member listed in a CSV file",
		Long:  "The CSV needs a member id column (member_id, memberId or id); a file without a header is read as one id per line.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			memberIDs, err := readMemberIDs(f)
			if err != nil {
				return err
			}
			overrides := fees.PricingOverrides{DiscountReason: discountReason}
			if discount != "" {
				if overrides.DiscountAmount, err = decimal.NewFromString(discount); err != nil {
					return fmt.Errorf("--discount: %w", err)
				}
			}
			if start == "" {
				y, m, d := time.Now().UTC().Date()
				overrides.StartDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
			} else if overrides.StartDate, err = time.Parse("2006-01-02", start); err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			return withRuntime(cmd, opts, coachingID, func(ctx context.Context, rt *runtime) error {
				result, err := rt.assignments.BulkAssign(ctx, assignmentapp.BulkRequest{
					CoachingID:  coachingID,
					StructureID: structureID,
					MemberIDs:   memberIDs,
					Overrides:   overrides,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().StringVar(&coachingID, "coaching", "", "coaching id")
	cmd.Flags().StringVar(&structureID, "structure", "", "fee structure id")
	cmd.Flags().StringVar(&file, "file", "", "CSV file of member ids")
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&discount, "discount", "", "flat discount per member")
	cmd.Flags().StringVar(&discountReason, "discount-reason", "", "reason recorded with the discount")
	_ = cmd.MarkFlagRequired("coaching")
	_ = cmd.MarkFlagRequired("structure")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newRollForwardCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rollforward",
		Short: "Generate records for billing periods that have started",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "", func(ctx context.Context, rt *runtime) error {
				result, err := rt.assignments.RollForward(ctx, time.Now().UTC())
				if perr := printJSON(cmd.OutOrStdout(), result); perr != nil {
					return perr
				}
				return err
			})
		},
	}
}

func newAuditCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "audit", Short: "Inspect the audit log"}
	var (
		q        audit.Query
		event    string
		from, to string
		diff     bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List audit entries, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q.Event = audit.Event(event)
			var err error
			if q.From, err = parseDay(from); err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			if q.To, err = parseDay(to); err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			if q, err = q.Normalize(); err != nil {
				return err
			}
			return withRuntime(cmd, opts, q.CoachingID, func(ctx context.Context, rt *runtime) error {
				entries, total, err := rt.auditLog.List(ctx, q)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				differ := audit.NewDiffer("")
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CREATED\tEVENT\tENTITY\tMEMBER\tACTOR")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.Event, e.EntityType, e.EntityID, e.MemberID, e.ActorID)
					if !diff {
						continue
					}
					for _, c := range differ.Render(e).Changes {
						fmt.Fprintf(tw, "\t  %s\t%s -> %s\t\t\n", c.Label, c.OldText, c.NewText)
					}
				}
				fmt.Fprintf(tw, "\npage %d, %d of %d entries\n", q.Page, len(entries), total)
				return tw.Flush()
			})
		},
	}
	list.Flags().StringVar(&q.CoachingID, "coaching", "", "coaching id")
	list.Flags().StringVar(&q.EntityType, "entity-type", "", "entity type filter")
	list.Flags().StringVar(&q.EntityID, "entity", "", "entity id filter")
	list.Flags().StringVar(&q.MemberID, "member", "", "member id filter")
	list.Flags().StringVar(&q.ActorID, "actor", "", "actor id filter")
	list.Flags().StringVar(&event, "event", "", "event filter, e.g. PAYMENT_RECORDED")
	list.Flags().StringVar(&from, "from", "", "from date YYYY-MM-DD")
	list.Flags().StringVar(&to, "to", "", "to date YYYY-MM-DD (exclusive)")
	list.Flags().IntVar(&q.Page, "page", 1, "page number")
	list.Flags().IntVar(&q.Limit, "limit", audit.DefaultLimit, "entries per page")
	list.Flags().BoolVar(&diff, "diff", false, "print field changes")
	_ = list.MarkFlagRequired("coaching")
	cmd.AddCommand(list)
	return cmd
}

func newDLQCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "dlq", Short: "Inspect dead-lettered events"}
	var (
		limit      int
		coachingID string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered events, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "", func(ctx context.Context, rt *runtime) error {
				letters, err := rt.dlq.List(ctx, coachingID, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "LAST SEEN\tEVENT ID\tTYPE\tCOACHING\tERROR")
				for _, l := range letters {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", l.At.Format(time.RFC3339), l.Envelope.EventID, l.Envelope.EventType, l.Envelope.TenantID, l.Error)
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "maximum entries")
	list.Flags().StringVar(&coachingID, "coaching", "", "only this coaching")
	cmd.AddCommand(list)
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		coachingID, role, subject string
		ttl                       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token signed with AUTH_JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := os.Getenv("AUTH_JWT_SECRET")
			if secret == "" {
				return errors.New("AUTH_JWT_SECRET is required")
			}
			normalized, ok := auth.NormalizeRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := auth.IssueJWT([]byte(secret), coachingID, normalized, subject, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&coachingID, "coaching", "", "coaching id")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleViewer), "viewer, operator or admin")
	cmd.Flags().StringVar(&subject, "subject", "", "user id placed in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("coaching")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func parseDay(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}
