package main

import (
	"alcyxob/plan-delivery/internal/app"
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/repository"
	"context"
	"errors"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (c *cli) approvalsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "approvals", Short: "Review AI-generated catalog content"}
	cmd.AddCommand(
		c.approvalsListCmd(),
		c.approvalsDecideCmd("approve", domain.ApprovalApproved),
		c.approvalsDecideCmd("reject", domain.ApprovalRejected),
		c.approvalsSyncCmd(),
		c.approvalsAuditCmd(),
	)
	return cmd
}

var workflowHeader = table.Row{"ID", "Entity", "Entity ID", "Status", "Source", "Submitted", "Reviewed By", "Notes"}

func workflowRows(items []domain.ApprovalWorkflow) func(add func(table.Row)) {
	return func(add func(table.Row)) {
		for _, w := range items {
			reviewer := ""
			if w.ReviewedBy != nil {
				reviewer = w.ReviewedBy.Hex()
			}
			add(table.Row{w.ID.Hex(), w.EntityType, w.EntityID.Hex(), w.Status, w.Metadata.Source,
				w.CreatedAt.Format("2006-01-02 15:04"), reviewer, w.Notes})
		}
	}
}

func (c *cli) approvalsListCmd() *cobra.Command {
	var status, entityType string
	var limit int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows (pending by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := c.tenantID()
			if err != nil {
				return err
			}
			filter := repository.ApprovalFilter{
				TenantID:   tenantID,
				Status:     domain.ApprovalStatus(status),
				EntityType: domain.EntityType(entityType),
				Limit:      limit,
			}
			if status == "all" {
				filter.Status = ""
			}
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Services.Approvals.List(ctx, filter)
				if err != nil {
					return err
				}
				return c.render(cmd.OutOrStdout(), items, workflowHeader, workflowRows(items))
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", string(domain.ApprovalPending), "pending, approved, rejected or all")
	cmd.Flags().StringVar(&entityType, "entity-type", "", "exercise, nutrition or workout")
	cmd.Flags().Int64Var(&limit, "limit", 50, "max results")
	return cmd
}

func (c *cli) approvalsDecideCmd(use string, status domain.ApprovalStatus) *cobra.Command {
	var notes, reviewer string
	cmd := &cobra.Command{
		Use:   use + " WORKFLOW_ID",
		Short: "Record a " + string(status) + " decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := c.tenantID()
			if err != nil {
				return err
			}
			workflowID, err := parseID("workflow", args[0])
			if err != nil {
				return err
			}
			reviewerID, err := parseID("reviewer", reviewer)
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				decide := a.Services.Approvals.Approve
				if status == domain.ApprovalRejected {
					decide = a.Services.Approvals.Reject
				}
				w, err := decide(ctx, workflowID, tenantID, reviewerID, notes)
				if w == nil {
					return err
				}
				if rerr := c.render(cmd.OutOrStdout(), w, workflowHeader, workflowRows([]domain.ApprovalWorkflow{*w})); rerr != nil {
					return rerr
				}
				if err != nil {
					return errors.Join(err, errors.New("decision saved; run 'fitctl approvals sync "+args[0]+"' to update the catalog"))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "reviewer notes")
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer member id")
	_ = cmd.MarkFlagRequired("reviewer")
	return cmd
}

func (c *cli) approvalsSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync WORKFLOW_ID",
		Short: "Re-apply a decided workflow to the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := c.tenantID()
			if err != nil {
				return err
			}
			workflowID, err := parseID("workflow", args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				w, err := a.Services.Approvals.SyncVisibility(ctx, workflowID, tenantID)
				if err != nil {
					return err
				}
				return c.render(cmd.OutOrStdout(), w, workflowHeader, workflowRows([]domain.ApprovalWorkflow{*w}))
			})
		},
	}
}

func (c *cli) approvalsAuditCmd() *cobra.Command {
	var status, entityType, reviewer string
	var limit int64
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Decided workflows with summary counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := c.tenantID()
			if err != nil {
				return err
			}
			filter := repository.AuditFilter{
				TenantID:   tenantID,
				Status:     domain.ApprovalStatus(status),
				EntityType: domain.EntityType(entityType),
				Limit:      limit,
			}
			if reviewer != "" {
				var id primitive.ObjectID
				if id, err = parseID("reviewer", reviewer); err != nil {
					return err
				}
				filter.ReviewedBy = &id
			}
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				report, err := a.Services.Approvals.Audit(ctx, filter)
				if err != nil {
					return err
				}
				return c.render(cmd.OutOrStdout(), report, workflowHeader, workflowRows(report.Items))
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "approved or rejected")
	cmd.Flags().StringVar(&entityType, "entity-type", "", "exercise, nutrition or workout")
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer member id")
	cmd.Flags().Int64Var(&limit, "limit", 100, "max results")
	return cmd
}
