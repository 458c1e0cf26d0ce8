package main

import (
	"alcyxob/plan-delivery/internal/app"
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/repository"
	"alcyxob/plan-delivery/internal/service"
	"context"
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (c *cli) assignmentsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "assignments", Aliases: []string{"a"}, Short: "Inspect and deliver plan assignments"}
	cmd.AddCommand(c.assignmentsListCmd(), c.assignmentsDeliverCmd(), c.assignmentsRetryCmd())
	return cmd
}

func (c *cli) assignmentsListCmd() *cobra.Command {
	var status, deliveryStatus, client string
	var limit int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := c.tenantID()
			if err != nil {
				return err
			}
			filter := repository.AssignmentFilter{
				TenantID:       tenantID,
				Status:         domain.AssignmentStatus(status),
				DeliveryStatus: domain.DeliveryStatus(deliveryStatus),
				Limit:          limit,
			}
			if client != "" {
				id, err := parseID("client", client)
				if err != nil {
					return err
				}
				filter.ClientID = &id
			}
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Services.Assignments.List(ctx, filter)
				if err != nil {
					return err
				}
				return c.render(cmd.OutOrStdout(), items,
					table.Row{"ID", "Client", "Plan", "Version", "Status", "Delivery", "Channel", "Attempts", "Failed Step"},
					func(add func(table.Row)) {
						for _, it := range items {
							add(table.Row{it.ID.Hex(), it.ClientID.Hex(), it.PlanID.Hex(), it.PlanVersion, it.Status,
								it.DeliveryStatus, it.DeliveryChannel, it.Delivery.Attempts, it.Delivery.FailedStep})
						}
					})
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "assignment status filter")
	cmd.Flags().StringVar(&deliveryStatus, "delivery-status", "", "delivery status filter")
	cmd.Flags().StringVar(&client, "client", "", "client id filter")
	cmd.Flags().Int64Var(&limit, "limit", 50, "max results")
	return cmd
}

func (c *cli) assignmentsDeliverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deliver ASSIGNMENT_ID...",
		Short: "Deliver one or more assignments",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDeliveries(cmd, args, func(ctx context.Context, d service.DeliveryService, tenantID primitive.ObjectID, ids []primitive.ObjectID) ([]service.BatchItemResult, error) {
				return d.DeliverBatch(ctx, tenantID, ids)
			})
		},
	}
}

func (c *cli) assignmentsRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry ASSIGNMENT_ID",
		Short: "Retry a failed delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDeliveries(cmd, args, func(ctx context.Context, d service.DeliveryService, tenantID primitive.ObjectID, ids []primitive.ObjectID) ([]service.BatchItemResult, error) {
				r, err := d.Retry(ctx, ids[0], tenantID)
				return []service.BatchItemResult{{AssignmentID: ids[0], Result: r, Err: err}}, nil
			})
		},
	}
}

type deliveryRow struct {
	AssignmentID string `json:"assignment_id"`
	Success      bool   `json:"success"`
	PDFURL       string `json:"pdf_url,omitempty"`
	PortalLink   string `json:"portal_link,omitempty"`
	Error        string `json:"error,omitempty"`
	Step         string `json:"step,omitempty"`
}

type deliverFunc func(ctx context.Context, d service.DeliveryService, tenantID primitive.ObjectID, ids []primitive.ObjectID) ([]service.BatchItemResult, error)

func (c *cli) runDeliveries(cmd *cobra.Command, args []string, run deliverFunc) error {
	tenantID, err := c.tenantID()
	if err != nil {
		return err
	}
	ids := make([]primitive.ObjectID, 0, len(args))
	for _, raw := range args {
		id, err := parseID("assignment", raw)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		items, err := run(ctx, a.Services.Deliveries, tenantID, ids)
		if err != nil {
			return err
		}
		rows := deliveryRows(items)
		failed := 0
		for _, r := range rows {
			if !r.Success {
				failed++
			}
		}
		if err := c.render(cmd.OutOrStdout(), rows,
			table.Row{"Assignment", "OK", "Portal Link", "Step", "Error"},
			func(add func(table.Row)) {
				for _, r := range rows {
					add(table.Row{r.AssignmentID, r.Success, r.PortalLink, r.Step, r.Error})
				}
			}); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d deliveries failed", failed, len(rows))
		}
		return nil
	})
}

func deliveryRows(items []service.BatchItemResult) []deliveryRow {
	rows := make([]deliveryRow, 0, len(items))
	for _, it := range items {
		row := deliveryRow{AssignmentID: it.AssignmentID.Hex()}
		if it.Err != nil {
			row.Error = it.Err.Error()
			var stepErr *service.StepError
			if errors.As(it.Err, &stepErr) {
				row.Step = stepErr.Step
			}
		} else {
			row.Success = true
			row.PDFURL = it.Result.PDFURL
			row.PortalLink = it.Result.PortalLink
		}
		rows = append(rows, row)
	}
	return rows
}
