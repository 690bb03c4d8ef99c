package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-pi-orders/internal/app"
	"github.com/ariefcatur/go-pi-orders/internal/config"
	"github.com/ariefcatur/go-pi-orders/internal/postgres"
	"github.com/ariefcatur/go-pi-orders/internal/refunds"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded Postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(_ config.Config, db *pgxpool.Pool, log *slog.Logger) error {
				if err := postgres.Migrate(cmd.Context(), db); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				log.Info("schema applied")
				return nil
			})
		},
	}
}

func rateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rate",
		Short: "Read or change the Pi exchange rate",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show the current rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(cfg config.Config, db *pgxpool.Pool, log *slog.Logger) error {
				svc, closeFn := rateService(cfg, db, log)
				defer closeFn()
				return printJSON(cmd.OutOrStdout(), svc.Current(cmd.Context()))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "set [rate]",
		Short:   "Append a new rate (local currency per Pi)",
		Example: "  shopctl rate set 3.25",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("invalid rate %q: %w", args[0], err)
			}
			return withDB(cmd.Context(), func(cfg config.Config, db *pgxpool.Pool, log *slog.Logger) error {
				svc, closeFn := rateService(cfg, db, log)
				defer closeFn()
				prev, cur, err := svc.Set(cmd.Context(), rate)
				if err != nil {
					return err
				}
				old := "none"
				if prev != nil {
					old = prev.Rate.String()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rate updated: %s -> %s\n", old, cur.Rate)
				return nil
			})
		},
	})

	history := &cobra.Command{
		Use:   "history",
		Short: "List recent rates, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withDB(cmd.Context(), func(cfg config.Config, db *pgxpool.Pool, log *slog.Logger) error {
				svc, closeFn := rateService(cfg, db, log)
				defer closeFn()
				hist, err := svc.History(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), hist)
			})
		},
	}
	history.Flags().IntP("limit", "n", 10, "maximum rows")
	cmd.AddCommand(history)

	return cmd
}

func refundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refund",
		Short: "Create, send and reconcile refunds",
	}

	create := &cobra.Command{
		Use:     "create",
		Short:   "Record a pending refund for a paid order",
		Example: "  shopctl refund create --order ORD123 --amount 45.50 --reason \"damaged parcel\"",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, _ := cmd.Flags().GetString("order")
			raw, _ := cmd.Flags().GetString("amount")
			reason, _ := cmd.Flags().GetString("reason")
			admin, _ := cmd.Flags().GetString("admin")
			amount, err := decimal.NewFromString(raw)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", raw, err)
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				r, err := a.Refunds.Create(cmd.Context(), refunds.CreateRequest{
					OrderID:     orderID,
					AmountLocal: amount,
					Reason:      reason,
					AdminID:     admin,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), r)
			})
		},
	}
	create.Flags().String("order", "", "order id")
	create.Flags().String("amount", "", "amount in local currency")
	create.Flags().String("reason", "", "shown to the customer as the payment memo")
	create.Flags().String("admin", "cli", "operator id recorded on the refund")
	_ = create.MarkFlagRequired("order")
	_ = create.MarkFlagRequired("amount")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "process [refund_id]",
		Short: "Send the payment for a pending refund and wait for confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Refunds.Process(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check [refund_id]",
		Short: "Read the payment once and settle the refund if it is confirmed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Refunds.Recheck(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status [refund_id]",
		Short: "Show a refund with its order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				d, err := a.Refunds.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), d)
			})
		},
	})

	list := &cobra.Command{
		Use:   "list",
		Short: "List refunds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			return withApp(cmd.Context(), func(a *app.App) error {
				page, err := a.Refunds.List(cmd.Context(), status, limit, offset)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), page)
			})
		},
	}
	list.Flags().String("status", "all", "pending, processing, completed, failed, cancelled or all")
	list.Flags().IntP("limit", "n", refunds.DefaultListLimit, "page size")
	list.Flags().Int("offset", 0, "rows to skip")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Complete or cancel every incomplete outbound payment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				results, err := a.Refunds.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), results)
			})
		},
	})

	stalled := &cobra.Command{
		Use:   "recheck-stalled",
		Short: "Recheck processing refunds older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			age, _ := cmd.Flags().GetDuration("older-than")
			limit, _ := cmd.Flags().GetInt("limit")
			return withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Refunds.RecheckStalled(cmd.Context(), age, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	stalled.Flags().Duration("older-than", 10*time.Minute, "minimum age since the payment was sent")
	stalled.Flags().IntP("limit", "n", 50, "maximum refunds to recheck")
	cmd.AddCommand(stalled)

	return cmd
}
