// Command pontoctl runs back office tasks against the configured store:
// report exports, balance lookups and admin bootstrap.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/tempreco/ponto/attendance"
	"github.com/tempreco/ponto/config"
	"github.com/tempreco/ponto/directory"
	"github.com/tempreco/ponto/report"
	"github.com/tempreco/ponto/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// env is opened lazily by each subcommand.
type env struct {
	cfg     *config.Config
	backend store.Backend
	clock   *attendance.Clock
	dir     *directory.Service
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	backend, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:     cfg,
		backend: backend,
		clock:   attendance.NewClock(backend, attendance.WithLocation(cfg.App.Timezone)),
		dir:     directory.NewService(backend),
	}, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pontoctl",
		Short:         "Back office tools for the ponto punch clock",
		SilenceUsage: true,
	}
	root.AddCommand(newExportCmd(), newBalanceCmd(), newCreateAdminCmd())
	return root
}

func newExportCmd() *cobra.Command {
	var format, from, to, employee, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export attendance records as xlsx or pdf",
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(format)
			if format != "xlsx" && format != "pdf" {
				return fmt.Errorf("unknown format %q (xlsx or pdf)", format)
			}
			q := attendance.RecordQuery{EmployeeID: attendance.EmployeeID(employee)}
			var err error
			if from != "" {
				if q.From, err = attendance.ParseDay(from); err != nil {
					return err
				}
			}
			if to != "" {
				if q.To, err = attendance.ParseDay(to); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.backend.Close()

			recs, err := e.clock.ListRecords(ctx, q)
			if err != nil {
				return err
			}
			names, err := e.dir.EmployeeNames(ctx)
			if err != nil {
				return err
			}
			rows := report.BuildRows(recs, names, e.cfg.App.Timezone)

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			title := "Relatório de ponto"
			if format == "xlsx" {
				err = report.WriteExcel(w, title, rows)
			} else {
				err = report.WritePDF(w, title, rows)
			}
			if err != nil {
				return err
			}
			if out != "" && out != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d records written to %s\n", len(rows), out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "xlsx", "Output format: xlsx or pdf")
	cmd.Flags().StringVar(&from, "from", "", "First date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&employee, "employee", "", "Only this employee ID")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	return cmd
}

func newBalanceCmd() *cobra.Command {
	var history bool
	cmd := &cobra.Command{
		Use:   "balance <employee-id>",
		Short: "Show an employee's accumulated hour balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.backend.Close()

			emp, err := e.dir.Employee(ctx, args[0])
			if err != nil {
				return err
			}
			id := attendance.EmployeeID(emp.ID)
			bal, err := e.clock.Balance(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s h\n", emp.Name, bal.StringFixed(2))
			if !history {
				return nil
			}
			entries, err := e.clock.BalanceHistory(ctx, id)
			if err != nil {
				return err
			}
			for _, en := range entries {
				delta := en.Delta.StringFixed(2)
				if en.Delta.IsPositive() {
					delta = "+" + delta
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\t%s\n",
					en.CreatedAt.In(e.cfg.App.Timezone).Format(time.DateTime), en.Reason, delta, en.Balance.StringFixed(2), en.Note)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&history, "history", false, "Also list balance movements")
	return cmd
}

func newCreateAdminCmd() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.backend.Close()

			u, err := e.dir.RegisterUser(ctx, directory.NewUser{
				Name: name, Email: email, Password: password, Type: directory.UserAdmin, CreatedBy: "pontoctl",
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "Administrador", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Login e-mail")
	cmd.Flags().StringVar(&password, "password", "", "Password (6 to 72 characters)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
