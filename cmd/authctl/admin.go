package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/authaudit/internal/models"
)

// auditFilterFlags are shared by audit list and export
type auditFilterFlags struct {
	userEmail string
	method    string
	path      string
	from      string
	to        string
}

func (f *auditFilterFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.userEmail, "user-email", "", "Substring of the user email")
	fs.StringVar(&f.method, "method", "", "HTTP method")
	fs.StringVar(&f.path, "path", "", "Substring of the request path")
	fs.StringVar(&f.from, "from", "", "Entries created at or after (RFC3339)")
	fs.StringVar(&f.to, "to", "", "Entries created at or before (RFC3339)")
}

func (f *auditFilterFlags) filter() (models.AuditLogFilter, error) {
	filter := models.AuditLogFilter{
		UserEmail: f.userEmail,
		Method:    f.method,
		Path:      f.path,
	}

	parseTime := func(name, value string, dst *time.Time) error {
		if value == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return fmt.Errorf("invalid --%s: %w", name, err)
		}
		*dst = t
		return nil
	}

	if err := parseTime("from", f.from, &filter.From); err != nil {
		return filter, err
	}
	if err := parseTime("to", f.to, &filter.To); err != nil {
		return filter, err
	}
	return filter, nil
}

func newAuditCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "audit",
		Short:             "Browse the audit log (admin only)",
		PersistentPreRunE: c.withSession,
	}

	var listFlags auditFilterFlags
	var page, limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "Show one page of entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := listFlags.filter()
			if err != nil {
				return err
			}
			filter.Page = page
			filter.Limit = limit

			logs, err := c.app.api.Admin.AuditLogs(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return c.app.print(logs)
		},
	}
	listFlags.bind(list.Flags())
	list.Flags().IntVar(&page, "page", 1, "Page number")
	list.Flags().IntVar(&limit, "limit", models.DefaultAuditPageSize, "Entries per page")

	var exportFlags auditFilterFlags
	var workers int
	export := &cobra.Command{
		Use:   "export",
		Short: "Write every matching entry as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := exportFlags.filter()
			if err != nil {
				return err
			}

			res, err := c.app.exporter(workers).Export(cmd.Context(), filter, c.out)
			if err != nil {
				return err
			}
			c.app.logger.Info("audit log exported", "pages", res.Pages, "entries", res.Entries)
			return nil
		},
	}
	exportFlags.bind(export.Flags())
	export.Flags().IntVarP(&workers, "workers", "w", 0, "Pages fetched concurrently (default 4)")

	cmd.AddCommand(list, export)
	return cmd
}

func newUsersCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "users",
		Short:             "Manage users (admin only)",
		PersistentPreRunE: c.withSession,
	}

	var page, limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "Show one page of users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := c.app.api.Admin.Users(cmd.Context(), page, limit)
			if err != nil {
				return err
			}
			return c.app.print(users)
		},
	}
	list.Flags().IntVar(&page, "page", 1, "Page number")
	list.Flags().IntVar(&limit, "limit", 50, "Users per page")

	var create models.AdminUserCreate
	createCmd := &cobra.Command{
		Use:   "create EMAIL",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			create.Email = args[0]

			u, err := c.app.api.Admin.CreateUser(cmd.Context(), create)
			if err != nil {
				return err
			}
			return c.app.print(u)
		},
	}
	createCmd.Flags().StringVar(&create.Password, "user-password", "", "Password of the new user")
	createCmd.Flags().BoolVar(&create.IsAdmin, "admin", false, "Grant admin privileges")
	_ = createCmd.MarkFlagRequired("user-password")

	var active, admin bool
	updateCmd := &cobra.Command{
		Use:   "update ID",
		Short: "Activate, deactivate, grant or revoke admin privileges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var data models.AdminUserUpdate
			if cmd.Flags().Changed("active") {
				data.IsActive = &active
			}
			if cmd.Flags().Changed("admin") {
				data.IsAdmin = &admin
			}

			u, err := c.app.api.Admin.UpdateUser(cmd.Context(), id, data)
			if err != nil {
				return err
			}
			return c.app.print(u)
		},
	}
	updateCmd.Flags().BoolVar(&active, "active", true, "User may sign in")
	updateCmd.Flags().BoolVar(&admin, "admin", false, "User is admin")

	cmd.AddCommand(list, createCmd, updateCmd)
	return cmd
}
