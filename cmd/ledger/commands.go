package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/boddenberg/bank-ledger/internal/domain"
	"github.com/boddenberg/bank-ledger/internal/shell"

	"github.com/spf13/cobra"
)

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")

	rootCmd.AddCommand(shellCmd, exportCmd, accountsCmd, usersCmd)

	for _, cmd := range []*cobra.Command{exportCmd, accountsCmd, usersCmd} {
		cmd.Flags().StringP("username", "u", "", "User to authenticate as (password from $LEDGER_PASSWORD or stdin)")
		_ = cmd.MarkFlagRequired("username")
	}
	exportCmd.Flags().StringP("out", "o", "", "Export file (default from config)")
}

var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Account ledger with role-based access",
	Long: `A text-menu account ledger. Operators log in as Admin, User or Guest
and create accounts, move money, inspect histories and export the ledger
to JSON. Three failed logins in a row lock a user until an admin unlocks it.

Run without a subcommand to start the interactive shell.`,
	SilenceUsage: true,
	RunE:         runShell,
}

// --- shell ---

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start the interactive menu (default)",
	Args:  cobra.NoArgs,
	RunE:  runShell,
}

func runShell(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer a.close()

	sh := shell.New(shell.Deps{
		Ledger:     a.ledger,
		Auth:       a.auth,
		Exporter:   a.exporter,
		Stats:      a.stats,
		ExportPath: a.exportPath(),
		Logger:     a.logger,
	}, cmd.InOrStdin(), cmd.OutOrStdout())
	return sh.Run(cmd.Context())
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the ledger JSON export",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd, domain.PermExport, func(ctx context.Context, a *app) error {
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				out = a.exportPath()
			}
			if err := a.exporter.ExportFile(ctx, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Data exported to %s\n", out)
			return nil
		})
	},
}

// --- accounts ---

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List all accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd, domain.PermListAccounts, func(ctx context.Context, a *app) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NUMBER\tHOLDER\tBALANCE")
			for _, acc := range a.ledger.ListAccounts(ctx) {
				fmt.Fprintf(w, "%d\t%s\t%s\n", acc.Number, acc.Holder, domain.FormatMoney(acc.Balance))
			}
			return w.Flush()
		})
	},
}

// --- users ---

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List registered users (admin)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd, domain.PermListUsers, func(ctx context.Context, a *app) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "USERNAME\tROLE\tLOCKED\tFAILED")
			for _, u := range a.auth.ListUsers(ctx) {
				fmt.Fprintf(w, "%s\t%s\t%t\t%d\n", u.Username, u.Role, u.Locked, u.FailedAttempts)
			}
			return w.Flush()
		})
	},
}

// withSession logs in with --username, checks perm, runs fn and saves
// both stores before returning.
func withSession(cmd *cobra.Command, perm domain.Permission, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	username, _ := cmd.Flags().GetString("username")
	password, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}

	session, err := a.auth.Login(ctx, username, password)
	if err != nil {
		// the failed attempt still counts towards the lockout
		return flushAfter(ctx, a, err)
	}
	defer func() { _ = a.auth.Logout(context.WithoutCancel(ctx), session) }()

	if err := a.auth.Authorize(session, perm); err != nil {
		return flushAfter(ctx, a, err)
	}
	return flushAfter(ctx, a, fn(ctx, a))
}

func flushAfter(ctx context.Context, a *app, err error) error {
	ctx = context.WithoutCancel(ctx)
	if ferr := a.auth.Flush(ctx); ferr != nil && err == nil {
		err = ferr
	}
	if ferr := a.ledger.Flush(ctx); ferr != nil && err == nil {
		err = ferr
	}
	return err
}

func readPassword(in io.Reader) (string, error) {
	if pw, ok := os.LookupEnv("LEDGER_PASSWORD"); ok {
		return pw, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("password required on stdin or in LEDGER_PASSWORD")
	}
	return line, nil
}
