// ABOUTME: Admin CLI for tower-gateway clients and tenant stores
// ABOUTME: Operates directly on the configured registry and tenant directory

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/tower-gateway/internal/config"
	"github.com/2389/tower-gateway/internal/identity"
	"github.com/2389/tower-gateway/internal/store"
	"github.com/2389/tower-gateway/internal/tenantdb"
)

const banner = `
 _                                          _           _
| |_ _____      _____ _ __        __ _  __| |_ __ ___ (_)_ __
| __/ _ \ \ /\ / / _ \ '__|_____ / _' |/ _' | '_ ' _ \| | '_ \
| || (_) \ V  V /  __/ | |_____| (_| | (_| | | | | | | | | | |
 \__\___/ \_/\_/ \___|_|        \__,_|\__,_|_| |_| |_|_|_| |_|
`

// getConfigPath returns the path to the gateway config file.
// Priority: TOWER_CONFIG env var > XDG_CONFIG_HOME/tower/gateway.yaml > ~/.config/tower/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TOWER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "tower", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}
	if a := os.Args[1]; a == "help" || a == "-h" || a == "--help" {
		printUsage(os.Stdout)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		color.Red("Error: loading config: %v\n", err)
		os.Exit(1)
	}

	// Keep store logs off the command output.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	a, err := openAdmin(cfg, logger, os.Stdout)
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}

	err = a.run(ctx, os.Args[1:])
	if closeErr := a.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		color.Red("Error: %v\n", err)
		if errors.Is(err, errUsage) {
			printUsage(os.Stdout)
		}
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(w, banner)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: tower-admin <command> [args]")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  clients list                List every client and whether its store exists")
	fmt.Fprintln(w, "  clients show <id|email>     Show a client and its accounts")
	fmt.Fprintln(w, "  clients activate <id>       Re-enable a client")
	fmt.Fprintln(w, "  clients deactivate <id>     Block every account of a client")
	fmt.Fprintln(w, "  clients delete <id> --yes   Delete a client, its accounts and its tenant store")
	fmt.Fprintln(w, "  accounts activate <id>      Re-enable an account")
	fmt.Fprintln(w, "  accounts deactivate <id>    Block one account from logging in")
	fmt.Fprintln(w, "  tenants reconcile           Provision missing stores and report orphans")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  TOWER_CONFIG                Config file (default: ~/.config/tower/gateway.yaml)")
	fmt.Fprintln(w, "  TOWER_DB_PATH               Overrides database.path")
	fmt.Fprintln(w)
}

var errUsage = errors.New("invalid usage")

// admin holds the stores a command operates on.
type admin struct {
	registry store.Registry
	tenants  *tenantdb.Manager
	identity *identity.Service
	out      io.Writer
}

func openAdmin(cfg *config.Config, logger *slog.Logger, out io.Writer) (*admin, error) {
	registry, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}

	// One-shot commands gain nothing from pooling.
	tenants, err := tenantdb.New(tenantdb.Options{
		Root:         cfg.Tenants.Root,
		Driver:       cfg.Tenants.Driver,
		BusyTimeout:  cfg.Tenants.BusyTimeout,
		MaxRetries:   cfg.Tenants.MaxRetries,
		RetryBackoff: cfg.Tenants.RetryBackoff,
		Logger:       logger,
	})
	if err != nil {
		_ = registry.Close()
		return nil, fmt.Errorf("opening tenant stores: %w", err)
	}

	return &admin{
		registry: registry,
		tenants:  tenants,
		identity: identity.New(registry, tenants, identity.WithLogger(logger)),
		out:      out,
	}, nil
}

func (a *admin) Close() error {
	tenantErr := a.tenants.Close()
	if err := a.registry.Close(); err != nil {
		return err
	}
	return tenantErr
}

func (a *admin) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	group, cmd, rest := args[0], args[1], args[2:]

	switch group {
	case "clients":
		switch cmd {
		case "list":
			return a.listClients(ctx)
		case "show":
			id, err := requireID(rest)
			if err != nil {
				return err
			}
			return a.showClient(ctx, id)
		case "activate", "deactivate":
			id, err := requireID(rest)
			if err != nil {
				return err
			}
			return a.setActive(ctx, id, cmd == "activate")
		case "delete":
			id, err := requireID(rest)
			if err != nil {
				return err
			}
			return a.deleteClient(ctx, id, hasFlag(rest[1:], "--yes", "-y"))
		}
	case "accounts":
		switch cmd {
		case "activate", "deactivate":
			id, err := requireID(rest)
			if err != nil {
				return err
			}
			return a.setAccountActive(ctx, id, cmd == "activate")
		}
	case "tenants":
		if cmd == "reconcile" {
			return a.reconcile(ctx)
		}
	}
	return fmt.Errorf("%w: %s %s", errUsage, group, cmd)
}

func requireID(args []string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", fmt.Errorf("%w: id required", errUsage)
	}
	return args[0], nil
}

func hasFlag(args []string, names ...string) bool {
	for _, arg := range args {
		for _, name := range names {
			if arg == name {
				return true
			}
		}
	}
	return false
}

func (a *admin) listClients(ctx context.Context) error {
	clients, err := a.registry.ListClients(ctx)
	if err != nil {
		return err
	}
	if len(clients) == 0 {
		color.New(color.FgYellow).Fprintln(a.out, "  No clients registered")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tEMAIL\tTENANT\tSTATUS\tSTORE\tCREATED")
	fmt.Fprintln(w, "  --\t----\t-----\t------\t------\t-----\t-------")
	for _, c := range clients {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID,
			truncate(c.Name, 24),
			truncate(c.Email, 32),
			c.TenantID,
			status(c.IsActive),
			storeState(a.tenants.Exists(c.TenantID)),
			c.CreatedAt.Format("Jan 02 2006 15:04"),
		)
	}
	return w.Flush()
}

// lookupClient resolves a client by id, or by contact email when ref
// contains an @.
func (a *admin) lookupClient(ctx context.Context, ref string) (*store.Client, error) {
	if strings.Contains(ref, "@") {
		return a.registry.GetClientByEmail(ctx, strings.ToLower(strings.TrimSpace(ref)))
	}
	return a.registry.GetClient(ctx, ref)
}

func (a *admin) showClient(ctx context.Context, ref string) error {
	c, err := a.lookupClient(ctx, ref)
	if err != nil {
		return err
	}
	accounts, err := a.registry.ListAccountsByClient(ctx, c.ID)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Fprintln(a.out)
	cyan.Fprintln(a.out, "  Client")
	cyan.Fprintln(a.out, "  ------")
	fmt.Fprintf(a.out, "  ID:        %s\n", c.ID)
	fmt.Fprintf(a.out, "  Name:      %s\n", c.Name)
	fmt.Fprintf(a.out, "  Email:     %s\n", c.Email)
	fmt.Fprintf(a.out, "  Tenant:    %s\n", c.TenantID)
	fmt.Fprintf(a.out, "  Status:    %s\n", status(c.IsActive))
	fmt.Fprintf(a.out, "  Store:     %s\n", storeState(a.tenants.Exists(c.TenantID)))
	fmt.Fprintf(a.out, "  Created:   %s\n", c.CreatedAt.Format("Jan 02 2006 15:04"))
	fmt.Fprintln(a.out)

	cyan.Fprintf(a.out, "  Accounts (%d)\n", len(accounts))
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tUSERNAME\tEMAIL\tSTATUS")
	fmt.Fprintln(w, "  --\t--------\t-----\t------")
	for _, acc := range accounts {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", acc.ID, truncate(acc.Username, 24), acc.Email, status(acc.IsActive))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(a.out)
	return nil
}

func (a *admin) setActive(ctx context.Context, id string, active bool) error {
	var err error
	if active {
		err = a.identity.ActivateClient(ctx, id)
	} else {
		err = a.identity.DeactivateClient(ctx, id)
	}
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.out, "  ✓ Client %s is now %s\n", id, status(active))
	return nil
}

func (a *admin) setAccountActive(ctx context.Context, id string, active bool) error {
	var err error
	if active {
		err = a.identity.ActivateAccount(ctx, id)
	} else {
		err = a.identity.DeactivateAccount(ctx, id)
	}
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.out, "  ✓ Account %s is now %s\n", id, status(active))
	return nil
}

func (a *admin) deleteClient(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return fmt.Errorf("%w: deleting a client destroys its tenant store; pass --yes to confirm", errUsage)
	}
	if err := a.identity.DeleteClient(ctx, id); err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.out, "  ✓ Deleted client %s\n", id)
	return nil
}

func (a *admin) reconcile(ctx context.Context) error {
	report, err := a.identity.Reconcile(ctx)
	if report != nil {
		green := color.New(color.FgGreen)
		yellow := color.New(color.FgYellow)
		for _, id := range report.Provisioned {
			green.Fprintf(a.out, "  ✓ Provisioned %s\n", id)
		}
		for _, id := range report.Orphans {
			yellow.Fprintf(a.out, "  ! Orphan store %s (no client)\n", id)
		}
		fmt.Fprintf(a.out, "  %d provisioned, %d orphaned\n", len(report.Provisioned), len(report.Orphans))
	}
	return err
}

func status(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func storeState(exists bool) string {
	if exists {
		return "ok"
	}
	return "missing"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
