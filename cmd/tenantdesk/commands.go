package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	cfnats "github.com/Strob0t/tenantdesk/internal/adapter/nats"
	"github.com/Strob0t/tenantdesk/internal/adapter/postgres"
	"github.com/Strob0t/tenantdesk/internal/adapter/tenantapi"
	"github.com/Strob0t/tenantdesk/internal/config"
	"github.com/Strob0t/tenantdesk/internal/domain/session"
	"github.com/Strob0t/tenantdesk/internal/domain/tenant"
	"github.com/Strob0t/tenantdesk/internal/logger"
	"github.com/Strob0t/tenantdesk/internal/port/messagequeue"
	"github.com/Strob0t/tenantdesk/internal/resilience"
	"github.com/Strob0t/tenantdesk/internal/service"
)

// cookieEnv supplies the session cookie to CLI commands without a prompt.
const cookieEnv = "TENANTDESK_SESSION_COOKIE"

// runCommand dispatches CLI subcommands (session, migrate, events).
func runCommand(name string, args []string) error {
	switch name {
	case "session":
		return runSession(args)
	case "migrate":
		return runMigrate(args)
	case "events":
		return runEvents(args)
	case "help", "--help", "-h":
		printHelp()
		return nil
	default:
		printHelp()
		return fmt.Errorf("unknown command: %s", name)
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `Usage: tenantdesk [command] [options]

Commands:
  serve                            Run the HTTP server (default)
  session tenants                  List the tenants the session belongs to
  session current                  Show the current tenant and role
  session switch --tenant ID       Switch the current tenant
  session create --name N [--slug S]
                                   Create a tenant
  session invite --email E --role R
                                   Invite a member into the current tenant
  migrate up|down|status           Manage the switch audit schema
  events [--subject tenants.>]     Print tenant events from NATS
  help                             Show this help message

The session cookie is read from --cookie, then $%s, then prompted.
`, cookieEnv)
}

// loadCLIConfig loads config and routes logs to stderr so stdout stays clean.
func loadCLIConfig() (*config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, closer := logger.NewWithWriter(cfg.Logging, os.Stderr)
	slog.SetDefault(log)
	return cfg, closer.Close, nil
}

func runSession(args []string) error {
	if len(args) == 0 {
		printHelp()
		return errors.New("session: missing subcommand")
	}
	sub, args := args[0], args[1:]

	fs := flag.NewFlagSet("session "+sub, flag.ContinueOnError)
	cookieFlag := fs.String("cookie", "", "session cookie value (prompted if not provided)")
	tenantID := fs.String("tenant", "", "tenant id (switch)")
	name := fs.String("name", "", "tenant name (create)")
	slugFlag := fs.String("slug", "", "tenant slug; derived from --name when empty (create)")
	email := fs.String("email", "", "invitee email (invite)")
	role := fs.String("role", string(tenant.RoleMember), "invitee role (invite)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, cleanup, err := loadCLIConfig()
	if err != nil {
		return err
	}
	defer cleanup()

	cookie, err := resolveCookie(*cookieFlag)
	if err != nil {
		return err
	}

	factory := tenantapi.NewFactory(cfg.TenantAPI)
	factory.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	m := service.NewSessionManager(service.PrincipalKey(cookie), factory.ForSession(cookie),
		service.SessionConfig{SwitchTimeout: cfg.Session.SwitchTimeout, SubscriberBuffer: 1},
		service.SessionDeps{})
	defer m.Close()

	ctx := context.Background()
	switch sub {
	case "tenants":
		if err := m.RefreshTenants(ctx); err != nil {
			return err
		}
		return printTenants(os.Stdout, m.Snapshot())
	case "current":
		if err := m.RefreshCurrentTenant(ctx); err != nil {
			return err
		}
		return printCurrent(os.Stdout, m.View())
	case "switch":
		if err := m.RefreshCurrentTenant(ctx); err != nil {
			return err
		}
		if err := m.SwitchTenant(ctx, *tenantID); err != nil {
			return err
		}
		return printCurrent(os.Stdout, m.View())
	case "create":
		req := tenant.CreateRequest{Name: *name, Slug: *slugFlag}
		if req.Slug == "" {
			req.Slug = tenant.SuggestSlug(req.Name)
		}
		t, err := m.CreateTenant(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Tenant created: %s (id=%s, slug=%s)\n", t.Name, t.ID, t.Slug)
		return nil
	case "invite":
		if err := m.RefreshCurrentTenant(ctx); err != nil {
			return err
		}
		req := tenant.InviteMemberRequest{Email: *email, Role: tenant.Role(strings.ToUpper(*role))}
		if err := m.InviteMember(ctx, req); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Invitation sent to %s\n", req.Email)
		return nil
	default:
		printHelp()
		return fmt.Errorf("unknown session command: %s", sub)
	}
}

func printTenants(w io.Writer, snap session.Snapshot) error {
	if len(snap.UserTenants) == 0 {
		_, err := fmt.Fprintln(w, "No tenants found.")
		return err
	}
	current := snap.CurrentTenantID()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSLUG\tNAME\tSTATUS\tCURRENT")
	for i := range snap.UserTenants {
		t := &snap.UserTenants[i]
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", t.ID, t.Slug, t.Name, t.Status, t.ID == current)
	}
	return tw.Flush()
}

func printCurrent(w io.Writer, v session.View) error {
	if v.CurrentTenant == nil {
		_, err := fmt.Fprintln(w, "No current tenant.")
		return err
	}
	role := ""
	if v.CurrentMembership != nil {
		role = string(v.CurrentMembership.Role)
	}
	_, err := fmt.Fprintf(w, "%s (%s) role=%s tier=%s\n", v.CurrentTenant.Name, v.CurrentTenant.ID, role, v.RoleTier)
	return err
}

// resolveCookie returns the flag value, then the environment, then prompts.
func resolveCookie(flagValue string) (string, error) {
	if c := strings.TrimSpace(flagValue); c != "" {
		return c, nil
	}
	if c := strings.TrimSpace(os.Getenv(cookieEnv)); c != "" {
		return c, nil
	}
	c, err := promptSecret("Session cookie: ")
	if err != nil {
		return "", fmt.Errorf("read cookie: %w", err)
	}
	if c = strings.TrimSpace(c); c == "" {
		return "", errors.New("session cookie is required")
	}
	return c, nil
}

// promptSecret reads a value from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func runMigrate(args []string) error {
	if len(args) == 0 {
		printHelp()
		return errors.New("migrate: missing subcommand")
	}
	fs := flag.NewFlagSet("migrate "+args[0], flag.ContinueOnError)
	steps := fs.Int("steps", 1, "migrations to roll back (down)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, cleanup, err := loadCLIConfig()
	if err != nil {
		return err
	}
	defer cleanup()
	if cfg.Postgres.DSN == "" {
		return errors.New("migrate: postgres.dsn is not configured")
	}

	ctx := context.Background()
	switch args[0] {
	case "up":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return err
		}
	case "down":
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
			return err
		}
	case "status":
	default:
		printHelp()
		return fmt.Errorf("unknown migrate command: %s", args[0])
	}

	v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Printf("schema version %d\n", v)
	return nil
}

func runEvents(args []string) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	subject := fs.String("subject", messagequeue.SubjectTenantAll, "subject filter")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, cleanup, err := loadCLIConfig()
	if err != nil {
		return err
	}
	defer cleanup()
	if cfg.NATS.URL == "" {
		return errors.New("events: nats.url is not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue, err := cfnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return err
	}
	defer queue.Close()

	enc := json.NewEncoder(os.Stdout)
	unsubscribe, err := queue.Subscribe(ctx, *subject, func(_ context.Context, subject string, data []byte) error {
		return enc.Encode(struct {
			Subject string          `json:"subject"`
			Event   json.RawMessage `json:"event"`
		}{subject, data})
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	<-ctx.Done()
	return nil
}
