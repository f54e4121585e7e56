package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/basic-auth/internal/config"
	"github.com/eugenenazirov/basic-auth/internal/credentials"
	"github.com/eugenenazirov/basic-auth/internal/logging"
	"github.com/eugenenazirov/basic-auth/internal/storage"
)

const (
	msgSucceeded = "Action succeeded"
	msgNoOp      = "No action performed"
)

// errNoDatabase is returned when the configuration selects in-memory storage.
var errNoDatabase = errors.New("manage-credentials requires a database, set db.dsn, DB_DSN or --db-dsn")

type command struct {
	action      string
	username    string
	password    string
	description string
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "manage-credentials: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cmd, overrides, err := parseArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Database.Driver == storage.DriverMemory {
		return errNoDatabase
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := storage.Connect(connectCtx, cfg.Database.Driver, cfg.Database.DSN, storage.WithLogger(logger))
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close storage", zap.Error(err))
		}
	}()

	service := credentials.NewService(store, credentials.WithHashCost(cfg.PasswordHashCost))
	result, err := dbCall(ctx, service, cmd)
	if err != nil {
		return err
	}
	return printResult(out, result)
}

func parseArgs(args []string) (command, *config.CLIOverrides, error) {
	app := kingpin.New("manage-credentials", "Manage API credentials for the basic-auth service")
	configFile := app.Flag("config", "Path to YAML configuration file (defaults to ./config.yaml when present)").String()
	envFile := app.Flag("env-file", "Path to a .env file loaded into the environment").String()
	dbDriver := app.Flag("db-driver", "Credentials storage driver (postgres, mysql, sqlite)").String()
	dbDSN := app.Flag("db-dsn", "Credentials database DSN").String()
	logLevel := app.Flag("log-level", "Log level (debug, info, warn, error)").Default("warn").String()

	add := app.Command("add", "Add API credentials")
	addUsername := add.Arg("username", "Username").Required().String()
	addPassword := add.Arg("password", "Password").Required().String()
	addDescription := add.Flag("description", "Credentials description").Short('d').String()

	remove := app.Command("remove", "Remove API credentials")
	removeUsername := remove.Arg("username", "Username").Required().String()

	app.Command("list", "List API credentials")

	action, err := app.Parse(args)
	if err != nil {
		return command{}, nil, err
	}

	cmd := command{action: action}
	switch action {
	case "add":
		cmd.username = *addUsername
		cmd.password = *addPassword
		cmd.description = *addDescription
	case "remove":
		cmd.username = *removeUsername
	}

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
		EnvFile:    *envFile,
		DBDriver:   dbDriver,
		DBDSN:      dbDSN,
		LogLevel:   logLevel,
	}
	return cmd, overrides, nil
}

// dbCall executes cmd and returns nil, a bool or a credentials list.
func dbCall(ctx context.Context, service *credentials.Service, cmd command) (any, error) {
	switch cmd.action {
	case "add":
		_, err := service.Create(ctx, credentials.Input{
			Username:    cmd.username,
			Password:    cmd.password,
			Description: cmd.description,
		})
		if err != nil {
			return nil, err
		}
		return true, nil
	case "remove":
		return service.Delete(ctx, cmd.username)
	case "list":
		return service.List(ctx, credentials.ListOptions{})
	default:
		return nil, fmt.Errorf("unknown action %q", cmd.action)
	}
}

func printResult(out io.Writer, result any) error {
	switch r := result.(type) {
	case nil:
		return nil
	case bool:
		msg := msgNoOp
		if r {
			msg = msgSucceeded
		}
		_, err := fmt.Fprintln(out, msg)
		return err
	case []credentials.Credentials:
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "USERNAME\tDESCRIPTION\tCREATED")
		for _, c := range r {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Username, c.Description, c.CreatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unexpected result type %T", result)
	}
}
