package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sqliteadapter "github.com/atvirokodosprendimai/holocron/internal/adapters/db/sqlite"
	httpadapter "github.com/atvirokodosprendimai/holocron/internal/adapters/http"
	"github.com/atvirokodosprendimai/holocron/internal/adapters/memory"
	rpcadapter "github.com/atvirokodosprendimai/holocron/internal/adapters/rpcjson"
	"github.com/atvirokodosprendimai/holocron/internal/adapters/swapi"
	"github.com/atvirokodosprendimai/holocron/internal/application"
	"github.com/atvirokodosprendimai/holocron/internal/domain"
	"github.com/atvirokodosprendimai/holocron/internal/platform/config"
	"github.com/atvirokodosprendimai/holocron/internal/platform/logging"
	telemetry "github.com/atvirokodosprendimai/holocron/internal/platform/otel"
	"github.com/atvirokodosprendimai/holocron/internal/state"
	"github.com/urfave/cli/v3"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "holocron",
		Usage: "Star Wars character dashboard server and CLI",
		Commands: []*cli.Command{
			serverCommand(),
			authCommand(),
			charactersCommand(),
			namesCommand(),
			auditCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run the dashboard HTTP server and JSON-RPC socket",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file read before the environment"},
			&cli.StringFlag{Name: "addr", Usage: "HTTP listen address (HOLOCRON_ADDR)"},
			&cli.StringFlag{Name: "rpc-socket", Usage: "JSON-RPC unix socket path (HOLOCRON_RPC_SOCKET)"},
			&cli.StringFlag{Name: "db-path", Usage: "SQLite database path (HOLOCRON_DB_PATH)"},
			&cli.BoolFlag{Name: "in-memory", Usage: "keep users and sessions in memory instead of SQLite"},
			&cli.StringFlag{Name: "swapi-url", Usage: "upstream API base URL (HOLOCRON_SWAPI_BASE_URL)"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error (HOLOCRON_LOG_LEVEL)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.Load(c.String("env-file"))
			if err != nil {
				return err
			}
			if c.IsSet("addr") {
				cfg.Addr = c.String("addr")
			}
			if c.IsSet("rpc-socket") {
				cfg.RPCSocket = c.String("rpc-socket")
			}
			if c.IsSet("db-path") {
				cfg.DBPath = c.String("db-path")
			}
			if c.Bool("in-memory") {
				cfg.DBPath = ""
			}
			if c.IsSet("swapi-url") {
				cfg.SWAPIBaseURL = c.String("swapi-url")
			}
			if c.IsSet("log-level") {
				cfg.LogLevel = c.String("log-level")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(ctx, cfg)
		},
	}
}

// openUserStore returns the user repository, the local storage provider and a
// func that releases them.
func openUserStore(ctx context.Context, dbPath string, logger *slog.Logger) (domain.UserRepository, domain.StorageProvider, func() error, error) {
	if dbPath == "" {
		logger.Info("using in-memory user store")
		return memory.NewUserRepository(), memory.NewProvider(), func() error { return nil }, nil
	}
	db, err := sqliteadapter.Open(dbPath)
	if err != nil {
		return nil, nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := sqliteadapter.RunMigrations(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, nil, nil, err
	}
	logger.Info("using sqlite user store", "path", dbPath)
	repo := sqliteadapter.NewRepository(db)
	return repo, repo, sqlDB.Close, nil
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger := logging.New(os.Stderr, cfg.LogLevel)

	shutdownTracing, err := telemetry.Setup(ctx, "holocron", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	users, storage, closeStore, err := openUserStore(ctx, cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("close user store", "error", err)
		}
	}()

	auth := application.NewAuthService(users, application.AuthConfig{
		Secret:         cfg.TokenSecret,
		TokenTTL:       cfg.TokenTTL,
		AuthLatency:    cfg.AuthLatency,
		RefreshLatency: cfg.RefreshLatency,
	}, logger)
	if err := auth.BootstrapDemoUser(ctx, cfg.DemoEmail, cfg.DemoPassword, cfg.DemoName); err != nil {
		return err
	}

	catalogue := swapi.NewClient(cfg.SWAPIBaseURL, swapi.WithTimeout(cfg.HTTPTimeout), swapi.WithLogger(logger))
	characters := application.NewCharacterService(catalogue,
		application.WithFetchConcurrency(cfg.FetchConcurrency),
		application.WithCharacterLogger(logger),
	)
	names := application.NewNameResolver(catalogue, cfg.FetchConcurrency, logger)

	router := httpadapter.NewRouter(httpadapter.Dependencies{
		Auth:       auth,
		Characters: characters,
		Names:      names,
		Storage:    storage,
		Sessions:   state.NewSessions(cfg.SearchDebounce),
		Logger:     logger,
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	rpcSrv, err := rpcadapter.Start(cfg.RPCSocket, rpcadapter.Services{
		Auth:       auth,
		Characters: characters,
		Names:      names,
		Storage:    storage,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	defer func() {
		_ = rpcSrv.Close()
	}()
	logger.Info("json-rpc listening", "socket", "unix://"+cfg.RPCSocket)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "upstream", cfg.SWAPIBaseURL)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// connectionConfig starts from the saved config and applies the connection flags.
func connectionConfig(c *cli.Command) cliConfig {
	cfg, err := loadConfig()
	if err != nil {
		cfg = cliConfig{}.withDefaults()
	}
	for name, field := range map[string]*string{"transport": &cfg.Transport, "server": &cfg.Server, "socket": &cfg.Socket} {
		if c.IsSet(name) || *field == "" {
			*field = c.String(name)
		}
	}
	return cfg
}

func connectionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "transport", Value: "uds", Usage: "uds or http"},
		&cli.StringFlag{Name: "server", Value: defaultServer},
		&cli.StringFlag{Name: "socket", Value: defaultSocket},
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authentication commands",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Login and store CLI token",
				Flags: append(connectionFlags(),
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
				),
				Action: func(ctx context.Context, c *cli.Command) error {
					out, err := newHolocronClient(connectionConfig(c)).Login(ctx, c.String("email"), c.String("password"))
					if err != nil {
						return err
					}
					fmt.Printf("logged in as %s\n", authEmail(out))
					return nil
				},
			},
			{
				Name:  "signup",
				Usage: "Create an account and store CLI token",
				Flags: append(connectionFlags(),
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "name"},
				),
				Action: func(ctx context.Context, c *cli.Command) error {
					out, err := newHolocronClient(connectionConfig(c)).Signup(ctx, c.String("email"), c.String("password"), c.String("name"))
					if err != nil {
						return err
					}
					fmt.Printf("signed up as %s\n", authEmail(out))
					return nil
				},
			},
			{
				Name:  "refresh",
				Usage: "Exchange the stored token for a fresh one",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					out, err := newHolocronClient(cfg).Refresh(ctx)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printKV([][2]string{{"expires_in", fmt.Sprintf("%ds", out.ExpiresIn)}})
					return nil
				},
			},
			{
				Name:  "whoami",
				Usage: "Show current authenticated user",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					out, err := newHolocronClient(cfg).WhoAmI(ctx)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printKV([][2]string{{"id", uintToString(out.ID)}, {"email", out.Email}, {"name", out.Name}})
					return nil
				},
			},
			{
				Name:  "logout",
				Usage: "End the session and clear the local CLI token",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					if err := newHolocronClient(cfg).Logout(ctx); err != nil {
						fmt.Fprintf(os.Stderr, "server logout failed: %v\n", err)
					}
					fmt.Println("logged out")
					return nil
				},
			},
		},
	}
}

func charactersCommand() *cli.Command {
	return &cli.Command{
		Name:  "characters",
		Usage: "Character commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List one page of characters, optionally searched and filtered",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "page", Value: 1},
					&cli.StringFlag{Name: "search"},
					&cli.StringFlag{Name: "species"},
					&cli.StringFlag{Name: "homeworld"},
					&cli.StringFlag{Name: "film"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					q := domain.CharacterQuery{
						Page:   c.Int("page"),
						Search: c.String("search"),
						Filters: domain.Filters{
							Species:   c.String("species"),
							Homeworld: c.String("homeworld"),
							Film:      c.String("film"),
						},
					}
					out, err := newHolocronClient(cfg).Characters(ctx, q)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printCharacters(out)
					return nil
				},
			},
		},
	}
}

func namesCommand() *cli.Command {
	return &cli.Command{
		Name:  "names",
		Usage: "Resource name commands",
		Commands: []*cli.Command{
			{
				Name:      "resolve",
				Usage:     "Resolve resource URLs to display names",
				ArgsUsage: "URL [URL...]",
				Flags:     []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					urls := c.Args().Slice()
					if len(urls) == 0 {
						return errors.New("at least one URL is required")
					}
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					out, err := newHolocronClient(cfg).ResolveNames(ctx, urls)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printNames(urls, out)
					return nil
				},
			},
		},
	}
}

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Audit log commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List audit logs",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 200},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					out, err := newHolocronClient(cfg).AuditLogs(ctx, c.Int("limit"))
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printAuditRecords(out)
					return nil
				},
			},
		},
	}
}

func authEmail(res domain.AuthResult) string {
	if res.User == nil {
		return "-"
	}
	return res.User.Email
}

func jsonMarshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
