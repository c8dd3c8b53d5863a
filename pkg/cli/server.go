package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mchmarny/asdscreen/pkg/artifact"
	"github.com/mchmarny/asdscreen/pkg/config"
	"github.com/mchmarny/asdscreen/pkg/data"
	"github.com/mchmarny/asdscreen/pkg/logging"
	"github.com/mchmarny/asdscreen/pkg/scoring"
	urfave "github.com/urfave/cli/v3"
)

const (
	serverShutdownWaitSeconds = 5
	serverMaxHeaderBytes      = 20
)

const (
	flagAddress      = "address"
	flagPort         = "port"
	flagArtifacts    = "artifacts"
	flagAuditDSN     = "audit-dsn"
	flagStrictStatus = "strict-status"
	flagMaxUpload    = "max-upload-mb"
	flagLogFormat    = "log-format"
	flagAPIToken     = "api-token"
)

func newServeCmd() *urfave.Command {
	return &urfave.Command{
		Name:    "serve",
		Aliases: []string{"server"},
		Usage:   "Start the prediction HTTP server",
		Action:  cmdServe,
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:  flagAddress,
				Usage: "Address on which the server will listen",
			},
			&urfave.IntFlag{
				Name:    flagPort,
				Usage:   "Port on which the server will listen",
				Sources: urfave.EnvVars("PORT"),
			},
			&urfave.StringFlag{
				Name:    flagArtifacts,
				Usage:   "Artifact directory, relative paths resolve against the executable's directory",
				Sources: urfave.EnvVars("ASDSCREEN_ARTIFACTS"),
			},
			&urfave.StringFlag{
				Name:    flagAuditDSN,
				Usage:   "Audit store: sqlite file path or postgres:// URL (optional)",
				Sources: urfave.EnvVars("ASDSCREEN_AUDIT_DSN"),
			},
			&urfave.BoolFlag{
				Name:  flagStrictStatus,
				Usage: "Return 415/422/500 for rejected uploads instead of 200",
			},
			&urfave.IntFlag{
				Name:  flagMaxUpload,
				Usage: "Maximum upload size in MB",
			},
			&urfave.StringFlag{
				Name:  flagLogFormat,
				Usage: "Server log format [text, json]",
			},
			&urfave.StringFlag{
				Name:    flagAPIToken,
				Usage:   "Bearer token required on /predict and /history (optional)",
				Sources: urfave.EnvVars("ASDSCREEN_API_TOKEN"),
			},
		},
	}
}

type routerOptions struct {
	scorer         *scoring.Scorer
	store          *data.Store
	maxUploadBytes int64
	strictStatus   bool
	token          string
}

// serveConfig layers serve flags and their env sources over the config file.
func serveConfig(cmd *urfave.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if cmd.IsSet(flagAddress) {
		cfg.Server.Address = cmd.String(flagAddress)
	}
	if cmd.IsSet(flagPort) {
		cfg.Server.Port = cmd.Int(flagPort)
	}
	if cmd.IsSet(flagArtifacts) {
		cfg.Artifacts.Dir = cmd.String(flagArtifacts)
	}
	if cmd.IsSet(flagAuditDSN) {
		cfg.Audit.DSN = cmd.String(flagAuditDSN)
	}
	if cmd.IsSet(flagStrictStatus) {
		cfg.Server.StrictStatus = cmd.Bool(flagStrictStatus)
	}
	if cmd.IsSet(flagMaxUpload) {
		cfg.Server.MaxUploadMB = cmd.Int(flagMaxUpload)
	}
	if cmd.IsSet(flagLogFormat) {
		cfg.Log.Format = cmd.String(flagLogFormat)
	}
	if cmd.IsSet(flagAPIToken) {
		cfg.Server.Token = cmd.String(flagAPIToken)
	}
	if cmd.Bool(flagDebug) {
		cfg.Log.Level = "debug"
	} else if cmd.IsSet(flagLogLevel) {
		cfg.Log.Level = cmd.String(flagLogLevel)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	return cfg, nil
}

func cmdServe(ctx context.Context, cmd *urfave.Command) error {
	cfg, err := serveConfig(cmd)
	if err != nil {
		return err
	}
	logging.SetDefaultServerLogger(cfg.Log.Level, cfg.Log.Format)

	s, closer, err := newServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("server started", "address", fmt.Sprintf("http://%s", s.Addr))

	select {
	case <-done:
	case err := <-errCh:
		return fmt.Errorf("error starting server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("error shutting down server", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

// newServer loads the artifacts and opens the audit store. Nothing listens
// unless every artifact loads. The returned func releases the store.
func newServer(ctx context.Context, cfg *config.Config) (*http.Server, func(), error) {
	dir, err := artifact.ResolveDir(cfg.Artifacts.Dir)
	if err != nil {
		return nil, nil, err
	}

	bundle, err := artifact.Load(ctx, dir, cfg.Artifacts.Files)
	if err != nil {
		var me *artifact.MissingError
		if errors.As(err, &me) {
			slog.Error("missing model artifact", "name", me.Name, "path", me.Path)
		} else {
			slog.Error("error loading model artifacts", "dir", dir, "error", err)
		}
		return nil, nil, err
	}
	slog.Info("model artifacts loaded",
		"dir", dir,
		"features", len(bundle.Features),
		"imputer", bundle.Imputer.Kind(),
		"model", bundle.Classifier.Kind())

	var store *data.Store
	if cfg.Audit.DSN != "" {
		if store, err = data.Open(ctx, cfg.Audit.DSN); err != nil {
			return nil, nil, fmt.Errorf("opening audit store: %w", err)
		}
		slog.Info("audit store enabled", "driver", store.Driver())
	}
	if cfg.Server.Token != "" {
		slog.Info("bearer token required")
	}

	closer := func() {
		if err := store.Close(); err != nil {
			slog.Error("error closing audit store", "error", err)
		}
	}

	handler := makeRouter(&routerOptions{
		scorer:         scoring.NewFromBundle(bundle),
		store:          store,
		maxUploadBytes: cfg.MaxUploadBytes(),
		strictStatus:   cfg.Server.StrictStatus,
		token:          cfg.Server.Token,
	})

	timeout := time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	s := &http.Server{
		Addr:           cfg.Address(),
		Handler:        handler,
		ReadTimeout:    timeout,
		WriteTimeout:   timeout,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}
	return s, closer, nil
}

func makeRouter(opts *routerOptions) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+healthPath, healthAPIHandler())
	mux.HandleFunc("POST /predict", predictAPIHandler(opts))
	mux.HandleFunc("GET /history", historyAPIHandler(opts.store))

	return withRequestID(withRecover(withCORS(withToken(opts.token, mux))))
}
