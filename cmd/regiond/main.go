// regiond – bare-metal provisioning region controller
//
// Usage:
//
//	regiond serve [--config path]   – run the region controller
//	regiond adduser <name>          – create an API user and print its key
package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lyubomir-popov/maas/internal/api"
	"github.com/lyubomir-popov/maas/internal/config"
	"github.com/lyubomir-popov/maas/internal/datastore"
	"github.com/lyubomir-popov/maas/internal/domain"
	"github.com/lyubomir-popov/maas/internal/preseed"
	"github.com/lyubomir-popov/maas/internal/repository"
	"github.com/lyubomir-popov/maas/internal/rpc"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "regiond",
		Short: "Bare-metal provisioning region controller",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	root.AddCommand(serveCmd(&configPath), addUserCmd(&configPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the region controller",
		RunE: func(_ *cobra.Command, _ []string) error {
			return serve(*configPath)
		},
	}
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ds, err := cfg.InitializeDatabase()
	if err != nil {
		return err
	}
	defer func() { _ = ds.DB.Close() }()

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("regiond"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATSURL, err)
	}
	defer nc.Close()

	regionServer := rpc.NewRegionServer(repository.NewRegionStore(ds), log)
	if err := regionServer.Subscribe(nc); err != nil {
		return fmt.Errorf("failed to subscribe region RPC handlers: %w", err)
	}
	defer regionServer.Close()

	rack := rpc.NewRackClient(nc)
	engine, err := newEngine(cfg, ds, rack, log)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.StripSlashes)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	api.NewAPI(ds, engine, rack, log).RegisterRoutes(r)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintln(w, "MAAS region controller is running")
	})

	log.Info("starting region controller",
		zap.String("listen", cfg.ListenAddr),
		zap.String("nats", cfg.NATSURL),
		zap.String("enlist_preseed_url", engine.ComposeEnlistmentPreseedURL("")))
	return http.ListenAndServe(cfg.ListenAddr, r)
}

func newEngine(cfg *config.Config, ds *datastore.Datastore, rack rpc.RackClient, log *zap.Logger) (*preseed.Engine, error) {
	providers := make([]preseed.TemplateProvider, 0, len(cfg.TemplateDirs))
	for _, dir := range cfg.TemplateDirs {
		providers = append(providers, preseed.DirProvider{Dir: dir})
	}
	drivers, err := preseed.LoadDriverDB(cfg.DriverDBPath())
	if err != nil {
		return nil, err
	}
	return &preseed.Engine{
		Store:   repository.NewPreseedStore(ds),
		Rack:    rack,
		Loader:  &preseed.Loader{Providers: providers},
		Kernel:  preseed.NewStaticKernelResolver(),
		Storage: preseed.NopStorageComposer{},
		Network: preseed.DHCPNetworkComposer{},
		Caps: domain.CurtinCapabilities{
			WebhookEvents: cfg.CurtinWebhookEvents,
			CustomStorage: cfg.CurtinCustomStorage,
		},
		Drivers:   drivers,
		ServerURL: cfg.MAASURL,
		Log:       log,
	}, nil
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func addUserCmd(configPath *string) *cobra.Command {
	var admin bool
	cmd := &cobra.Command{
		Use:   "adduser <username>",
		Short: "Create an API user and print its key",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ds, err := cfg.InitializeDatabase()
			if err != nil {
				return err
			}
			defer func() { _ = ds.DB.Close() }()

			user, err := repository.NewUserRepository(ds).Create(c.Context(), domain.User{
				Username: args[0],
				APIKey:   strings.ReplaceAll(uuid.NewString(), "-", ""),
				IsAdmin:  admin,
			})
			if err != nil {
				return err
			}
			fmt.Printf("api key for %s: %s\n", user.Username, user.APIKey)
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "grant admin privileges")
	return cmd
}
