package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kvelle/parley/internal/profile"
	"github.com/kvelle/parley/internal/version"
	"github.com/kvelle/parley/metrics"
	"github.com/kvelle/parley/netcache"
	"github.com/kvelle/parley/server"
	"github.com/kvelle/parley/store"
	"github.com/kvelle/parley/store/db"
	"github.com/kvelle/parley/sync"
	"github.com/kvelle/parley/sync/retry"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: `An offline-first chat synchronization core. Captures mutations while offline and replays them when connectivity returns.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		_ = godotenv.Load()
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if apiBaseURL := viper.GetString("api-base-url"); apiBaseURL != "" {
			instanceProfile.APIBaseURL = apiBaseURL
		}
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			slog.Error("failed to create db driver", "error", err)
			return
		}

		exporter := metrics.NewExporter()
		dbDriver.SetFallbackObserver(exporter.ObserveFallbackScan)

		storeInstance := store.New(dbDriver, instanceProfile)
		defer storeInstance.Close()
		if err := storeInstance.Migrate(ctx); err != nil {
			slog.Error("failed to migrate", "error", err)
			return
		}

		cacheTransport := netcache.New(ctx, storeInstance, netcache.Options{
			Generation:  instanceProfile.CacheVersion,
			APIPrefix:   instanceProfile.APIPrefix,
			FallbackURL: "/offline",
			Origin:      instanceProfile.APIBaseURL,
			Exporter:    exporter,
		})

		httpTransport := sync.NewHTTPTransport(nil, instanceProfile.APIBaseURL)
		queue := sync.NewQueue(storeInstance)
		coordinator := sync.NewCoordinator(queue, httpTransport, exporter, sync.Options{
			SettleDelay:    instanceProfile.SyncSettleDelay,
			AttemptTimeout: instanceProfile.SyncAttemptTimeout,
			RetryConfig: &retry.Config{
				MaxRetries:   instanceProfile.SyncMaxRetries,
				InitialDelay: retry.DefaultConfig().InitialDelay,
			},
		})
		if err := coordinator.Start(ctx); err != nil {
			slog.Error("failed to start sync coordinator", "error", err)
			return
		}
		// Assume connectivity at startup; the first failed replay flips
		// callers into queue mode through their own connectivity probes.
		coordinator.SetOnline(true)

		s, err := server.NewServer(ctx, instanceProfile, coordinator, queue, cacheTransport, exporter)
		if err != nil {
			slog.Error("failed to create server", "error", err)
			return
		}

		c := make(chan os.Signal, 1)
		signal.Notify(c, terminationSignals...)

		if err := s.Start(ctx); err != nil {
			slog.Error("failed to start server", "error", err)
			return
		}

		printGreetings(instanceProfile)

		go func() {
			<-c
			s.Shutdown(ctx)
			coordinator.Stop()
			cancel()
		}()

		<-ctx.Done()
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite, postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("api-base-url", "", "base url of the remote chat API")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn", "api-base-url"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("parley")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("Parley %s started successfully!\n", profile.Version)
	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Database driver: %s\n", profile.Driver)
	fmt.Printf("Mode: %s\n", profile.Mode)
	if len(profile.Addr) == 0 {
		fmt.Printf("Status server running on port %d\n", profile.Port)
	} else {
		fmt.Printf("Status server running on %s:%d\n", profile.Addr, profile.Port)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
