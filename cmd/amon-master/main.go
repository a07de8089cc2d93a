package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/isabella232/sdc-amon/master/api"
	"github.com/isabella232/sdc-amon/master/cache"
	"github.com/isabella232/sdc-amon/master/mapi"
	"github.com/isabella232/sdc-amon/master/ufds"
	"github.com/isabella232/sdc-amon/pkg/config"
	"github.com/isabella232/sdc-amon/pkg/notify"
	"github.com/isabella232/sdc-amon/pkg/probetype"
)

const (
	defaultConfigPath = "/opt/smartdc/amon/etc/master.yaml"
	shutdownTimeout   = 10 * time.Second
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "amon-master",
		Short:        "Amon master: authoritative monitoring API and event dispatcher",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(viper.GetString("config"))
		},
	}
	rootCmd.Flags().StringP("config", "c", defaultConfigPath, "path to the MasterConfig YAML")

	viper.SetEnvPrefix("AMON_MASTER")
	viper.AutomaticEnv()
	if err := viper.BindPFlag("config", rootCmd.Flags().Lookup("config")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadMaster(configPath)
	if err != nil {
		return err
	}

	log := hclog.New(&hclog.LoggerOptions{
		Name:  "amon-master",
		Level: hclog.LevelFromString(cfg.LogLevel),
	})

	types := probetype.Default()

	dir := ufds.New(ufds.Config{
		URL:          cfg.UFDS.URL,
		BindDN:       cfg.UFDS.BindDN,
		BindPassword: cfg.UFDS.BindPassword,
		Registry:     types,
		Log:          log,
	})
	if err := dir.Connect(); err != nil {
		// The directory may come up after us; the client rebinds on use.
		log.Warn("initial directory connection failed", "error", err)
	}
	defer dir.Close()

	machines, err := mapi.New(mapi.Config{
		URL:      cfg.MAPI.URL,
		Username: cfg.MAPI.Username,
		Password: cfg.MAPI.Password,
		Log:      log,
	})
	if err != nil {
		return err
	}

	notifiers, err := buildNotifiers(cfg.NotificationPlugins)
	if err != nil {
		return err
	}
	log.Info("notification plugins loaded", "media", notifiers.Media())

	handler, err := api.New(api.Config{
		Directory:    dir,
		Machines:     machines,
		ProbeTypes:   types,
		Notifiers:    notifiers,
		AccountCache: cache.New(cfg.AccountCache.Size, time.Duration(cfg.AccountCache.Expiry)*time.Second),
		ProbeCache:   cache.New(cfg.ProbeCache.Size, time.Duration(cfg.ProbeCache.Expiry)*time.Second),
		Log:          log,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// buildNotifiers turns the configured plugin sections into a registry. A
// section's presence enables its plugin.
func buildNotifiers(cfg config.NotificationPluginsConfig) (*notify.Registry, error) {
	var notifiers []notify.Notifier
	if cfg.Email != nil {
		notifiers = append(notifiers, notify.NewEmail(notify.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		}))
	}
	if cfg.Webhook != nil {
		notifiers = append(notifiers, notify.NewWebhook())
	}
	if cfg.Kafka != nil {
		notifiers = append(notifiers, notify.NewKafka(notify.KafkaConfig{
			Endpoints: cfg.Kafka.Endpoints,
		}))
	}
	return notify.NewRegistry(notifiers...)
}
