package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/isabella232/sdc-amon/pkg/config"
	"github.com/isabella232/sdc-amon/relay"
)

const defaultConfigPath = "/opt/smartdc/amon/etc/relay.yaml"

func main() {
	rootCmd := &cobra.Command{
		Use:          "amon-relay",
		Short:        "Amon relay: per-node manifest mirror and event forwarder",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(viper.GetString("config"))
		},
	}
	rootCmd.Flags().StringP("config", "c", defaultConfigPath, "path to the RelayConfig YAML")

	viper.SetEnvPrefix("AMON_RELAY")
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
	cfg, err := config.LoadRelay(configPath)
	if err != nil {
		return err
	}

	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logLevel: %w", err)
	}
	log.SetLevel(level)

	rel, err := relay.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rel.Run(ctx)
}
