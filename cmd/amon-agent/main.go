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

	"github.com/isabella232/sdc-amon/agent"
	"github.com/isabella232/sdc-amon/pkg/config"
)

const defaultConfigPath = "/opt/smartdc/amon/etc/agent.yaml"

func main() {
	rootCmd := &cobra.Command{
		Use:          "amon-agent",
		Short:        "Amon agent: in-sandbox probe runner",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(viper.GetString("config"))
		},
	}
	rootCmd.Flags().StringP("config", "c", defaultConfigPath, "path to the AgentConfig YAML")

	viper.SetEnvPrefix("AMON_AGENT")
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
	cfg, err := config.LoadAgent(configPath)
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

	a, err := agent.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}
