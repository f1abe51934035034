package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/botforge/chatflow/agent"
	"github.com/botforge/chatflow/config"
	"github.com/botforge/chatflow/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cfg struct {
	config.Config
}

type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("namespace", "chatflow", "namespace used in storage")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("storage-impl", "redis", "implementation of underline storage")
	cmd.Flags().Int("max-steps", 25, "maximum block evaluations per advance call")
	cmd.Flags().Int("lock-wait-ms", 2000, "max wait for the per conversation lease")
	cmd.Flags().Int("delay-poll-seconds", 1, "delay queue poll interval")
	cmd.Flags().Int("delay-partitions", 4, "number of delay queue partitions")
	cmd.Flags().String("log-level", "info", "log level")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)

	if err = viper.ReadInConfig(); err != nil {
		// it's ok if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configFile != "" {
			return err
		}
	}

	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.MaxStepsPerAdvance = viper.GetInt("max-steps")
	c.cfg.LockWaitMillis = viper.GetInt("lock-wait-ms")
	c.cfg.DelayPollSeconds = viper.GetInt("delay-poll-seconds")
	c.cfg.DelayPartitions = viper.GetInt("delay-partitions")
	c.cfg.LogLevel = viper.GetString("log-level")
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	logger.InitLogger(c.cfg.LogLevel)
	a, err := agent.New(c.cfg.Config)
	if err != nil {
		panic(err)
	}
	if err = a.Start(); err != nil {
		panic(err)
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return a.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "chatflow",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
