package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dagwatch/dagwatch/src/config"
	"github.com/dagwatch/dagwatch/src/dagwatch"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts dagwatch
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Watch a ledger feed",
		PreRunE: loadConfig,
		RunE:    runDagwatch,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runDagwatch(cmd *cobra.Command, args []string) error {
	engine := dagwatch.NewDagwatch(&_config.Dagwatch)

	if err := engine.Init(); err != nil {
		_config.Dagwatch.Logger().WithError(err).Error("Cannot initialize engine")
		return err
	}
	defer engine.Close()

	// SIGINT and SIGTERM cancel the engine
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return engine.Run(ctx)
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Dagwatch.DataDir, "Directory containing the optional dagwatch.toml")
	cmd.Flags().String("log", _config.Dagwatch.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-dir", _config.Dagwatch.LogDir, "Also write dagwatch_info.log and dagwatch_debug.log to this directory")

	// Feed
	cmd.Flags().StringP("feed", "f", _config.Dagwatch.FeedURL, "Websocket URL of the ledger node feed")
	cmd.Flags().Duration("retry", _config.Dagwatch.RetryDelay, "Delay before reconnecting to the feed")
	cmd.Flags().Duration("handshake-timeout", _config.Dagwatch.HandshakeTimeout, "Websocket handshake timeout")
	cmd.Flags().Int("buffer", _config.Dagwatch.BufferSize, "Number of feed messages buffered ahead of the pipeline")

	// Service
	cmd.Flags().Bool("no-service", _config.Dagwatch.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.Dagwatch.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Duration("push", _config.Dagwatch.PushInterval, "Time between graph pushes to websocket clients")

	// Retention and metrics
	cmd.Flags().Uint32("max-slots", _config.Dagwatch.MaxSlotsRetained, "Number of slots retained in the graph")
	cmd.Flags().Duration("sweep", _config.Dagwatch.SweepInterval, "Time between retention sweeps")
	cmd.Flags().Duration("initial-sweep", _config.Dagwatch.InitialSweepDelay, "Delay after connecting before isolated vertices are cleared")
	cmd.Flags().Duration("metrics", _config.Dagwatch.MetricsInterval, "Time between TPS updates")
	cmd.Flags().Duration("tps-window", _config.Dagwatch.TPSWindow, "Window over which TPS is averaged")
	cmd.Flags().Duration("initial-flag", _config.Dagwatch.InitialFlagDuration, "How long new vertices are flagged as initial")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	_config.Dagwatch.Logger().WithFields(logrus.Fields{
		"dagwatch.DataDir":             _config.Dagwatch.DataDir,
		"dagwatch.LogLevel":            _config.Dagwatch.LogLevel,
		"dagwatch.LogDir":              _config.Dagwatch.LogDir,
		"dagwatch.FeedURL":             _config.Dagwatch.FeedURL,
		"dagwatch.RetryDelay":          _config.Dagwatch.RetryDelay,
		"dagwatch.HandshakeTimeout":    _config.Dagwatch.HandshakeTimeout,
		"dagwatch.BufferSize":          _config.Dagwatch.BufferSize,
		"dagwatch.NoService":           _config.Dagwatch.NoService,
		"dagwatch.ServiceAddr":         _config.Dagwatch.ServiceAddr,
		"dagwatch.PushInterval":        _config.Dagwatch.PushInterval,
		"dagwatch.MaxSlotsRetained":    _config.Dagwatch.MaxSlotsRetained,
		"dagwatch.SweepInterval":       _config.Dagwatch.SweepInterval,
		"dagwatch.InitialSweepDelay":   _config.Dagwatch.InitialSweepDelay,
		"dagwatch.MetricsInterval":     _config.Dagwatch.MetricsInterval,
		"dagwatch.TPSWindow":           _config.Dagwatch.TPSWindow,
		"dagwatch.InitialFlagDuration": _config.Dagwatch.InitialFlagDuration,
	}).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/dagwatch.toml (.json, .yaml also work)
	viper.SetConfigName(config.DefaultConfigName)
	viper.AddConfigPath(_config.Dagwatch.DataDir)

	if err := viper.ReadInConfig(); err == nil {
		_config.Dagwatch.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Dagwatch.Logger().Debugf("No config file found in: %s", _config.Dagwatch.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
