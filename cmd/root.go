package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/darmiel/taskdeck/internal/buildinfo"
	"github.com/darmiel/taskdeck/internal/config"
	"github.com/darmiel/taskdeck/internal/logging"
)

// global flags
var (
	userConfig string
)

var f = NewFactory(viper.GetViper())

var rootCmd = &cobra.Command{
	Use:   "taskdeck",
	Short: fmt.Sprintf("Taskdeck client (version: %s, commit: %s)", buildinfo.Version, buildinfo.CommitHash),
	Long: `Taskdeck signs you in to a Taskdeck server and keeps the session on this device.
The session is stored locally, re-validated in the background and ended
automatically once it expires.`,
	Version: buildinfo.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, configErr := initConfig()
		if err := logging.Init(logging.Options{
			Level:   viper.GetString(config.LogLevelKey),
			Format:  viper.GetString(config.LogFormatKey),
			NoColor: viper.GetBool(config.LogNoColorKey),
		}); err != nil {
			return err
		}
		if configErr != nil { // handle error after logging is initialized
			return configErr
		}
		if configPath != "" {
			log.Debug().Msgf("using config file: %s", configPath)
		}
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	f.Close()
	stop()
	if err != nil {
		var quiet BeQuietError
		if !errors.As(err, &quiet) {
			log.Error().Err(err).Msg("execution failed")
		}
		os.Exit(1)
	}
}

func init() {
	// setup pre-flag logger
	logging.InitDefault()

	rootCmd.PersistentFlags().StringVar(&userConfig, "user-config", "",
		"User configuration file for default values (default is $HOME/.taskdeck.yaml)")

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	bindFlag(rootCmd.PersistentFlags(), "log-level", config.LogLevelKey)

	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console, json)")
	bindFlag(rootCmd.PersistentFlags(), "log-format", config.LogFormatKey)

	rootCmd.PersistentFlags().Bool("no-color", false, "Disable color output")
	bindFlag(rootCmd.PersistentFlags(), "no-color", config.LogNoColorKey)

	rootCmd.PersistentFlags().String("server", "", "Base URL of the Taskdeck server")
	bindFlag(rootCmd.PersistentFlags(), "server", config.AddrKey)

	rootCmd.PersistentFlags().String("store", "", "Credential store (file, sqlite)")
	bindFlag(rootCmd.PersistentFlags(), "store", config.StoreTypeKey)

	rootCmd.PersistentFlags().String("store-path", "", "Path of the credential store")
	bindFlag(rootCmd.PersistentFlags(), "store-path", config.StorePathKey)

	viper.SetEnvPrefix("TASKDECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))

	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

// bindFlag makes the flag name the highest priority source of key.
func bindFlag(flags *pflag.FlagSet, name, key string) {
	_ = viper.BindPFlag(key, flags.Lookup(name))
}

func initConfig() (string, error) {
	// reads in config file and ENV variables if set.
	if userConfig != "" {
		viper.SetConfigFile(userConfig)
	} else {
		// search order: current dir, $HOME, XDG config
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}

		configDir, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(configDir + "/taskdeck")
		}

		viper.SetConfigType("yaml")
		viper.SetConfigName(".taskdeck")
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundError) {
			return "", err
		}
	} else {
		return viper.ConfigFileUsed(), nil
	}

	return "", nil
}
