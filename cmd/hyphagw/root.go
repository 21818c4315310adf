// cmd/hyphagw/root.go
// Root command for the `hyphagw` router binary. It wires the global flags,
// logger/config initialisation, and the `serve` and `version` sub-commands.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Voskan/hyphagw/internal/logging"
	"github.com/Voskan/hyphagw/pkg/version"
)

var (
	cfgFile string
	logJSON bool
	v       = viper.New()

	rootCmd = &cobra.Command{
		Use:   "hyphagw",
		Short: "hyphagw -- in-process RPC and service-brokering router",
		Long:  `hyphagw authenticates peers, routes addressed RPC frames across workspaces, and hosts the built-in workspace service and HTTP proxy.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logging.Initialised() {
				return nil
			}
			return initLogger()
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file (YAML/TOML/JSON)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Enable JSON log output (default is human-friendly console)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// Execute is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig registers the env-var prefix and, if --config was given, loads
// it into the shared viper instance used by serve.go (precedence: defaults
// -> config file -> env vars -> flags).
func initConfig() {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "hyphagw"))
		}
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("HYPHA")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err == nil {
		logging.Sugar().Infof("using config file: %s", v.ConfigFileUsed())
	}
}

func initLogger() error {
	cfg := zap.NewProductionConfig()
	if !logJSON {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoder(func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(time.RFC3339))
	})

	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	logging.Set(logger)
	logging.Sugar().Infow("hyphagw starting", "version", version.String())
	return nil
}
