// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskmind/internal/config"
	"github.com/xkilldash9x/deskmind/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type contextKey string

const configKey contextKey = "config"

// NewRootCommand builds a fresh command tree for a single invocation.
func NewRootCommand() *cobra.Command {
	return newRootCmd(defaultLLMProvider{}, nil)
}

// NewSessionRootCommand builds a fresh command tree that shares session's
// application handles. The interactive shell calls it once per line so flags
// never leak between invocations while tracked applications do carry over.
func NewSessionRootCommand(session *Session) *cobra.Command {
	return newRootCmd(defaultLLMProvider{}, session)
}

func newRootCmd(provider llmProvider, session *Session) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "deskmind",
		Short: "deskmind turns natural language into desktop automation decisions.",
		// Version is set at build time. See cmd/version.go.
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)
			if err := initializeConfig(v, cfgFile); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "deskmind"})
				return fmt.Errorf("failed to load config: %w", err)
			}
			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting deskmind", zap.String("version", Version))

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml, then ~/.deskmind/config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newDecideCmd(provider, session),
		newCapabilitiesCmd(),
		newResolveWindowCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			observability.GetLogger().Error("Command execution failed", zap.Error(err))
		}
		return err
	}
	return nil
}

// initializeConfig points v at the config file and the DESKMIND_ environment.
// A missing config file is not an error; defaults and environment still apply.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("invalid config path %q: %w", cfgFile, err)
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file %s not found: %w", path, err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".deskmind"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("DESKMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// configFromContext returns the configuration stored by the root command.
func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return cfg, nil
}

// readJSONFile decodes a JSON document at path into out.
func readJSONFile(path string, out interface{}) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("invalid path %q: %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
