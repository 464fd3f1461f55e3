/*
Copyright 2022 The l7mp/stunner team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/l7mp/hybridagg/internal/buildinfo"
)

const envPrefix = "HYBRIDAGG"

var (
	version    = "dev"
	commitHash = "n/a"
	buildDate  = "<unknown>"
)

var config = viper.New()

var logger, setupLog logr.Logger

func main() {
	opts := zap.Options{
		Development:     true,
		DestWriter:      os.Stderr,
		StacktraceLevel: zapcore.Level(3),
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
	}
	opts.BindFlags(flag.CommandLine)

	rootCmd := newRootCommand(&opts)
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	if err := rootCmd.ExecuteContext(ctrl.SetupSignalHandler()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(opts *zap.Options) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "hybridagg",
		Short:         "Run MongoDB aggregation pipelines with custom operators",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger = zap.New(zap.UseFlagOptions(opts))
			setupLog = logger.WithName("setup")

			buildInfo := buildinfo.New(version, commitHash, buildDate)
			setupLog.V(2).Info(fmt.Sprintf("starting hybridagg %s", buildInfo.String()))

			return loadConfig(cmd, configFile)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (YAML, JSON or TOML).")
	flags.String("uri", "mongodb://localhost:27017", "The MongoDB connection string.")
	flags.String("database", "", "The database holding the source collection.")
	flags.String("collection", "", "The source collection.")
	flags.String("temp-prefix", "temp", "The name prefix of temporary checkpoint collections.")
	flags.Int("workers", 1, "The number of documents evaluated concurrently in a local stage.")
	flags.String("ollama-url", "http://localhost:11434", "The address of the Ollama server used by $prompt.")
	flags.String("model", "", "The Ollama model used by $prompt.")

	rootCmd.AddCommand(newAggregateCommand(), newPlanCommand(), newVersionCommand())

	return rootCmd
}

// loadConfig merges the flags with the HYBRIDAGG_* environment and the optional config file.
func loadConfig(cmd *cobra.Command, configFile string) error {
	config.SetEnvPrefix(envPrefix)
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	config.AutomaticEnv()

	if err := config.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if configFile != "" {
		config.SetConfigFile(configFile)
		if err := config.ReadInConfig(); err != nil {
			setupLog.Error(err, "unable to read config file", "file", configFile)
			return err
		}
	}

	return nil
}
