package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/l7mp/hybridagg/internal/buildinfo"
	"github.com/l7mp/hybridagg/pkg/database/memory"
	"github.com/l7mp/hybridagg/pkg/engine"
	"github.com/l7mp/hybridagg/pkg/operators"
	"github.com/l7mp/hybridagg/pkg/pipeline"
	"github.com/l7mp/hybridagg/pkg/visualize"
)

func newAggregateCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "aggregate <pipeline-file>",
		Aliases: []string{"run"},
		Short:   "Run a pipeline on the source collection and print the results as JSON lines",
		Long: "Run a pipeline given as a JSON or YAML file (\"-\" for stdin) on the source collection. " +
			"Stages with custom operators are evaluated locally, everything else runs in MongoDB.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			p, err := readPipeline(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			e, err := engine.Connect(ctx, engineConfig(reg))
			if err != nil {
				setupLog.Error(err, "unable to connect to the database")
				return err
			}
			defer e.Close(context.WithoutCancel(ctx)) //nolint:errcheck

			if err := registerOperators(ctx, e); err != nil {
				return err
			}

			docs, err := e.Aggregate(ctx, p)
			if err != nil {
				setupLog.Error(err, "aggregation failed")
				return err
			}

			for _, doc := range docs {
				out, err := bson.MarshalExtJSON(doc, false, false)
				if err != nil {
					return fmt.Errorf("failed to encode result document: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			}

			logMetrics(reg)

			return nil
		},
	}
}

func newPlanCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "plan <pipeline-file>",
		Short: "Show how a pipeline is split into native runs and local stages without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			p, err := readPipeline(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			// the plan never touches the database
			cfg := engineConfig(prometheus.NewRegistry())
			if cfg.Collection == "" {
				cfg.Collection = "source"
			}
			e, err := engine.New(cfg, memory.New(logger.WithName("memory")))
			if err != nil {
				return err
			}

			if err := registerOperators(ctx, e); err != nil {
				return err
			}

			plan, err := e.Plan(p)
			if err != nil {
				return err
			}

			if format == "text" {
				for _, seg := range plan.Segments {
					fmt.Fprintln(cmd.OutOrStdout(), seg.String())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "checkpoints: %d\n", plan.Checkpoints())
				return nil
			}

			gen, err := visualize.NewGenerator(format)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), gen.Generate(visualize.BuildGraph(cfg.Collection, plan, e.Registry())))

			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, dot or mermaid.")

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			buildInfo := buildinfo.New(version, commitHash, buildDate)
			fmt.Fprintf(cmd.OutOrStdout(), "hybridagg %s\n", buildInfo.String())
		},
	}
}

func engineConfig(reg prometheus.Registerer) engine.Config {
	return engine.Config{
		URI:        config.GetString("uri"),
		Database:   config.GetString("database"),
		Collection: config.GetString("collection"),
		TempPrefix: config.GetString("temp-prefix"),
		Workers:    config.GetInt("workers"),
		Log:        logger,
		Registerer: reg,
	}
}

// registerOperators registers the custom operators shipped with the CLI.
func registerOperators(ctx context.Context, e *engine.Engine) error {
	gen, err := operators.NewOllamaGenerator(ctx, config.GetString("ollama-url"), config.GetString("model"))
	if err != nil {
		setupLog.Error(err, "unable to set up text generation")
		return err
	}

	return e.Registry().Register(operators.PromptOp, operators.NewPrompt(gen, logger.WithName("prompt")))
}

func readPipeline(stdin io.Reader, file string) (pipeline.Pipeline, error) {
	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return pipeline.Pipeline{}, fmt.Errorf("failed to read pipeline: %w", err)
	}

	return pipeline.Parse(data)
}

func logMetrics(reg *prometheus.Registry) {
	mfs, err := reg.Gather()
	if err != nil {
		setupLog.Error(err, "failed to gather metrics")
		return
	}

	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			value := m.GetCounter().GetValue()
			if h := m.GetHistogram(); h != nil {
				value = float64(h.GetSampleCount())
			}
			setupLog.V(1).Info("metric", "name", mf.GetName(), "value", value)
		}
	}
}
