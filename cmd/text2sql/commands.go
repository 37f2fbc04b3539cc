package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"text2sql/internal/apperrors"
	"text2sql/internal/dataset"
	"text2sql/internal/evaluator"
	"text2sql/internal/mcptools"
	"text2sql/internal/report"
	"text2sql/internal/server"
)

// rootState carries the lazily built app between the root command's hooks
// and its subcommands
type rootState struct {
	configPath string
	app        *app
}

func newRootCmd() *cobra.Command {
	st := &rootState{}
	root := &cobra.Command{
		Use:           "text2sql",
		Short:         "Natural-language questions to safe, read-only SQL",
		Long:          "text2sql turns questions into SQL with an LLM, checks every statement with a\nread-only safety gate and scores models against question/SQL datasets.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(st.configPath)
			if err != nil {
				return err
			}
			st.app = a
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if st.app != nil {
				st.app.close()
			}
		},
	}
	root.PersistentFlags().StringVarP(&st.configPath, "config", "c", "", "config file (default config.yaml; env vars override)")

	root.AddCommand(
		newServeCmd(st),
		newAskCmd(st),
		newCheckCmd(st),
		newScoreCmd(st),
		newSeedCmd(st),
		newEvalCmd(st),
		newCompareCmd(st),
		newRegressCmd(st),
		newSuiteCmd(st),
		newReportCmd(st),
		newDatasetsCmd(st),
	)
	return root
}

func newServeCmd(st *rootState) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, Prometheus metrics and the MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := st.app
			ctx := cmd.Context()

			asst, closeDB, err := a.assistant(ctx, true)
			if err != nil {
				// keep /validate and /score available without a model
				if !errors.Is(err, apperrors.ErrModelLoad) {
					return err
				}
				a.log.Warn("model unavailable, /text2sql will answer 503", zap.Error(err))
				if asst, closeDB, err = a.assistant(ctx, false); err != nil {
					return err
				}
			}
			defer closeDB()

			srv, err := server.New(server.Config{
				Assistant: asst,
				Logger:    a.log,
				Version:   a.cfg.AppVersion,
				EnableMCP: a.cfg.API.EnableMCP,
				Mode:      a.cfg.API.GinMode,
			})
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Addr()
			}
			if a.cfg.API.EnableMCP {
				a.log.Info("MCP endpoint enabled", zap.String("path", "/mcp"), zap.String("server", mcptools.ServerName))
			}
			return srv.Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default API_HOST:API_PORT)")
	return cmd
}

func newAskCmd(st *rootState) *cobra.Command {
	var noExec, asJSON bool
	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Generate SQL for a question and run it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asst, closeDB, err := st.app.assistant(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closeDB()

			ans, err := asst.Ask(cmd.Context(), strings.Join(args, " "), !noExec)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON || !interactive(out) {
				return printJSON(out, ans)
			}
			printAnswer(out, ans)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noExec, "no-exec", false, "only generate and check the SQL")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the answer as JSON")
	return cmd
}

func newCheckCmd(st *rootState) *cobra.Command {
	var asJSON, verify bool
	cmd := &cobra.Command{
		Use:   "check SQL",
		Short: "Run a statement through the safety gate without executing it",
		Long: "Runs a statement through the safety gate. With --verify the statement is also\n" +
			"dry-run and executed with a row cap against the configured database.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql := strings.Join(args, " ")
			out := cmd.OutOrStdout()
			if verify {
				return runVerify(cmd, st, sql, asJSON)
			}

			gate, err := st.app.gate()
			if err != nil {
				return err
			}
			v := gate.Prepare(sql)
			if asJSON || !interactive(out) {
				if err := printJSON(out, v); err != nil {
					return err
				}
			} else {
				printVerdict(out, v)
			}
			if !v.Safe {
				return fmt.Errorf("statement rejected: %s", v.Reason)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the verdict as JSON")
	cmd.Flags().BoolVar(&verify, "verify", false, "also dry-run and execute against the database")
	return cmd
}

func runVerify(cmd *cobra.Command, st *rootState, sql string, asJSON bool) error {
	asst, closeDB, err := st.app.assistant(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer closeDB()

	v := asst.Verify(cmd.Context(), sql)
	out := cmd.OutOrStdout()
	if asJSON || !interactive(out) {
		if err := printJSON(out, v); err != nil {
			return err
		}
	} else {
		printVerification(out, v)
	}
	if !v.Valid {
		return fmt.Errorf("verification failed at %s stage", v.Stage)
	}
	return nil
}

func newScoreCmd(st *rootState) *cobra.Command {
	var predicted, truth string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "score --predicted SQL --truth SQL",
		Short: "Score predicted SQL against ground truth, clause by clause",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			calc, err := st.app.sqlCalculator()
			if err != nil {
				return err
			}
			m, cm := calc.EvaluateWithComponents(predicted, truth, false)
			out := cmd.OutOrStdout()
			if asJSON || !interactive(out) {
				return printJSON(out, map[string]any{
					"sql_metrics":      m,
					"component_scores": cm.Scores(),
				})
			}
			printScore(out, m, cm)
			return nil
		},
	}
	cmd.Flags().StringVar(&predicted, "predicted", "", "predicted SQL")
	cmd.Flags().StringVar(&truth, "truth", "", "ground-truth SQL")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the scores as JSON")
	_ = cmd.MarkFlagRequired("predicted")
	_ = cmd.MarkFlagRequired("truth")
	return cmd
}

func newSeedCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [PATH]",
		Short: "Create or reset the demo SQLite database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				dbCfg, err := st.app.cfg.DBConfig()
				if err != nil {
					return err
				}
				if !isSQLite(dbCfg.Type) {
					return fmt.Errorf("seed needs a SQLite database, configured type is %s", dbCfg.Type)
				}
				path = dbCfg.FilePath
			}
			if err := seedFile(cmd.Context(), path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓ demo database written to "+path))
			return nil
		},
	}
}

func newReportCmd(st *rootState) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "report [RESULT.json...]",
		Short: "Summarize saved evaluations, or render HTML from result files",
		Long: "With no arguments, lists the evaluations saved in the benchmarks directory.\n" +
			"With one result file, renders its evaluation report; with several, a model comparison.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := st.app
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				r, closeDB, err := a.runner(cmd.Context(), 1)
				if err != nil {
					return err
				}
				defer closeDB()
				s, err := r.Summary()
				if err != nil {
					return err
				}
				return printJSON(out, s)
			}

			if dir == "" {
				dir = a.cfg.Evaluation.ReportsDir
			}
			gen := report.NewGenerator(dir, a.log)
			aggs := make(map[string]*evaluator.Aggregate, len(args))
			var first *evaluator.Aggregate
			for _, path := range args {
				agg, err := evaluator.LoadAggregate(path)
				if err != nil {
					return err
				}
				key := agg.Model
				if key == "" || aggs[key] != nil {
					key = path
				}
				aggs[key] = agg
				if first == nil {
					first = agg
				}
			}

			var path string
			var err error
			if len(aggs) == 1 {
				path, err = gen.WriteEvaluation(first)
			} else {
				path, err = gen.WriteComparison(aggs)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, okStyle.Render("✓ report written to "+path))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "out", "", "report directory (default evaluation reports dir)")
	return cmd
}

func newDatasetsCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List dataset files and show statistics for one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := dataset.NewLoader(st.app.cfg.Evaluation.DatasetsDir)
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				d, err := loader.Load(args[0])
				if err != nil {
					return err
				}
				return printJSON(out, map[string]any{
					"dataset_name": d.Name,
					"statistics":   d.Statistics(),
				})
			}
			list, err := loader.List()
			if err != nil {
				return err
			}
			return printJSON(out, list)
		},
	}
}
