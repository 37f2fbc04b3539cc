package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"text2sql/internal/benchmark"
)

func newEvalCmd(st *rootState) *cobra.Command {
	var (
		ds          string
		model       string
		difficulty  string
		tags        []string
		limit       int
		concurrency int
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a model on a dataset and write JSON and HTML results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := st.app
			ctx, cancel := a.evalContext(cmd.Context())
			defer cancel()

			r, closeDB, err := a.runner(ctx, concurrency)
			if err != nil {
				return err
			}
			defer closeDB()

			if !cmd.Flags().Changed("limit") {
				limit = a.cfg.Evaluation.MaxQuestions
			}
			agg, err := r.Run(ctx, ds, model, benchmark.Filter{Difficulty: difficulty, Tags: tags, Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, agg)
			}
			printAggregate(out, agg)
			fmt.Fprintln(out, mutedStyle.Render("  results: "+r.ResultsDir()))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&ds, "dataset", "d", "demo", "dataset file in the datasets dir, or \"demo\"")
	f.StringVarP(&model, "model", "m", "", "model name or provider:name (default configured model)")
	f.StringVar(&difficulty, "difficulty", "", "only questions of this difficulty")
	f.StringSliceVar(&tags, "tags", nil, "only questions carrying any of these tags")
	f.IntVarP(&limit, "limit", "n", 0, "at most this many questions (default MAX_EVALUATION_QUESTIONS)")
	f.IntVar(&concurrency, "concurrency", 0, "questions in flight (default EVALUATION_CONCURRENCY)")
	f.BoolVar(&asJSON, "json", false, "print the aggregate as JSON")
	return cmd
}

func newCompareCmd(st *rootState) *cobra.Command {
	var (
		ds     string
		models []string
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Evaluate several models on the same dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(models) < 2 {
				return fmt.Errorf("compare needs at least two models, got %d", len(models))
			}
			a := st.app
			ctx, cancel := a.evalContext(cmd.Context())
			defer cancel()

			r, closeDB, err := a.runner(ctx, 0)
			if err != nil {
				return err
			}
			defer closeDB()

			results, err := r.Compare(ctx, ds, models)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range models {
				printAggregate(out, results[m])
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&ds, "dataset", "d", "demo", "dataset file in the datasets dir, or \"demo\"")
	cmd.Flags().StringSliceVarP(&models, "models", "m", nil, "models to compare, comma separated")
	_ = cmd.MarkFlagRequired("models")
	return cmd
}

func newRegressCmd(st *rootState) *cobra.Command {
	var (
		ds        string
		baseline  string
		current   string
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "regress",
		Short: "Fail when the current model's F1 drops below threshold x baseline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := st.app
			ctx, cancel := a.evalContext(cmd.Context())
			defer cancel()

			r, closeDB, err := a.runner(ctx, 0)
			if err != nil {
				return err
			}
			defer closeDB()

			reg, err := r.Regress(ctx, ds, baseline, current, threshold)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printTitle(out, "🔁 Regression test")
			fmt.Fprintf(out, "  %s F1 %.3f → %s F1 %.3f (ratio %.3f, threshold %.2f)\n",
				reg.Baseline, reg.BaselineF1, reg.Current, reg.CurrentF1, reg.Ratio, reg.Threshold)
			if !reg.Passed {
				fmt.Fprintln(out, errStyle.Render("  ✗ FAILED"))
				return fmt.Errorf("regression: %s reaches %.1f%% of %s", reg.Current, reg.Ratio*100, reg.Baseline)
			}
			fmt.Fprintln(out, okStyle.Render("  ✓ PASSED"))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&ds, "dataset", "d", "demo", "dataset file in the datasets dir, or \"demo\"")
	f.StringVar(&baseline, "baseline", "", "baseline model")
	f.StringVar(&current, "current", "", "model under test")
	f.Float64Var(&threshold, "threshold", benchmark.DefaultThreshold, "minimum current/baseline F1 ratio")
	_ = cmd.MarkFlagRequired("baseline")
	_ = cmd.MarkFlagRequired("current")
	return cmd
}

func newSuiteCmd(st *rootState) *cobra.Command {
	var datasets, models []string
	cmd := &cobra.Command{
		Use:   "suite",
		Short: "Evaluate every model on every dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := st.app
			ctx, cancel := a.evalContext(cmd.Context())
			defer cancel()

			r, closeDB, err := a.runner(ctx, 0)
			if err != nil {
				return err
			}
			defer closeDB()

			if len(models) == 0 {
				models = []string{a.cfg.Model.Name}
			}
			suite, err := r.RunSuite(ctx, datasets, models)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printTitle(out, "🧪 Evaluation suite")
			for _, ds := range suite.Datasets {
				for _, m := range suite.Models {
					cell := suite.Results[ds][m]
					if cell.Error != "" || cell.Aggregate == nil {
						fmt.Fprintln(out, errStyle.Render(fmt.Sprintf("  ✗ %s / %s: %s", ds, m, cell.Error)))
						continue
					}
					fmt.Fprintf(out, "  ✓ %s / %s: F1 %.3f, execution %.3f\n", ds, m, cell.AvgF1Score, cell.ExecutionSuccessRate)
				}
			}
			fmt.Fprintln(out, mutedStyle.Render("  suite: "+suite.Path))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&datasets, "datasets", "d", []string{"demo"}, "datasets, comma separated")
	cmd.Flags().StringSliceVarP(&models, "models", "m", nil, "models, comma separated (default configured model)")
	return cmd
}
