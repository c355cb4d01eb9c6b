package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"bnpl-risk/internal/cfg"
	"bnpl-risk/internal/engine"
	"bnpl-risk/internal/features"
	"bnpl-risk/internal/ml"
	"bnpl-risk/internal/policy"
	"bnpl-risk/internal/replay"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "modelctl",
	Short:        "Manage risk model versions",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("verbose"); !v {
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("models", "models", "Models directory holding model_versions.json")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log at info level")

	registerCmd.Flags().Float64("auc", 0, "Holdout AUC recorded by the training run")
	registerCmd.Flags().Int("samples", 0, "Training sample count")
	registerCmd.Flags().Bool("activate", false, "Activate the version after registering it")

	leaderboardCmd.Flags().String("data", "", "Loan ledger CSV with loan_status outcomes")
	leaderboardCmd.Flags().Int("limit", 0, "Replay at most this many rows")
	_ = leaderboardCmd.MarkFlagRequired("data")

	rootCmd.AddCommand(listCmd, registerCmd, activateCmd, rollbackCmd, leaderboardCmd)
}

func openRegistry(cmd *cobra.Command) (*ml.Registry, error) {
	dir, _ := cmd.Flags().GetString("models")
	return ml.OpenRegistry(dir)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered model versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		versions := reg.Versions()
		if len(versions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no versions registered")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ACTIVE\tVERSION\tFAMILY\tAUC\tCREATED")
		for _, v := range versions {
			active := ""
			if v.IsActive {
				active = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%s\n", active, v.Version, v.Family, v.Metrics.AUCScore, v.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <artifact.json>",
	Short: "Copy an artifact into the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		a, err := ml.LoadArtifact(args[0])
		if err != nil {
			return err
		}

		auc, _ := cmd.Flags().GetFloat64("auc")
		samples, _ := cmd.Flags().GetInt("samples")
		if auc == 0 {
			auc = a.Metrics["auc"]
		}
		v, err := reg.Register(a, ml.ModelMetrics{AUCScore: auc, TrainingSamples: samples})
		if err != nil {
			return err
		}

		if activate, _ := cmd.Flags().GetBool("activate"); activate {
			if err := reg.Activate(v.Version); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s)\n", v.Version, v.Family)
		return nil
	},
}

var activateCmd = &cobra.Command{
	Use:   "activate <version>",
	Short: "Make a version the one the service loads on next start",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		if err := reg.Activate(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "activated %s\n", args[0])
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Activate the version registered before the active one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		v, err := reg.Rollback()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rolled back to %s\n", v.Version)
		return nil
	},
}

// standing is one registered version's replay over the ledger.
type standing struct {
	version ml.ModelVersion
	results *replay.Results
	err     error
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Replay every registered version over a labelled ledger and rank by AUC",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		config, err := cfg.Load()
		if err != nil {
			return err
		}
		schema, err := features.LoadSchema(config.SchemaPath)
		if err != nil {
			return err
		}
		enc, err := features.NewEncoder(schema)
		if err != nil {
			return err
		}

		dataPath, _ := cmd.Flags().GetString("data")
		limit, _ := cmd.Flags().GetInt("limit")
		rows, _, err := replay.LoadCSV(dataPath, replay.LoadOptions{RequireLabel: true, Limit: limit})
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		var board []standing
		for _, v := range reg.Versions() {
			board = append(board, rank(ctx, reg, v, enc, config, rows))
		}
		sort.SliceStable(board, func(i, j int) bool {
			return aucOf(board[i]) > aucOf(board[j])
		})

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tVERSION\tFAMILY\tAUC\tAPPROVAL\tDEFAULT(APPROVED)\tPROFIT")
		for i, s := range board {
			if s.err != nil {
				fmt.Fprintf(w, "-\t%s\t%s\terror: %v\t\t\t\n", s.version.Version, s.version.Family, s.err)
				continue
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%.4f\t%.2f%%\t%.2f%%\t%.2f\n",
				i+1, s.version.Version, s.version.Family, aucOf(s),
				s.results.ApprovalRate*100, s.results.ApprovedDefaultRate*100, s.results.ExpectedProfit)
		}
		return w.Flush()
	},
}

func rank(ctx context.Context, reg *ml.Registry, v ml.ModelVersion, enc *features.Encoder, config cfg.Settings, rows []replay.Row) standing {
	s := config.Risk
	scorer := ml.LoadScorer(ctx, reg.ArtifactPath(v), ml.ScorerOptions{Timeout: config.ModelTimeout})
	if !scorer.Available() {
		return standing{version: v, err: scorer.LoadError()}
	}
	store, err := policy.NewStore(s)
	if err != nil {
		return standing{version: v, err: err}
	}
	res, err := replay.Run(ctx, engine.New(enc, scorer, store, engine.Options{}), rows, s, replay.Options{})
	return standing{version: v, results: res, err: err}
}

func aucOf(s standing) float64 {
	if s.err != nil || s.results == nil || s.results.AUC == nil {
		return -1
	}
	return *s.results.AUC
}
