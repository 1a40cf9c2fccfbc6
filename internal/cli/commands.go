package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/prempunmagar/trustcard/internal/model"
	"github.com/prempunmagar/trustcard/internal/scoring"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the job workers and the stale-job reaper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(ctx)
		},
	}
}

func newAnalyzeCmd(opts *options) *cobra.Command {
	var (
		timeout time.Duration
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <url>",
		Short: "Analyze one post in-process and print its trust card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.Analyze(ctx, args[0])
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}
			if asJSON {
				return writeIndented(cmd.OutOrStdout(), job)
			}
			printJob(cmd.OutOrStdout(), job)
			if job.Status == model.JobFailed {
				return fmt.Errorf("analysis failed (%s): %s", job.FailureKind, job.Error)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "give up waiting after this long")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full job as JSON")
	return cmd
}

func newCacheCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and invalidate the analysis cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show cache backend health and key counts",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := opts.open(cmd)
				if err != nil {
					return err
				}
				defer a.Close()

				st := a.Cache.Stats(cmd.Context())
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "backend\t%s\n", st.Backend)
				fmt.Fprintf(w, "connected\t%t\n", st.Connected)
				fmt.Fprintf(w, "pipeline entries\t%s\n", humanize.Comma(int64(st.KeyCounts["pipeline"])))
				fmt.Fprintf(w, "raw content entries\t%s\n", humanize.Comma(int64(st.KeyCounts["raw"])))
				fmt.Fprintf(w, "pipeline ttl\t%s\n", a.Config.Cache.PipelineTTL)
				fmt.Fprintf(w, "raw content ttl\t%s\n", a.Config.Cache.RawTTL)
				if st.Error != "" {
					fmt.Fprintf(w, "error\t%s\n", st.Error)
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "invalidate <key>",
			Short: "Remove one content identity, a namespaced key, or a prefix ending in *",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := opts.open(cmd)
				if err != nil {
					return err
				}
				defer a.Close()

				n, err := a.Cache.Invalidate(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("invalidate: %w", err)
				}
				cmd.Printf("removed %s %s\n", humanize.Comma(int64(n)), plural(n, "entry", "entries"))
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every cache entry in the namespace",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := opts.open(cmd)
				if err != nil {
					return err
				}
				defer a.Close()

				n, err := a.Cache.Clear(cmd.Context())
				if err != nil {
					return fmt.Errorf("clear: %w", err)
				}
				cmd.Printf("removed %s %s\n", humanize.Comma(int64(n)), plural(n, "entry", "entries"))
				return nil
			},
		},
	)
	return cmd
}

func newSourcesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage the publisher reputation directory",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "seed",
			Short: "Load the built-in publisher directory, updating existing entries",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := opts.open(cmd)
				if err != nil {
					return err
				}
				defer a.Close()

				n, err := a.SeedSources(cmd.Context())
				if err != nil {
					return err
				}
				cmd.Printf("seeded %s sources\n", humanize.Comma(int64(n)))
				return nil
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Count directory entries by reliability and bias",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := opts.open(cmd)
				if err != nil {
					return err
				}
				defer a.Close()

				st, err := a.Store.SourceStats(cmd.Context())
				if err != nil {
					return fmt.Errorf("source stats: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s sources\n", humanize.Comma(int64(st.Total)))
				printCounts(out, "reliability", st.ByReliability)
				printCounts(out, "bias", st.ByBias)
				return nil
			},
		},
	)
	return cmd
}

func newGradeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "grade <score>",
		Short: "Print the letter grade for a 0-100 score under the configured thresholds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := strconv.ParseFloat(args[0], 64)
			if err != nil || score < 0 || score > 100 {
				return fmt.Errorf("score must be a number between 0 and 100, got %q", args[0])
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			grade := cfg.Scoring.GradeThresholds.Grade(score)
			info := scoring.Info(grade)
			cmd.Printf("%s\t%s\t%s\n", grade, info.Description, info.Color)
			return nil
		},
	}
}

func printJob(out io.Writer, job *model.Job) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer w.Flush()

	status := string(job.Status)
	if job.Cached {
		status += " (cached)"
	}
	fmt.Fprintf(w, "job\t%s\n", job.ID)
	fmt.Fprintf(w, "url\t%s\n", job.ContentURL)
	fmt.Fprintf(w, "status\t%s\n", status)
	if job.ProcessingTime > 0 {
		fmt.Fprintf(w, "took\t%s\n", job.ProcessingTime.Round(time.Millisecond))
	}
	if job.CompletedAt != nil {
		fmt.Fprintf(w, "finished\t%s\n", humanize.Time(*job.CompletedAt))
	}
	if job.Status == model.JobFailed {
		fmt.Fprintf(w, "error\t%s: %s\n", job.FailureKind, job.Error)
		return
	}
	s := job.Score
	if s == nil {
		return
	}
	fmt.Fprintf(w, "grade\t%s (%s)\n", s.Grade, s.GradeDescription)
	fmt.Fprintf(w, "score\t%s / 100\n", humanize.FtoaWithDigits(model.Round2(s.FinalScore), 2))
	if s.RequiresReview {
		fmt.Fprintf(w, "review\trequired\n")
	}
	w.Flush()

	if len(s.Adjustments) > 0 {
		fmt.Fprintln(out, "\nadjustments:")
		aw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
		for _, adj := range s.Adjustments {
			fmt.Fprintf(aw, "  %+.2f\t %s\t %s\n", adj.Impact, adj.Component, adj.Reason)
		}
		aw.Flush()
	}
	if len(s.Flags) > 0 {
		fmt.Fprintln(out, "\nflags:")
		for _, f := range s.Flags {
			fmt.Fprintf(out, "  - %s\n", f)
		}
	}
}

func printCounts(out io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(out, "\nby %s:\n", title)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s\t%s\n", k, humanize.Comma(int64(counts[k])))
	}
	w.Flush()
}

func writeIndented(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
