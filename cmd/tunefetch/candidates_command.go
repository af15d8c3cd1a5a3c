package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"tunefetch/internal/app"
	"tunefetch/internal/downloader"
	"tunefetch/internal/matching"
)

func newCandidatesCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "candidates <track-id>",
		Short: "Rank media-source candidates for a catalog track without downloading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger(cmd)

			spotify, err := app.Catalog(cfg)
			if err != nil {
				return err
			}
			store := app.Cache(cmd.Context(), cfg, logger)
			defer store.Close()
			media, err := app.MediaSource(cfg, store, logger)
			if err != nil {
				return err
			}

			manager := downloader.NewManager(downloader.Config{
				DataDir:     cfg.Download.DataDir,
				AudioFormat: cfg.Download.OutputFormat,
				SearchLimit: limit,
				Logger:      logger,
			}, downloader.Deps{
				Catalog: spotify,
				Media:   media,
				Engine:  matching.NewEngine(app.MatchingConfig(cfg)),
			})

			report, err := manager.Candidates(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printCandidates(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Results to request from each search")
	return cmd
}

func printCandidates(out io.Writer, report *downloader.CandidateReport) {
	track := report.Track
	fmt.Fprintf(out, "Track: %s - %s (%s)\n", track.Artist, track.Title, formatMillis(track.DurationMS))

	res := report.Result
	if res.NoCandidates {
		fmt.Fprintln(out, "No candidates found")
		return
	}

	rows := make([][]string, 0, len(res.Candidates))
	for i, sc := range res.Candidates {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			fmt.Sprintf("%.3f", sc.Score),
			string(sc.Source),
			sc.SourceID,
			sc.Title,
			sc.Uploader,
			formatCandidateDuration(sc),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Score", "Source", "ID", "Title", "Uploader", "Length"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	))

	verdict := "auto-select"
	if res.NeedsConfirmation {
		verdict = "needs confirmation"
	}
	fmt.Fprintf(out, "Best %.3f, threshold %.2f: %s\n", res.BestScore, res.Threshold, verdict)
}

func formatCandidateDuration(sc matching.ScoredCandidate) string {
	if sc.DurationSec != nil {
		return formatSeconds(int(*sc.DurationSec + 0.5))
	}
	if sc.DurationText != "" {
		return sc.DurationText
	}
	return "-"
}

func formatMillis(ms int) string {
	if ms <= 0 {
		return "-"
	}
	return formatSeconds((ms + 500) / 1000)
}

func formatSeconds(total int) string {
	if total < 0 {
		return "-"
	}
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, total%3600/60, total%60)
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
