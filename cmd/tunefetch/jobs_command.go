package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tunefetch/internal/domain"
	"tunefetch/internal/service"
)

const stampLayout = "2006-01-02 15:04:05"

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var statuses []string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent download jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(jobs service.JobService) error {
				var (
					list []domain.Job
					err  error
				)
				if len(statuses) > 0 {
					list, err = jobs.ListByStatuses(cmd.Context(), parseStatuses(statuses)...)
				} else {
					list, err = jobs.ListRecent(cmd.Context(), limit)
				}
				if err != nil {
					return err
				}
				printJobs(cmd.OutOrStdout(), list)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of jobs to show")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only show jobs in these statuses (queued, processing, completed, error)")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one download job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(jobs service.JobService) error {
				job, err := jobs.GetJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printJob(cmd.OutOrStdout(), job)
				return nil
			})
		},
	}
}

func newAlbumStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "album-status <album-id>",
		Short: "Show progress of an album download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(jobs service.JobService) error {
				group, err := jobs.GroupStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printGroup(cmd.OutOrStdout(), group)
				return nil
			})
		},
	}
}

func parseStatuses(values []string) []domain.JobStatus {
	out := make([]domain.JobStatus, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, domain.JobStatus(v))
		}
	}
	return out
}

func printJobs(out io.Writer, jobs []domain.Job) {
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs")
		return
	}
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			j.ID,
			string(j.Status),
			string(j.Stage),
			strconv.Itoa(j.Progress) + "%",
			formatStamp(j.UpdatedAt),
			j.Message,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Job", "Status", "Stage", "Progress", "Updated", "Message"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
}

func printJob(out io.Writer, job *domain.Job) {
	fmt.Fprintf(out, "Job:      %s\n", job.ID)
	fmt.Fprintf(out, "Status:   %s (%s, %d%%)\n", job.Status, job.Stage, job.Progress)
	fmt.Fprintf(out, "Message:  %s\n", job.Message)
	if job.FilePath != "" {
		fmt.Fprintf(out, "File:     %s\n", job.FilePath)
	}
	if job.ResultURL != "" {
		fmt.Fprintf(out, "Result:   %s\n", job.ResultURL)
	}
	if job.GroupID != "" {
		fmt.Fprintf(out, "Album:    %s\n", job.GroupID)
	}
	fmt.Fprintf(out, "Created:  %s\n", formatStamp(job.CreatedAt))
	fmt.Fprintf(out, "Updated:  %s\n", formatStamp(job.UpdatedAt))
}

func printGroup(out io.Writer, group *service.GroupStatus) {
	name := group.AlbumID
	if group.Meta != nil && group.Meta.AlbumName != "" {
		name = fmt.Sprintf("%s - %s", group.Meta.Artist, group.Meta.AlbumName)
	}
	agg := group.Aggregate
	fmt.Fprintf(out, "Album:     %s\n", name)
	fmt.Fprintf(out, "Status:    %s\n", agg.Status)
	fmt.Fprintf(out, "Tracks:    %d/%d completed, %d failed\n", agg.Completed, group.TotalTracks(), agg.Failed)
	if agg.CurrentJobID != "" {
		fmt.Fprintf(out, "Current:   %s\n", agg.CurrentJobID)
	}
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Local().Format(stampLayout)
}
