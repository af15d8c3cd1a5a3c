package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"tunefetch/internal/domain"
	"tunefetch/internal/downloader"
	"tunefetch/internal/matching"
	"tunefetch/internal/service"
)

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0:00"},
		{65, "1:05"},
		{3725, "1:02:05"},
		{-1, "-"},
	}
	for _, tt := range tests {
		if got := formatSeconds(tt.in); got != tt.want {
			t.Errorf("formatSeconds(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := formatMillis(200400); got != "3:20" {
		t.Errorf("formatMillis = %q", got)
	}
}

func TestParseStatuses(t *testing.T) {
	got := parseStatuses([]string{" Queued", "", "ERROR"})
	if len(got) != 2 || got[0] != domain.JobStatusQueued || got[1] != domain.JobStatusError {
		t.Errorf("parseStatuses = %v", got)
	}
}

func TestPrintCandidates(t *testing.T) {
	secs := 201.0
	report := &downloader.CandidateReport{
		Track: domain.TrackDescriptor{Title: "Song", Artist: "Artist", DurationMS: 200000},
		Result: matching.Result{
			Candidates: []matching.ScoredCandidate{{
				Candidate: domain.Candidate{SourceID: "abcdefghijk", Title: "Artist - Song", Uploader: "Artist", DurationSec: &secs, Source: domain.SourceStructured},
				Score:     0.9,
			}},
			BestScore:         0.9,
			Threshold:         0.65,
			NeedsConfirmation: false,
		},
	}

	var buf bytes.Buffer
	printCandidates(&buf, report)
	out := buf.String()
	for _, want := range []string{"Artist - Song (3:20)", "abcdefghijk", "3:21", "auto-select"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printCandidates(&buf, &downloader.CandidateReport{Result: matching.Result{NoCandidates: true}})
	if !strings.Contains(buf.String(), "No candidates found") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestPrintGroup(t *testing.T) {
	group := &service.GroupStatus{
		AlbumID: "alb",
		Aggregate: domain.AlbumAggregate{
			Status: domain.AlbumStatusDownloading, Total: 2, Completed: 1, CurrentJobID: "t2",
		},
		Meta: &domain.GroupMeta{AlbumName: "Record", Artist: "Artist", TotalTracks: 3},
	}

	var buf bytes.Buffer
	printGroup(&buf, group)
	out := buf.String()
	for _, want := range []string{"Artist - Record", "1/3 completed", "Current:   t2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintJobs(t *testing.T) {
	var buf bytes.Buffer
	printJobs(&buf, nil)
	if strings.TrimSpace(buf.String()) != "No jobs" {
		t.Errorf("empty output = %q", buf.String())
	}

	buf.Reset()
	printJobs(&buf, []domain.Job{{
		ID: "t1", Status: domain.JobStatusProcessing, Stage: domain.StageDownloading,
		Progress: 30, Message: "Downloading...", UpdatedAt: time.Now(),
	}})
	for _, want := range []string{"t1", "processing", "30%", "Downloading..."} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}
