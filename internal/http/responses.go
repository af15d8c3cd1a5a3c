package http

import (
	"time"

	"tunefetch/internal/domain"
	"tunefetch/internal/matching"
)

type trackResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Artist      string   `json:"artist"`
	Artists     []string `json:"artists"`
	Album       string   `json:"album"`
	AlbumArtist string   `json:"album_artist,omitempty"`
	ReleaseDate string   `json:"release_date,omitempty"`
	DurationMS  int      `json:"duration_ms"`
	AlbumArt    string   `json:"album_art,omitempty"`
	TrackNumber int      `json:"track_number,omitempty"`
	ExternalURL string   `json:"external_url,omitempty"`
	PreviewURL  string   `json:"preview_url,omitempty"`
}

type albumResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artist      string          `json:"artist"`
	ReleaseDate string          `json:"release_date,omitempty"`
	AlbumArt    string          `json:"album_art,omitempty"`
	TotalTracks int             `json:"total_tracks"`
	Tracks      []trackResponse `json:"tracks,omitempty"`
}

type jobResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	Stage       string `json:"stage"`
	Progress    int    `json:"progress"`
	Message     string `json:"message"`
	FilePath    string `json:"file_path,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	Error       string `json:"error,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type albumStatusResponse struct {
	AlbumID         string   `json:"album_id"`
	Status          string   `json:"status"`
	AlbumName       string   `json:"album_name"`
	Artist          string   `json:"artist"`
	TotalTracks     int      `json:"total_tracks"`
	CompletedTracks int      `json:"completed_tracks"`
	FailedTracks    int      `json:"failed_tracks"`
	CurrentTrack    string   `json:"current_track,omitempty"`
	TrackIDs        []string `json:"track_ids"`
}

type candidateResponse struct {
	SourceID     string             `json:"video_id"`
	Title        string             `json:"title"`
	Uploader     string             `json:"uploader"`
	Duration     *float64           `json:"duration,omitempty"`
	DurationText string             `json:"duration_text,omitempty"`
	Rank         int                `json:"rank"`
	Source       string             `json:"source"`
	URL          string             `json:"url"`
	Thumbnail    string             `json:"thumbnail,omitempty"`
	Score        float64            `json:"score"`
	Breakdown    matching.Breakdown `json:"breakdown"`
}

type candidatesResponse struct {
	Track             trackResponse       `json:"track"`
	Candidates        []candidateResponse `json:"candidates"`
	BestScore         float64             `json:"best_score"`
	Threshold         float64             `json:"threshold"`
	NeedsConfirmation bool                `json:"needs_confirmation"`
	NoCandidates      bool                `json:"no_candidates"`
}

type sourceResponse struct {
	VideoID   string  `json:"video_id"`
	Title     string  `json:"title"`
	Uploader  string  `json:"uploader"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail,omitempty"`
	URL       string  `json:"url"`
}

func newTrackResponse(t domain.TrackDescriptor) trackResponse {
	artists := t.Artists
	if len(artists) == 0 && t.Artist != "" {
		artists = []string{t.Artist}
	}
	return trackResponse{
		ID:          t.ID,
		Name:        t.Title,
		Artist:      t.Artist,
		Artists:     artists,
		Album:       t.Album,
		AlbumArtist: t.AlbumArtist,
		ReleaseDate: t.ReleaseDate,
		DurationMS:  t.DurationMS,
		AlbumArt:    t.AlbumArtURL,
		TrackNumber: t.TrackNumber,
		ExternalURL: t.ExternalURL,
		PreviewURL:  t.PreviewURL,
	}
}

func newTrackResponses(tracks []domain.TrackDescriptor) []trackResponse {
	out := make([]trackResponse, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, newTrackResponse(t))
	}
	return out
}

func newAlbumResponse(a domain.Album, withTracks bool) albumResponse {
	resp := albumResponse{
		ID:          a.ID,
		Name:        a.Name,
		Artist:      a.Artist,
		ReleaseDate: a.ReleaseDate,
		AlbumArt:    a.AlbumArtURL,
		TotalTracks: a.TotalTracks,
	}
	if withTracks {
		resp.Tracks = newTrackResponses(a.Tracks)
	}
	return resp
}

func newJobResponse(job *domain.Job) jobResponse {
	return jobResponse{
		JobID:       job.ID,
		Status:      string(job.Status),
		Stage:       string(job.Stage),
		Progress:    job.Progress,
		Message:     job.Message,
		FilePath:    job.FilePath,
		DownloadURL: job.ResultURL,
		Error:       job.Error,
		GroupID:     job.GroupID,
		CreatedAt:   job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   job.UpdatedAt.Format(time.RFC3339),
	}
}

func newCandidatesResponse(track domain.TrackDescriptor, result matching.Result) candidatesResponse {
	resp := candidatesResponse{
		Track:             newTrackResponse(track),
		Candidates:        make([]candidateResponse, 0, len(result.Candidates)),
		BestScore:         result.BestScore,
		Threshold:         result.Threshold,
		NeedsConfirmation: result.NeedsConfirmation,
		NoCandidates:      result.NoCandidates,
	}
	for _, sc := range result.Candidates {
		resp.Candidates = append(resp.Candidates, candidateResponse{
			SourceID:     sc.SourceID,
			Title:        sc.Title,
			Uploader:     sc.Uploader,
			Duration:     sc.DurationSec,
			DurationText: sc.DurationText,
			Rank:         sc.Rank,
			Source:       string(sc.Source),
			URL:          sc.URL,
			Thumbnail:    sc.Thumbnail,
			Score:        sc.Score,
			Breakdown:    sc.Breakdown,
		})
	}
	return resp
}

func newSourceResponse(info domain.SourceInfo) sourceResponse {
	return sourceResponse{
		VideoID:   info.SourceID,
		Title:     info.Title,
		Uploader:  info.Uploader,
		Duration:  info.DurationSec,
		Thumbnail: info.ThumbnailURL,
		URL:       info.CanonicalURL,
	}
}
