package domain

// TrackDescriptor is the catalog description a download is matched against.
type TrackDescriptor struct {
	ID          string
	Title       string
	Artist      string
	Artists     []string
	Album       string
	AlbumArtist string
	ReleaseDate string
	ReleaseYear string
	DurationMS  int
	AlbumArtURL string
	TrackNumber int
	ExternalURL string
	PreviewURL  string
}

// Album is a catalog album with its ordered track list.
type Album struct {
	ID          string
	Name        string
	Artist      string
	ReleaseDate string
	AlbumArtURL string
	TotalTracks int
	Tracks      []TrackDescriptor
}

type SourceTag string

const (
	// SourceStructured marks results from the music-aware search index.
	SourceStructured SourceTag = "ytmusic"
	// SourceFallback marks results from the generic free-text video search.
	SourceFallback SourceTag = "ytdlp"
)

// Candidate is one media-source result that may match a target track.
type Candidate struct {
	SourceID     string
	Title        string
	Uploader     string
	DurationSec  *float64
	DurationText string
	Rank         int
	Source       SourceTag
	URL          string
	Thumbnail    string
}

// SourceInfo describes a single media-source item resolved from a URL or id.
type SourceInfo struct {
	SourceID     string
	Title        string
	Uploader     string
	DurationSec  float64
	ThumbnailURL string
	CanonicalURL string
}
