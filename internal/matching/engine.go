package matching

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"tunefetch/internal/domain"
	"tunefetch/internal/textnorm"
)

// Weights blends the four scoring signals.
type Weights struct {
	Title    float64
	Artist   float64
	Duration float64
	Rank     float64
}

// Config holds the tuned constants of the engine. They were fitted against real
// search results; changing them is a policy decision.
type Config struct {
	Weights                Weights
	Threshold              float64
	StructuredRankStrength float64
	FallbackRankStrength   float64
	LiveBonus              float64
	CoverPenalty           float64
	RemixPenalty           float64
}

func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Title:    0.45,
			Artist:   0.25,
			Duration: 0.20,
			Rank:     0.10,
		},
		Threshold:              0.65,
		StructuredRankStrength: 6.0,
		FallbackRankStrength:   math.Max(3.0, 6.0*0.6),
		LiveBonus:              0.05,
		CoverPenalty:           0.12,
		RemixPenalty:           0.10,
	}
}

// Breakdown exposes the individual signals behind a score.
type Breakdown struct {
	Title     float64 `json:"title"`
	Artist    float64 `json:"artist"`
	Duration  float64 `json:"duration"`
	Rank      float64 `json:"rank"`
	Heuristic float64 `json:"heuristic"`
}

type ScoredCandidate struct {
	domain.Candidate
	Score     float64
	Breakdown Breakdown
}

// Result is the ranked outcome for one target. NoCandidates is set when there
// was nothing to rank, in which case NeedsConfirmation is always false.
type Result struct {
	Candidates        []ScoredCandidate
	BestScore         float64
	Threshold         float64
	NeedsConfirmation bool
	NoCandidates      bool
}

// Best returns the top-ranked candidate.
func (r Result) Best() (ScoredCandidate, bool) {
	if len(r.Candidates) == 0 {
		return ScoredCandidate{}, false
	}
	return r.Candidates[0], true
}

// Top returns a copy of r trimmed to the first n candidates.
func (r Result) Top(n int) Result {
	if n >= 0 && len(r.Candidates) > n {
		trimmed := make([]ScoredCandidate, n)
		copy(trimmed, r.Candidates[:n])
		r.Candidates = trimmed
	}
	return r
}

var (
	liveMarkers  = []string{"live", "现场", "現場"}
	coverMarkers = []string{"cover", "翻唱", "tribute"}
	remixMarkers = []string{"remix"}
)

// Engine scores media-source candidates against a catalog track. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine builds an engine. A zero Config means DefaultConfig; otherwise unset
// weights, threshold and rank strengths fall back to their defaults.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg == (Config{}) {
		return &Engine{cfg: def}
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = def.Weights
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.StructuredRankStrength <= 0 {
		cfg.StructuredRankStrength = def.StructuredRankStrength
	}
	if cfg.FallbackRankStrength <= 0 {
		cfg.FallbackRankStrength = def.FallbackRankStrength
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) Threshold() float64 {
	return e.cfg.Threshold
}

// Score computes the confidence that candidate is the target track.
func (e *Engine) Score(target domain.TrackDescriptor, candidate domain.Candidate) ScoredCandidate {
	b := Breakdown{
		Title:     titleScore(target.Title, candidate.Title),
		Artist:    artistScore(targetArtists(target), candidate.Uploader, candidate.Title),
		Duration:  durationScore(target.DurationMS, candidateSeconds(candidate)),
		Rank:      rankPrior(candidate.Rank, e.rankStrength(candidate.Source)),
		Heuristic: e.heuristic(target.Title, candidate.Title),
	}
	w := e.cfg.Weights
	final := w.Title*b.Title + w.Artist*b.Artist + w.Duration*b.Duration + w.Rank*b.Rank + b.Heuristic
	return ScoredCandidate{
		Candidate: candidate,
		Score:     clamp01(final),
		Breakdown: b,
	}
}

// Rank scores every candidate and orders them by descending score. Equal scores
// keep their input order.
func (e *Engine) Rank(target domain.TrackDescriptor, candidates []domain.Candidate) Result {
	res := Result{Threshold: e.cfg.Threshold}
	if len(candidates) == 0 {
		res.NoCandidates = true
		return res
	}

	scored := make([]ScoredCandidate, len(candidates))
	for i := range candidates {
		scored[i] = e.Score(target, candidates[i])
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	res.Candidates = scored
	res.BestScore = scored[0].Score
	res.NeedsConfirmation = res.BestScore < e.cfg.Threshold
	return res
}

func (e *Engine) rankStrength(source domain.SourceTag) float64 {
	if source == domain.SourceStructured {
		return e.cfg.StructuredRankStrength
	}
	return e.cfg.FallbackRankStrength
}

func (e *Engine) heuristic(targetTitle, candidateTitle string) float64 {
	target := textnorm.Normalize(targetTitle)
	cand := textnorm.Normalize(candidateTitle)

	adj := 0.0
	if containsAny(target, liveMarkers) && containsAny(cand, liveMarkers) {
		adj += e.cfg.LiveBonus
	}
	if containsAny(cand, coverMarkers) && !containsAny(target, coverMarkers) {
		adj -= e.cfg.CoverPenalty
	}
	if containsAny(cand, remixMarkers) && !containsAny(target, remixMarkers) {
		adj -= e.cfg.RemixPenalty
	}
	return adj
}

func titleScore(targetTitle, candidateTitle string) float64 {
	a := textnorm.Normalize(targetTitle)
	b := textnorm.Normalize(candidateTitle)

	sim := Similarity(a, b)

	var tokens []string
	for _, tok := range textnorm.Tokens(targetTitle) {
		if len([]rune(tok)) >= 2 && tok != "feat" {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) > 0 {
		hits := 0
		for _, tok := range tokens {
			if strings.Contains(b, tok) {
				hits++
			}
		}
		contain := float64(hits) / float64(len(tokens))
		sim = math.Max(sim, 0.55*sim+0.45*contain)
	}

	if a != "" && strings.Contains(b, a) {
		sim = math.Max(sim, 0.85)
	}
	return clamp01(sim)
}

func artistScore(artists []string, uploader, candidateTitle string) float64 {
	blob := textnorm.Normalize(uploader) + " " + textnorm.Normalize(candidateTitle)

	best := 0.0
	matched := 0
	for _, artist := range artists {
		name := textnorm.Normalize(artist)
		sim := Similarity(name, blob)
		if name != "" && strings.Contains(blob, name) {
			sim = math.Max(sim, 0.95)
		}
		sim = clamp01(sim)
		if sim > best {
			best = sim
		}
		if sim >= 0.75 {
			matched++
		}
	}

	switch {
	case matched >= 2:
		best += 0.08
	case matched == 1:
		best += 0.02
	}
	return clamp01(best)
}

func targetArtists(target domain.TrackDescriptor) []string {
	if len(target.Artists) > 0 {
		return target.Artists
	}
	var out []string
	for _, a := range strings.Split(target.Artist, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func durationScore(targetMS int, candidateSec *float64) float64 {
	if targetMS <= 0 || candidateSec == nil {
		return 0.5
	}
	targetSec := math.Max(1, float64(targetMS)/1000)
	delta := math.Abs(targetSec - *candidateSec)
	switch {
	case delta <= 5:
		return 1.0
	case delta <= 15:
		return 0.85
	case delta <= 30:
		return 0.65
	case delta <= 60:
		return 0.35
	default:
		return 0.0
	}
}

func candidateSeconds(c domain.Candidate) *float64 {
	if c.DurationSec != nil {
		return c.DurationSec
	}
	if secs, ok := ParseDuration(c.DurationText); ok {
		return &secs
	}
	return nil
}

// ParseDuration reads "m:ss", "h:mm:ss" or a plain number of seconds.
func ParseDuration(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	parts := strings.Split(text, ":")
	if len(parts) > 3 {
		return 0, false
	}
	total := 0.0
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || v < 0 {
			return 0, false
		}
		total = total*60 + v
	}
	return total, true
}

func rankPrior(rank int, strength float64) float64 {
	if rank < 1 {
		rank = 1
	}
	return math.Exp(-float64(rank-1) / math.Max(1e-6, strength))
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
