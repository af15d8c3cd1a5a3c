package textnorm

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", "   \t ", ""},
		{"meta tokens and brackets", "Official Audio - Song (Lyrics)", "song"},
		{"artist dash title", "Little Big - Hypnodancer (Official Audio)", "little big hypnodancer"},
		{"square bracket meta", "Song Name [4K Remastered]", "song name"},
		{"colon separator", "Artist: Title", "artist title"},
		{"em dash", "Artist — Title", "artist title"},
		{"feat dot", "Song (feat. Someone)", "song (feat someone)"},
		{"ft dot", "Song ft. Someone", "song feat someone"},
		{"ft bare", "Song FT Someone", "song feat someone"},
		{"featuring untouched", "featuring", "featuring"},
		{"meta inside word kept", "Shadows of Audiobahn", "shadows of audiobahn"},
		{"official music video", "Track (Official Music Video)", "track"},
		{"bare mv and hd", "Track MV HD", "track"},
		{"non-bracket keeps content", "Song (Acoustic)", "song (acoustic)"},
		{"unicode", "ПЕСНЯ - Официальное", "песня официальное"},
		{"cjk live marker", "歌曲 (现场)", "歌曲 (现场)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	inputs := []string{
		"Official Audio - Song (Lyrics)",
		"  a  -  b  ",
		"(official) x [lyrics] y (mv)",
		"::--::",
	}
	for _, in := range inputs {
		got := Normalize(in)
		if got != strings.TrimSpace(got) {
			t.Errorf("Normalize(%q) = %q has leading or trailing whitespace", in, got)
		}
		if strings.Contains(got, "  ") {
			t.Errorf("Normalize(%q) = %q has doubled whitespace", in, got)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	in := "Little Big - Hypnodancer (Official Video) ft. Tommy Cash"
	once := Normalize(in)
	if twice := Normalize(once); twice != once {
		t.Errorf("Normalize not idempotent: %q then %q", once, twice)
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("Little Big - Hypnodancer")
	want := []string{"little", "big", "hypnodancer"}
	if len(got) != len(want) {
		t.Fatalf("Tokens() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Tokens()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if toks := Tokens(""); len(toks) != 0 {
		t.Errorf("Tokens(\"\") = %v, want empty", toks)
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"AC/DC", "ACDC"},
		{`What? "Now": <1>|*`, "What Now 1"},
		{"  spaced  ", "spaced"},
		{"...", "unknown"},
		{"", "unknown"},
		{"Björk", "Björk"},
	}
	for _, tt := range tests {
		if got := SanitizeFileName(tt.in, "unknown"); got != tt.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
