package shared

import (
	"testing"
)

func TestNormalizeTrackKey(t *testing.T) {
	tc := []struct {
		name   string
		title  string
		artist string
		want   string
	}{
		{
			name:   "basic normalization",
			title:  "Song Title",
			artist: "Artist Name",
			want:   "song title|artist name",
		},
		{
			name:   "extra whitespace",
			title:  "  Song   Title  ",
			artist: "  Artist   Name  ",
			want:   "song title|artist name",
		},
		{
			name:   "mixed case",
			title:  "SoNg TiTlE",
			artist: "ArTiSt NaMe",
			want:   "song title|artist name",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTrackKey(tt.title, tt.artist)
			if got != tt.want {
				t.Errorf("NormalizeTrackKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPruneTitle(t *testing.T) {
	tc := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Blinding Lights", want: "blindinglights"},
		{name: "surrounding whitespace", in: "  After Hours  ", want: "afterhours"},
		{name: "feat parenthetical", in: "Stay (feat. Justin Bieber)", want: "stay"},
		{name: "ft parenthetical", in: "Stay (ft. Justin Bieber) Remix", want: "stayremix"},
		{name: "with parenthetical", in: "Lose Control (with Someone)", want: "losecontrol"},
		{name: "only first feat span removed", in: "A (feat. B) (feat. C)", want: "afeatc"},
		{name: "unclosed feat kept", in: "Song (feat. Someone", want: "songfeatsomeone"},
		{name: "punctuation set", in: "Don't Stop! Me-Now? & You/Them [Live], \"x\".", want: "dontstopmenowyouthemlivex"},
		{name: "diacritics folded", in: "Beyoncé Café Über", want: "beyoncecafeuber"},
		{name: "non ascii dropped", in: "東京 Tokyo", want: "tokyo"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := PruneTitle(tt.in); got != tt.want {
				t.Errorf("PruneTitle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("idempotent", func(t *testing.T) {
		inputs := []string{
			"Blinding Lights",
			"Stay (feat. Justin Bieber)",
			"A (feat. B) (feat. C)",
			"a\t.",
			"Ünïcödé (with Ärtist) — Remastered 2011",
			"  (ft. x)(ft. y)  ",
			"東京 ﬁ Tokyo",
			"",
		}
		for _, in := range inputs {
			once := PruneTitle(in)
			if twice := PruneTitle(once); twice != once {
				t.Errorf("PruneTitle not idempotent for %q: %q then %q", in, once, twice)
			}
		}
	})
}

func TestPruneTitleForSearch(t *testing.T) {
	tc := []struct {
		name string
		in   string
		want string
	}{
		{name: "hyphens to spaces", in: "Self-Control", want: "Self Control"},
		{name: "feat span", in: "Stay (feat. Justin Bieber)", want: "Stay"},
		{name: "radio edit with parens", in: "Titanium (Radio Edit)", want: "Titanium"},
		{name: "radio edit bare", in: "Titanium radio edit", want: "Titanium"},
		{name: "brackets stripped", in: "Song [Live]", want: "Song Live"},
		{name: "collapses whitespace", in: "One   -   Two", want: "One Two"},
		{name: "ascii fold", in: "Café del Mar", want: "Cafe del Mar"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := PruneTitleForSearch(tt.in); got != tt.want {
				t.Errorf("PruneTitleForSearch(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPrunePunctuation(t *testing.T) {
	if got := PrunePunctuation("The Weeknd!, Daft-Punk 2"); got != "TheWeekndDaftPunk2" {
		t.Errorf("PrunePunctuation() = %q", got)
	}
}

func TestCloseMatch(t *testing.T) {
	tc := []struct {
		name string
		a, b string
		want bool
	}{
		{name: "identical", a: "The Weeknd", b: "The Weeknd", want: true},
		{name: "case and punctuation", a: "the weeknd", b: "The Weeknd!", want: true},
		{name: "contains", a: "Weeknd", b: "The Weeknd", want: true},
		{name: "contained", a: "The Weeknd", b: "Weeknd", want: true},
		{name: "different", a: "Drake", b: "The Weeknd", want: false},
		{name: "empty left", a: "", b: "The Weeknd", want: false},
		{name: "empty after pruning", a: "!!!", b: "The Weeknd", want: false},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := CloseMatch(tt.a, tt.b); got != tt.want {
				t.Errorf("CloseMatch(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := CloseMatch(tt.b, tt.a); got != tt.want {
				t.Errorf("CloseMatch(%q, %q) = %v, want %v (symmetry)", tt.b, tt.a, got, tt.want)
			}
		})
	}
}

func TestLevenshtein(t *testing.T) {
	tc := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abcd", 4},
		{"kitten", "sitting", 3},
		{"afterhours", "afterhoursdeluxe", 6},
		{"flaw", "lawn", 2},
		{"café", "cafe", 1},
	}

	for _, tt := range tc {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			if got := Levenshtein(tt.a, tt.b); got != tt.want {
				t.Errorf("Levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if got := Levenshtein(tt.b, tt.a); got != tt.want {
				t.Errorf("Levenshtein(%q, %q) = %d, want %d (symmetry)", tt.b, tt.a, got, tt.want)
			}
			if got := Levenshtein(tt.a, tt.a); got != 0 {
				t.Errorf("Levenshtein(%q, %q) = %d, want 0", tt.a, tt.a, got)
			}
		})
	}
}

func TestStableHash(t *testing.T) {
	a := StableHash("spotify", "abc")
	if a != StableHash("spotify", "abc") {
		t.Error("expected identical hashes for identical parts")
	}
	if a == StableHash("deezer", "abc") {
		t.Error("expected different hashes for different parts")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestSanitizeFileName(t *testing.T) {
	tc := []struct{ in, want string }{
		{"AC/DC - Back In Black", "AC-DC - Back In Black"},
		{"What? \"Quoted\" <x>|y", "What Quoted xy"},
		{"  ", ""},
	}
	for _, tt := range tc {
		if got := SanitizeFileName(tt.in); got != tt.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tc := []struct {
		in   int
		want string
	}{
		{0, "0:00"},
		{200, "3:20"},
		{3725, "1:02:05"},
	}
	for _, tt := range tc {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
