// package router classifies user input (catalog URLs, short links, free text) and loads the tracks it names
// into a run's collections.
package router

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/desertthunder/tunedl/internal/models"
)

// Entity is the kind of object a URL points at.
type Entity string

const (
	EntityNone     Entity = "none"
	EntityTrack    Entity = "track"
	EntityAlbum    Entity = "album"
	EntityPlaylist Entity = "playlist"
)

// Classification is the result of [Classify].
//
// Source is empty for input outside every known domain. A known domain with no entity rule match has
// Entity [EntityNone] and no ID. ShortLink marks a recognized short-link domain whose
// target must be resolved with one redirect before the entity and id are known.
type Classification struct {
	Source    models.Source
	Entity    Entity
	ID        string
	Raw       string
	ShortLink bool
}

// Recognized reports whether the input matched a source rule.
func (c Classification) Recognized() bool {
	return c.Source != ""
}

type rule struct {
	source  models.Source
	pattern *regexp.Regexp
	// entity is fixed when the pattern has no entity group.
	entity Entity
}

// Patterns run against the normalized URL: scheme and host lowercased, query and one trailing slash removed.
var rules = []rule{
	{source: models.SourceSpotify, pattern: regexp.MustCompile(`^https?://open\.spotify\.com/(?:intl-[a-z]{2}(?:-[A-Za-z]{2})?/)?(?:embed/)?(track|album|playlist)/[A-Za-z0-9]+$`)},
	{source: models.SourceDeezer, pattern: regexp.MustCompile(`^https?://(?:www\.)?deezer\.com/(?:[a-z]{2}(?:-[a-z]{2})?/)?(track|album|playlist)/\d+$`)},
	{source: models.SourceQobuz, pattern: regexp.MustCompile(`^https?://(?:open|play)\.qobuz\.com/(track|album|playlist)/[A-Za-z0-9]+$`)},
	{source: models.SourceQobuz, pattern: regexp.MustCompile(`^https?://www\.qobuz\.com/[a-z]{2}-[a-z]{2}/album/[^/]+/[A-Za-z0-9]+$`), entity: EntityAlbum},
	{source: models.SourceYouTube, pattern: regexp.MustCompile(`^https?://youtu\.be/[A-Za-z0-9_-]+$`), entity: EntityTrack},
}

var spotifyURIPattern = regexp.MustCompile(`^spotify:(track|album|playlist):([A-Za-z0-9]+)$`)

// shortLinkHosts map to the source whose full URLs they redirect to.
var shortLinkHosts = map[string]models.Source{
	"spotify.link":     models.SourceSpotify,
	"spotify.app.link": models.SourceSpotify,
	"deezer.page.link": models.SourceDeezer,
	"link.deezer.com":  models.SourceDeezer,
	"dzr.page.link":    models.SourceDeezer,
}

// catalogHosts are the full-URL domains of each source. A URL on one of them that matches no rule is still
// attributed to the source so it is reported rather than searched.
var catalogHosts = map[string]models.Source{
	"open.spotify.com": models.SourceSpotify,
	"play.spotify.com": models.SourceSpotify,
	"deezer.com":       models.SourceDeezer,
	"www.deezer.com":   models.SourceDeezer,
	"qobuz.com":        models.SourceQobuz,
	"www.qobuz.com":    models.SourceQobuz,
	"open.qobuz.com":   models.SourceQobuz,
	"play.qobuz.com":   models.SourceQobuz,
	"youtu.be":         models.SourceYouTube,
}

var youtubeHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
}

// Classify maps raw input to a source, entity and id. It never performs I/O.
func Classify(raw string) Classification {
	raw = strings.TrimSpace(raw)
	none := Classification{Entity: EntityNone, Raw: raw}

	if m := spotifyURIPattern.FindStringSubmatch(raw); m != nil {
		return Classification{Source: models.SourceSpotify, Entity: Entity(m[1]), ID: m[2], Raw: raw}
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return none
	}
	host := strings.ToLower(u.Host)

	if src, ok := shortLinkHosts[host]; ok {
		return Classification{Source: src, Entity: EntityNone, Raw: raw, ShortLink: true}
	}

	if youtubeHosts[host] {
		q := u.Query()
		switch {
		case strings.TrimSuffix(u.Path, "/") == "/watch" && q.Get("v") != "":
			return Classification{Source: models.SourceYouTube, Entity: EntityTrack, ID: q.Get("v"), Raw: raw}
		case strings.TrimSuffix(u.Path, "/") == "/playlist" && q.Get("list") != "":
			return Classification{Source: models.SourceYouTube, Entity: EntityPlaylist, ID: q.Get("list"), Raw: raw}
		}
		return Classification{Source: models.SourceYouTube, Entity: EntityNone, Raw: raw}
	}

	normalized := normalize(u)
	for _, r := range rules {
		m := r.pattern.FindStringSubmatch(normalized)
		if m == nil {
			continue
		}
		entity := r.entity
		if entity == "" {
			entity = Entity(m[1])
		}
		return Classification{Source: r.source, Entity: entity, ID: lastSegment(normalized), Raw: raw}
	}
	if src, ok := catalogHosts[host]; ok {
		return Classification{Source: src, Entity: EntityNone, Raw: raw}
	}
	return none
}

// normalize drops the query string and fragment plus a single trailing slash.
func normalize(u *url.URL) string {
	path := strings.TrimSuffix(u.EscapedPath(), "/")
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path
}

func lastSegment(s string) string {
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}
