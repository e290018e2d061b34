package resolver

import (
	"strings"

	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/services"
	"github.com/desertthunder/tunedl/internal/shared"
)

// Tier is the confidence level at which [SelectVideo] accepted a result, highest first.
type Tier int

const (
	TierNone Tier = iota
	TierAuthorAndTitle
	TierAuthor
	TierTitleArtistAudio
	TierTitleArtist
	TierTitleAudio
	TierTitle
	TierFirstResult
)

func (t Tier) String() string {
	switch t {
	case TierAuthorAndTitle:
		return "author+title"
	case TierAuthor:
		return "author"
	case TierTitleArtistAudio:
		return "title+artist+audio"
	case TierTitleArtist:
		return "title+artist"
	case TierTitleAudio:
		return "title+audio"
	case TierTitle:
		return "title"
	case TierFirstResult:
		return "first result"
	default:
		return "none"
	}
}

// Severity maps the tier onto a result severity. A video is never authoritative.
func (t Tier) Severity() models.Severity {
	if t == TierNone {
		return models.Error
	}
	return models.Warning
}

// VideoQuery builds the free-text search used on the video host.
func VideoQuery(track models.Track) string {
	title := shared.PruneTitleForSearch(track.Title)
	if len(track.Artists) == 0 {
		return title
	}
	return track.Artists[0] + " " + title
}

// SelectVideo picks the result passing the highest tier, scanning every result per tier before moving down.
// Returns false only when videos is empty.
func SelectVideo(track models.Track, videos []services.Video) (services.Video, Tier, bool) {
	if len(videos) == 0 {
		return services.Video{}, TierNone, false
	}

	prunedTitle := shared.PruneTitle(track.Title)
	searchTitle := strings.ToLower(shared.PruneTitleForSearch(track.Title))
	artists := make([]string, 0, len(track.Artists))
	for _, a := range track.Artists {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			artists = append(artists, a)
		}
	}

	hasArtist := func(s string) bool {
		for _, a := range artists {
			if strings.Contains(s, a) {
				return true
			}
		}
		return false
	}

	type features struct {
		author, prunedTitle, title bool
		artist, audio              bool
	}
	feats := make([]features, len(videos))
	for i, v := range videos {
		title := strings.ToLower(v.Title)
		feats[i] = features{
			author:      hasArtist(strings.ToLower(v.Author)),
			prunedTitle: prunedTitle != "" && strings.Contains(shared.PruneTitle(v.Title), prunedTitle),
			title:       searchTitle != "" && strings.Contains(strings.ToLower(shared.PruneTitleForSearch(v.Title)), searchTitle),
			artist:      hasArtist(title),
			audio:       strings.Contains(title, "audio"),
		}
	}

	tiers := []struct {
		tier Tier
		ok   func(f features) bool
	}{
		{TierAuthorAndTitle, func(f features) bool { return f.author && f.prunedTitle }},
		{TierAuthor, func(f features) bool { return f.author }},
		{TierTitleArtistAudio, func(f features) bool { return f.title && f.artist && f.audio }},
		{TierTitleArtist, func(f features) bool { return f.title && f.artist }},
		{TierTitleAudio, func(f features) bool { return f.title && f.audio }},
		{TierTitle, func(f features) bool { return f.title }},
	}
	for _, tier := range tiers {
		for i, f := range feats {
			if tier.ok(f) {
				return videos[i], tier.tier, true
			}
		}
	}
	return videos[0], TierFirstResult, true
}
