// Package services defines the [Catalog], [Downloader] and [VideoHost] capabilities and implements them for
// Spotify, Deezer, Qobuz and YouTube.
//
// # Catalogs
//
// A [Catalog] is a searchable track and album database. Every catalog can search, fetch by id, fetch albums
// and playlists with ordered tracks, and return a [models.Metadata] record for tagging. ISRC lookup is
// part of the interface; catalogs without a direct lookup emulate it (Qobuz searches the code and keeps only
// an exact hit).
//
// Field-qualified searches are built with the catalog's [Dialect]:
//   - Spotify: track:"t" artist:"a" album:"b"
//   - Deezer: artist:"a" track:"t" album:"b"
//   - Qobuz: free text
//
// # Fetching
//
// All HTTP catalogs share a [Fetcher]. It throttles requests per client with a token bucket and maps
// responses onto the sentinel errors in [shared]:
//   - 404 : [shared.ErrNotFound]
//   - 401, 403 : [shared.ErrAuthFailed]
//   - 429 or a 2xx body containing "Quota limit exceeded" : [shared.ErrRateLimited]
//   - 5xx : [shared.ErrServiceUnavailable]
//   - transport failure : [shared.ErrNetworkFailure]
//
// A quota body is retried exactly once after a fixed delay before it is surfaced.
//
// # Downloads
//
// [QobuzService] streams signed file URLs to a temp file which is renamed into place on success.
// [YouTubeService] drives yt-dlp for search and audio extraction and is the last-resort [VideoHost].
//
// The [Catalogs] registry maps sources to their capabilities and is passed explicitly to the resolver, the
// router and the orchestrator.
package services
