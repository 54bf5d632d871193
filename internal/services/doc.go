// Package services talks to HTTP APIs outside the catalog database.
//
// # Metadata Lookup
//
// [MetadataService] is the album metadata abstraction used by eager syncs and just-in-time cover caching.
// [SpotifyService] implements it against the Spotify Web API using the OAuth2 client credentials flow;
// the [clientcredentials] transport fetches and refreshes the app token on demand.
// Lookups are rate limited with [rate.Limiter] and responses are read with gjson.
//
// A missing album is not an error: LookupAlbum returns nil.
//
// # Server API
//
// [APIService] is the client used by CLI commands that drive a running progdb server
// (trigger, cancel and poll syncs).
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrMissingCredentials] : client id or secret not configured
//   - [shared.ErrAuthFailed] : token request or API call rejected the credentials
//   - [shared.ErrServiceUnavailable] : rate limited or upstream 5xx
//   - [shared.ErrAPIRequest] : any other failed request
//   - [shared.ErrSyncActive], [shared.ErrNoActiveSync] : trigger and cancel conflicts reported by the server
package services
