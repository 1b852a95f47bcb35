/*
Authenticated HTTP client layer for the App Store Connect API, and the web-session APIs behind it.

[APIClient] wraps an [http.Client] and provides a verb-oriented interface ([APIClient.Get], [APIClient.Post], [APIClient.Patch], [APIClient.Delete]) for JSON:API endpoints. A client is created with exactly one of three credential shapes (see [Config]):

- an API token ([Token]; usually an [APIKeyToken] signed from a ".p8" key), targeting the public App Store Connect API
- a web-session cookie, with team ID and CSRF tokens, targeting a host supplied by a [HostResolver]
- another client, from which web-session state is copied (a token never is)

Every call runs through a fixed transport pipeline of [Stage] functions: body decoding (JSON and plist), Link header relations, request statistics, bounded retries on HTTP 429/500/504 and network failures ([RetryPolicy]), and credential injection ([AuthMethod]), with token refresh at most once per call. Responses are then classified in to a [Response] envelope, or one of [ServerError], [UnexpectedShapeError], [UnexpectedResponseError], [TransientError], or [TransportError]. Configuration problems are reported at construction time, wrapping [ErrInvalidConfig].

Session credential state ([Session]) is guarded by a lock, and a single client is safe to use from multiple goroutines.

Environment configuration is read with the "SHIPYARD_" prefix; see [Env].
*/
package ascapi
