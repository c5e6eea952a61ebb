// Package catalog retrieves the releases of a GitHub repository.
//
// The client is a thin request/response layer over go-github: it pages
// through the releases API transparently and returns one flattened slice in
// the order the provider returned it (newest first). It does not sort, filter
// or cache; choosing which assets are installable is left to the caller.
//
// Failures are reported as *Error with one of four kinds:
//
//   - Unauthorized: the token was rejected (HTTP 401)
//   - NotFound: the repository does not exist or is private (HTTP 404)
//   - RateLimited: primary or secondary rate limits (HTTP 403/429)
//   - Transport: everything else, including timeouts
//
// # Usage Example
//
//	client, err := catalog.NewClient(token, "acme", "app",
//	    catalog.WithTimeout(10*time.Second))
//	if err != nil {
//	    return err
//	}
//	releases, err := client.FetchReleases(ctx)
//	if catalog.KindOf(err) == catalog.ErrUnauthorized {
//	    // ask the operator for a new token
//	}
package catalog
