// Package fetch retrieves templates, feeds and icons from local paths or
// HTTP(S) URLs and streams them into a writer while reporting progress.
//
// Fetchers never retry on their own account; the HTTP fetcher delegates its
// retry policy to go-retryablehttp.
package fetch
