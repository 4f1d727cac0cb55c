// Package httputil downloads installer scripts over HTTP.
//
// # Overview
//
// [Download] streams a response body into a temporary file inside a target
// directory and returns its path. Only a 200 response is accepted; on any
// failure the partial file is removed, so callers never see a truncated
// download.
//
// Requests emit [observability.HTTPHooks] events so that downloads can be
// measured without this package depending on a metrics backend.
//
// There is no retry and no response cache: a failed download is reported to
// the caller as-is.
//
//	path, err := httputil.Download(ctx, httputil.NewClient(), url, dir, "installer-*.sh")
package httputil
