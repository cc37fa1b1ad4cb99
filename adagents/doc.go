// Copyright (c) adregistry Authors.
// Licensed under the MIT License.

/*
Package adagents fetches and validates publisher adagents.json manifests.

The manifest lives at https://{domain}/.well-known/adagents.json and lists
the agents a publisher authorizes to sell its inventory, optionally
restricted to a subset of the properties it declares.

HTTPFetcher applies a global rate limit, retries network errors and 5xx
responses with backoff, caps the response size and follows one
authoritative_location hop. Every failure to obtain a parseable manifest
surfaces as a types.Error with code TRANSIENT_FETCH_FAILURE; the crawler
logs it and skips the domain until the next pass.
*/
package adagents
