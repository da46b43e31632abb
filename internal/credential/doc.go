// Package credential owns the bearer token and entitlement lifecycle.
//
// Tokens are obtained by replaying the stored session cookies against the
// authorize endpoint (no redirect following); the access token arrives in
// the fragment of the callback redirect. The access token is then
// exchanged for an entitlement token.
//
// Renewal is lazy: callers asking for an expired credential block on a
// single in-flight renewal shared by every concurrent caller.
package credential
