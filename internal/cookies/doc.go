// Package cookies holds the reauthentication cookie jar and the stores
// that persist it between runs.
//
// A Jar is keyed by (name, domain). Merging server-issued cookies only
// replaces matching keys, so nothing previously held is dropped unless a
// newer cookie supersedes it. Cookies loaded from the plain text store
// carry no domain; a server cookie with the same name replaces them.
//
// Stores:
// - FileStore: `name=value; name=value` text file (cookies.txt)
// - BoltStore: bbolt bucket holding the JSON-encoded jar
// - RedisStore: redis key holding the JSON-encoded jar
package cookies
