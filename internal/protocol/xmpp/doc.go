// Package xmpp holds the fixed bootstrap exchange for the chat server.
//
// Only stage-transition markers are inspected in server responses; the
// payloads are otherwise opaque and recorded verbatim by the transcript.
//
// Bootstrap order:
// - stream open -> wait `X-Riot-RSO-PAS`
// - RSO/PAS auth -> wait for any response
// - stream reopen -> wait `stream:features`
// - resource bind -> any response
// - session -> any response
// - entitlements -> any response
// - roster/archive query + initial presence, no response awaited
package xmpp
