// Package region turns a region-assignment token into the chat host and
// XMPP domain to connect to.
//
// The assignment token is a signed three-segment token whose payload
// carries an `affinity` code. The code is looked up in the player config
// (`chat.affinities`, `chat.affinity_domains`), which a Resolver caches
// for a configurable TTL and refetches once when a code is missing.
package region
