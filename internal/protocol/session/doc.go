// Package session owns the chat-server connection lifecycle.
//
// Ownership boundary:
// - TLS transport dial
// - bootstrap handshake state machine (see package xmpp)
// - steady-state keepalive
// - reconnect supervision
//
// One Client produces one live Conn per Connect call; the Supervisor
// drives Connect/Serve in a loop until its context is canceled.
package session
