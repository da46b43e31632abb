// Package chattest scripts the server half of a chat connection over
// net.Pipe.
package chattest

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
)

// Peer is the server side of one pipe.
type Peer struct {
	Conn net.Conn
	acc  string
}

// Expect reads until marker has been received, dropping everything up to
// and including it.
func (p *Peer) Expect(marker string) bool {
	buf := make([]byte, 4096)
	for {
		if idx := strings.Index(p.acc, marker); idx >= 0 {
			p.acc = p.acc[idx+len(marker):]
			return true
		}
		n, err := p.Conn.Read(buf)
		if err != nil {
			return false
		}
		p.acc += string(buf[:n])
	}
}

// Send writes each chunk as a separate write.
func (p *Peer) Send(chunks ...string) bool {
	for _, chunk := range chunks {
		if _, err := io.WriteString(p.Conn, chunk); err != nil {
			return false
		}
	}
	return true
}

// Drain discards input until the client closes.
func (p *Peer) Drain() {
	_, _ = io.Copy(io.Discard, p.Conn)
}

// Bootstrap plays the server half of the full handshake for domain. The
// stage 1 marker is split across two writes.
func (p *Peer) Bootstrap(domain string) bool {
	return p.ExpectStreamOpen(domain) && p.AcceptStream(domain)
}

// ExpectStreamOpen waits for the client's first stream open.
func (p *Peer) ExpectStreamOpen(domain string) bool {
	return p.Expect(`to="` + domain + `.pvp.net"`)
}

// AcceptStream plays the rest of the handshake once the stream open has
// been read.
func (p *Peer) AcceptStream(domain string) bool {
	return p.Send(
			`<?xml version='1.0'?><stream:stream from='`+domain+`.pvp.net' version='1.0'><stream:features><mechanisms><mechanism>X-Riot-`,
			`RSO-PAS</mechanism></mechanisms></stream:features>`,
		) &&
		p.Expect(`</auth>`) &&
		p.Send(`<success xmlns="urn:ietf:params:xml:ns:xmpp-sasl"/>`) &&
		p.Expect(`xmlns:stream="http://etherx.jabber.org/streams">`) &&
		p.Send(`<stream:stream from='`+domain+`.pvp.net' version='1.0'><stream:features><bind/><session/></stream:features>`) &&
		p.Expect(`</bind></iq>`) &&
		p.Send(`<iq id="_xmpp_bind1" type="result"><bind><jid>player@`+domain+`.pvp.net/r</jid></bind></iq>`) &&
		p.Expect(`xmpp-session"/></iq>`) &&
		p.Send(`<iq id="_xmpp_session1" type="result"/>`) &&
		p.Expect(`</entitlements></iq>`) &&
		p.Send(`<iq id="xmpp_entitlements_0" type="result"/>`) &&
		p.Expect(`<presence/>`)
}

// PipeDialer hands out pipes and runs Script on the server half of each.
// The server half is closed when Script returns.
type PipeDialer struct {
	Script func(p *Peer)

	mu    sync.Mutex
	hosts []string
}

func (d *PipeDialer) Dial(_ context.Context, host string, _ int) (net.Conn, error) {
	d.mu.Lock()
	d.hosts = append(d.hosts, host)
	d.mu.Unlock()
	client, server := net.Pipe()
	go func() {
		defer server.Close()
		if d.Script != nil {
			d.Script(&Peer{Conn: server})
		}
	}()
	return client, nil
}

func (d *PipeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.hosts)
}

func (d *PipeDialer) Hosts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.hosts...)
}
