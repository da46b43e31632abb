package xmpp

const (
	MarkerAuthMechanism = "X-Riot-RSO-PAS"
	MarkerFeatures      = "stream:features"

	Bind             = `<iq id="_xmpp_bind1" type="set"><bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"></bind></iq>`
	Session          = `<iq id="_xmpp_session1" type="set"><session xmlns="urn:ietf:params:xml:ns:xmpp-session"/></iq>`
	RosterAndArchive = `<iq type="get" id="1"><query xmlns="jabber:iq:riotgames:roster" last_state="true"/></iq><iq type="get" id="recent_convos_3"><query xmlns="jabber:iq:riotgames:archive:list"/></iq>`
	Presence         = `<presence/>`
	Keepalive        = " "
)

// StreamOpen opens a stream to <domain>.pvp.net.
func StreamOpen(domain string) string {
	return `<?xml version="1.0"?><stream:stream to="` + domain + `.pvp.net" version="1.0" xmlns:stream="http://etherx.jabber.org/streams">`
}

// Auth carries the bearer token and the region-assignment token.
func Auth(token, assignment string) string {
	return `<auth mechanism="X-Riot-RSO-PAS" xmlns="urn:ietf:params:xml:ns:xmpp-sasl"><rso_token>` + token + `</rso_token><pas_token>` + assignment + `</pas_token></auth>`
}

// Entitlements submits the entitlement token.
func Entitlements(entitlement string) string {
	return `<iq id="xmpp_entitlements_0" type="set"><entitlements xmlns="urn:riotgames:entitlements"><token xmlns="">` + entitlement + `</token></entitlements></iq>`
}

// Step is one write/await pair of the bootstrap. An empty Marker accepts
// any response.
type Step struct {
	Name     string
	Fragment string
	Marker   string
	// Sent is entered once the fragment is written; Disconnected means
	// the stage does not change on write.
	Sent Stage
	Done Stage
}

// HandshakeSteps returns the six bootstrap steps in order.
func HandshakeSteps(domain, token, assignment, entitlement string) []Step {
	return []Step{
		{Name: "stream-open", Fragment: StreamOpen(domain), Marker: MarkerAuthMechanism, Done: StreamOpened},
		{Name: "auth", Fragment: Auth(token, assignment), Sent: AuthChallengeSent, Done: AuthAccepted},
		{Name: "stream-reopen", Fragment: StreamOpen(domain), Marker: MarkerFeatures, Done: StreamReopened},
		{Name: "bind", Fragment: Bind, Done: ResourceBound},
		{Name: "session", Fragment: Session, Done: SessionEstablished},
		{Name: "entitlements", Fragment: Entitlements(entitlement), Done: EntitlementSubmitted},
	}
}
