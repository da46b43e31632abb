package xmpp

import (
	"strings"
	"testing"

	"github.com/danmuck/presencectl/internal/testutil/testlog"
)

func TestFragmentsByteExact(t *testing.T) {
	testlog.Start(t)
	if got := StreamOpen("na2"); got != `<?xml version="1.0"?><stream:stream to="na2.pvp.net" version="1.0" xmlns:stream="http://etherx.jabber.org/streams">` {
		t.Fatalf("unexpected stream open: %s", got)
	}
	if got := Auth("T", "P"); got != `<auth mechanism="X-Riot-RSO-PAS" xmlns="urn:ietf:params:xml:ns:xmpp-sasl"><rso_token>T</rso_token><pas_token>P</pas_token></auth>` {
		t.Fatalf("unexpected auth: %s", got)
	}
	if got := Entitlements("E"); got != `<iq id="xmpp_entitlements_0" type="set"><entitlements xmlns="urn:riotgames:entitlements"><token xmlns="">E</token></entitlements></iq>` {
		t.Fatalf("unexpected entitlements: %s", got)
	}
}

func TestHandshakeStepsOrder(t *testing.T) {
	testlog.Start(t)
	steps := HandshakeSteps("eu1", "T", "P", "E")
	if len(steps) != 6 {
		t.Fatalf("unexpected step count: %d", len(steps))
	}
	wantDone := []Stage{StreamOpened, AuthAccepted, StreamReopened, ResourceBound, SessionEstablished, EntitlementSubmitted}
	wantMarker := []string{MarkerAuthMechanism, "", MarkerFeatures, "", "", ""}
	for i, step := range steps {
		if step.Done != wantDone[i] {
			t.Fatalf("step %d (%s) done=%s want %s", i, step.Name, step.Done, wantDone[i])
		}
		if step.Marker != wantMarker[i] {
			t.Fatalf("step %d (%s) marker=%q want %q", i, step.Name, step.Marker, wantMarker[i])
		}
	}
	if steps[1].Sent != AuthChallengeSent {
		t.Fatalf("auth step should enter AuthChallengeSent on write")
	}
	if !strings.Contains(steps[0].Fragment, `to="eu1.pvp.net"`) || steps[0].Fragment != steps[2].Fragment {
		t.Fatalf("stream open/reopen mismatch")
	}
}

func TestStageString(t *testing.T) {
	testlog.Start(t)
	if Disconnected.String() != "Disconnected" || Ready.String() != "Ready" {
		t.Fatalf("unexpected names")
	}
	if Stage(42).String() != "Stage(42)" {
		t.Fatalf("unexpected unknown name: %s", Stage(42))
	}
	if Ready.Next() != Ready || TLSConnected.Next() != StreamOpened {
		t.Fatalf("unexpected Next")
	}
}

func TestScannerMarkerAcrossChunks(t *testing.T) {
	testlog.Start(t)
	s := NewScanner()
	s.Feed([]byte(`<stream:features><mechanisms xmlns="urn:ietf:params:xml:ns:xmpp-sasl"><mechanism>X-Riot-`))
	if s.Consume(MarkerAuthMechanism) {
		t.Fatalf("marker matched on partial input")
	}
	if s.Pending() != len(MarkerAuthMechanism)-1 {
		t.Fatalf("expected tail retained, pending=%d", s.Pending())
	}
	s.Feed([]byte(`RSO-PAS</mechanism></mechanisms></stream:features>`))
	if !s.Consume(MarkerAuthMechanism) {
		t.Fatalf("marker split across chunks not detected")
	}
	if s.Pending() != 0 {
		t.Fatalf("expected buffer drained, pending=%d", s.Pending())
	}
}

func TestScannerOutOfOrderMarkerDoesNotAdvance(t *testing.T) {
	testlog.Start(t)
	s := NewScanner()
	s.Feed([]byte(`<stream:features><bind/></stream:features>`))
	if s.Consume(MarkerAuthMechanism) {
		t.Fatalf("stage 3 response satisfied stage 1 marker")
	}
}

func TestScannerAnyResponse(t *testing.T) {
	testlog.Start(t)
	s := NewScanner()
	if s.Consume("") {
		t.Fatalf("empty buffer satisfied any-response wait")
	}
	s.Feed([]byte(`<success xmlns="urn:ietf:params:xml:ns:xmpp-sasl"/>`))
	if !s.Consume("") {
		t.Fatalf("expected any response to be consumed")
	}
	if s.Pending() != 0 {
		t.Fatalf("expected buffer drained")
	}
}
