package xmpp

import "fmt"

// Stage is a session's position in the bootstrap sequence.
type Stage int

const (
	Disconnected Stage = iota
	TLSConnected
	StreamOpened
	AuthChallengeSent
	AuthAccepted
	StreamReopened
	ResourceBound
	SessionEstablished
	EntitlementSubmitted
	Ready
)

var stageNames = [...]string{
	Disconnected:         "Disconnected",
	TLSConnected:         "TLSConnected",
	StreamOpened:         "StreamOpened",
	AuthChallengeSent:    "AuthChallengeSent",
	AuthAccepted:         "AuthAccepted",
	StreamReopened:       "StreamReopened",
	ResourceBound:        "ResourceBound",
	SessionEstablished:   "SessionEstablished",
	EntitlementSubmitted: "EntitlementSubmitted",
	Ready:                "Ready",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Next returns the stage that follows s in the linear sequence.
func (s Stage) Next() Stage {
	if s >= Ready {
		return Ready
	}
	return s + 1
}
