package credential

import "errors"

var (
	ErrReauthRedirectMissing = errors.New("credential: reauth response missing location header")
	ErrReauthRedirectInvalid = errors.New("credential: reauth redirect invalid")
	ErrRenewalExhausted      = errors.New("credential: reauthentication attempts exhausted")
	ErrEntitlementExchange   = errors.New("credential: entitlement exchange failed")
	ErrCredentialExpired     = errors.New("credential: renewed credential already expired")
)
