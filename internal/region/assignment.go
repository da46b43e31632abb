package region

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Assignment is the decoded payload of a region-assignment token.
type Assignment struct {
	Raw      string
	Affinity string
	Subject  string
}

type assignmentPayload struct {
	Affinity string `json:"affinity"`
	Subject  string `json:"sub"`
}

var segmentDecoder = jwt.NewParser(jwt.WithPaddingAllowed())

// segmentAlphabet maps the standard base64 alphabet onto the URL-safe one.
var segmentAlphabet = strings.NewReplacer("+", "-", "/", "_")

// DecodeAssignment reads the affinity from the token's middle segment.
// The header and signature are not inspected; the chat server verifies the
// token when it is forwarded during auth.
func DecodeAssignment(raw string) (Assignment, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Assignment{}, fmt.Errorf("%w: segments=%d", ErrRegionTokenFormat, len(parts))
	}
	data, err := segmentDecoder.DecodeSegment(segmentAlphabet.Replace(parts[1]))
	if err != nil {
		return Assignment{}, fmt.Errorf("%w: payload: %w", ErrRegionTokenFormat, err)
	}
	var payload assignmentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Assignment{}, fmt.Errorf("%w: payload json: %w", ErrRegionTokenFormat, err)
	}
	if strings.TrimSpace(payload.Affinity) == "" {
		return Assignment{}, ErrRegionTokenMissingField
	}
	return Assignment{
		Raw:      raw,
		Affinity: payload.Affinity,
		Subject:  payload.Subject,
	}, nil
}
