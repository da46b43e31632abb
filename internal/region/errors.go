package region

import "errors"

var (
	ErrRegionTokenFormat       = errors.New("region: malformed region-assignment token")
	ErrRegionTokenMissingField = errors.New("region: region-assignment token missing affinity")
	ErrRegionNotFound          = errors.New("region: affinity not found in player config")
	ErrFetchFailed             = errors.New("region: fetch failed")
)
