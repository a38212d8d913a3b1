package digitransit

import "errors"

// ErrFetchFailed covers transport failures, timeouts, non-2xx responses and
// undecodable payloads from the upstream API. A cycle hitting this error
// writes nothing.
var ErrFetchFailed = errors.New("digitransit: fetch failed")

// ErrMalformedRecord marks a single record violating schema expectations.
// It is swallowed at the normalizer boundary: the record is logged and
// dropped, the rest of the batch continues.
var ErrMalformedRecord = errors.New("digitransit: malformed record")
