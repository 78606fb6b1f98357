package extract

import "errors"

// ErrNoResponse is returned when the extraction service could not be
// reached at all. Upstream errors that do produce a response are recovered
// with defaulted fields instead.
var ErrNoResponse = errors.New("no response from extraction service")
