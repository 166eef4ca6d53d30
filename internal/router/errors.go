package router

import "errors"

// ErrRateLimited is returned by callers that reject a send after Admit
// said no.
var ErrRateLimited = errors.New("rate limit exceeded")
