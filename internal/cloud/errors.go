package cloud

import "errors"

// Sentinel errors for the provider boundary. Callers classify failures with
// errors.Is and decide whether to abort, skip a signal, or report.
var (
	// ErrResourceLookup means the target does not exist or its status could
	// not be determined. Fatal to that target's assessment, never to a
	// fleet check.
	ErrResourceLookup = errors.New("resource lookup failed")

	// ErrFetchFailed means one metric/log stream could not be fetched. The
	// signal is treated as "no data"; the assessment continues.
	ErrFetchFailed = errors.New("metric fetch failed")

	// ErrRemediation means a stop/start instruction was rejected or its
	// confirmation polling was exhausted.
	ErrRemediation = errors.New("remediation failed")
)
