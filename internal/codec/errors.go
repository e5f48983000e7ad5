package codec

import "errors"

// ErrInvalidInput is returned by ExportState when the state to export is
// nil. ImportDocument never returns an error value — parse failures are
// reported through ImportResult.Errors instead (spec §4.1).
var ErrInvalidInput = errors.New("codec: state is required")
