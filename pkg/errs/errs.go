// Package errs defines the failure kinds every stage reports.
//
// Each kind is a sentinel. Constructors wrap the sentinel with a message so
// callers can branch on the kind with errors.Is while the user still sees
// what went wrong.
package errs

import (
	"github.com/pkg/errors"
)

var (
	// ErrConfig covers a malformed document, invalid values and unsupported model types.
	ErrConfig = errors.New("configuration error")

	// ErrDataQuality covers missing columns, unparseable values and out-of-contract inputs.
	ErrDataQuality = errors.New("data quality error")

	// ErrArtifact covers a missing, corrupt or incompatible model artifact.
	ErrArtifact = errors.New("artifact error")
)

// Config returns an ErrConfig with context.
func Config(format string, args ...any) error {
	return errors.Wrapf(ErrConfig, format, args...)
}

// DataQuality returns an ErrDataQuality with context.
func DataQuality(format string, args ...any) error {
	return errors.Wrapf(ErrDataQuality, format, args...)
}

// Artifact returns an ErrArtifact with context.
func Artifact(format string, args ...any) error {
	return errors.Wrapf(ErrArtifact, format, args...)
}

// Kind names the failure kind of err, or "io" when it matches none.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrDataQuality):
		return "data"
	case errors.Is(err, ErrArtifact):
		return "artifact"
	default:
		return "io"
	}
}
