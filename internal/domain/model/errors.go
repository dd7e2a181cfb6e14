package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies fetch failures so callers can choose a recovery policy
// without inspecting error strings.
type ErrorKind int

const (
	// KindTransient covers connection failures and unexpected HTTP statuses.
	// The campaign is retried from the same cursor on the next cycle.
	KindTransient ErrorKind = iota
	// KindNotSupported means the URL is not a recognizable campaign.
	KindNotSupported
	// KindRateLimited means the platform kept answering 429 past the adapter's retry budget.
	KindRateLimited
	// KindPermissionDenied means the platform refused the query outright. Never retried.
	KindPermissionDenied
	// KindParseError means a page or field could not be extracted.
	KindParseError
	// KindConversion means a donation amount could not be normalized to BaseCurrency.
	KindConversion
)

// String returns a short name for the kind, used in logs.
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindNotSupported:
		return "not_supported"
	case KindRateLimited:
		return "rate_limited"
	case KindPermissionDenied:
		return "permission_denied"
	case KindParseError:
		return "parse_error"
	case KindConversion:
		return "conversion"
	default:
		return "unknown"
	}
}

// Sentinels matched via errors.Is against a *FetchError of the same kind.
var (
	ErrTransient        = &FetchError{Kind: KindTransient}
	ErrNotSupported     = &FetchError{Kind: KindNotSupported}
	ErrRateLimited      = &FetchError{Kind: KindRateLimited}
	ErrPermissionDenied = &FetchError{Kind: KindPermissionDenied}
	ErrParse            = &FetchError{Kind: KindParseError}
	ErrConversion       = &FetchError{Kind: KindConversion}
)

// FetchError is returned by campaign sources and the currency converter.
type FetchError struct {
	Kind     ErrorKind
	Platform Platform
	URL      string
	Err      error
}

// NewFetchError builds a FetchError, wrapping err.
func NewFetchError(kind ErrorKind, platform Platform, url string, err error) *FetchError {
	return &FetchError{Kind: kind, Platform: platform, URL: url, Err: err}
}

func (e *FetchError) Error() string {
	msg := e.Kind.String()
	if e.Platform != PlatformUnknown {
		msg = string(e.Platform) + ": " + msg
	}
	if e.URL != "" {
		msg += " " + e.URL
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is matches any *FetchError with the same Kind, so the package sentinels work
// with errors.Is regardless of platform or URL.
func (e *FetchError) Is(target error) bool {
	t, ok := target.(*FetchError)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *FetchError in err's chain, or
// KindTransient when err carries no classification.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransient
}
