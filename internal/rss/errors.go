package rss

import "fmt"

// Kind classifies a failed feed fetch.
type Kind string

// Kind constants for FetchError.
const (
	KindNetwork Kind = "network"
	KindParse   Kind = "parse"
)

// FetchError is returned when a feed cannot be fetched or parsed.
// Status is set for non-2xx HTTP responses.
type FetchError struct {
	Kind   Kind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("%s error for %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// EntryError describes one feed entry that was skipped.
type EntryError struct {
	Index int
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %d: %v", e.Index, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}
