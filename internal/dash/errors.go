package dash

import (
	"errors"
	"fmt"
)

var (
	// ErrNoVideoCandidate is returned when no adaptation set classifies as video.
	ErrNoVideoCandidate = errors.New("no video adaptation set")
	// ErrNoAudioCandidate is returned when no adaptation set classifies as audio.
	ErrNoAudioCandidate = errors.New("no audio adaptation set")
)

// ManifestParseError reports a manifest that could not be turned into the
// Period/AdaptationSet/Representation model.
type ManifestParseError struct {
	Reason string
	Err    error
}

func (e *ManifestParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("manifest parse error: %s: %v", e.Reason, e.Err)
	}
	return "manifest parse error: " + e.Reason
}

func (e *ManifestParseError) Unwrap() error { return e.Err }

// RangeFetchError reports a non-success response to a range request.
type RangeFetchError struct {
	URL    string
	Status int
}

func (e *RangeFetchError) Error() string {
	return fmt.Sprintf("range fetch failed: received status %d from %s", e.Status, e.URL)
}

// ByteRangeError reports a malformed "start-end" range string.
type ByteRangeError struct {
	Input string
}

func (e *ByteRangeError) Error() string {
	return fmt.Sprintf("malformed byte range %q", e.Input)
}

// ChunkLengthError reports a manifest-driven chunk whose payload does not
// match its declared range.
type ChunkLengthError struct {
	URL  string
	Want int64
	Got  int64
}

func (e *ChunkLengthError) Error() string {
	return fmt.Sprintf("chunk from %s has %d bytes, declared range needs %d", e.URL, e.Got, e.Want)
}
