package dash

import (
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MPD is the root element of a Media Presentation Description.
type MPD struct {
	XMLName                   xml.Name `xml:"MPD"`
	Type                      string   `xml:"type,attr"`
	Profiles                  string   `xml:"profiles,attr"`
	MediaPresentationDuration string   `xml:"mediaPresentationDuration,attr"`
	MinBufferTime             string   `xml:"minBufferTime,attr"`
	BaseURL                   string   `xml:"BaseURL"`
	Periods                   []Period `xml:"Period"`
}

// GetPresentationDuration returns the mediaPresentationDuration as a time.Duration.
func (m *MPD) GetPresentationDuration() (time.Duration, error) {
	if m.MediaPresentationDuration == "" {
		return 0, nil
	}
	return parseDuration(m.MediaPresentationDuration)
}

// AdaptationSets returns the adaptation sets of the first Period. Only static
// manifests are supported, so later periods are not consulted.
func (m *MPD) AdaptationSets() []AdaptationSet {
	if len(m.Periods) == 0 {
		return nil
	}
	return m.Periods[0].Sets
}

var durationComponent = regexp.MustCompile(`(\d+\.?\d*)(\w)`)

// parseDuration parses an ISO 8601 duration string like "PT8S".
func parseDuration(duration string) (time.Duration, error) {
	if !strings.HasPrefix(duration, "PT") {
		// Fallback for simple duration strings like "5s"
		return time.ParseDuration(duration)
	}

	duration = strings.TrimPrefix(duration, "PT")
	if duration == "" {
		return 0, nil
	}

	matches := durationComponent.FindAllStringSubmatch(duration, -1)
	if len(matches) == 0 {
		return 0, errors.New("invalid ISO 8601 duration format")
	}

	var total time.Duration
	for _, match := range matches {
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			return 0, err
		}

		switch match[2] {
		case "H":
			total += time.Duration(value * float64(time.Hour))
		case "M":
			total += time.Duration(value * float64(time.Minute))
		case "S":
			total += time.Duration(value * float64(time.Second))
		default:
			return 0, errors.New("unsupported duration unit: " + match[2])
		}
	}

	return total, nil
}

// Period represents a media content period.
type Period struct {
	ID       string          `xml:"id,attr"`
	Duration string          `xml:"duration,attr"`
	BaseURL  string          `xml:"BaseURL"`
	Sets     []AdaptationSet `xml:"AdaptationSet"`
}

// AdaptationSet represents a set of interchangeable representations.
type AdaptationSet struct {
	ID              string           `xml:"id,attr"`
	ContentType     string           `xml:"contentType,attr"`
	Lang            string           `xml:"lang,attr,omitempty"`
	MimeType        string           `xml:"mimeType,attr"`
	Codecs          string           `xml:"codecs,attr"`
	Representations []Representation `xml:"Representation"`
}

// Representation represents a specific media stream. Bandwidth is kept as
// text so that a missing or malformed value ranks as zero instead of failing
// the whole document.
type Representation struct {
	ID          string      `xml:"id,attr"`
	Bandwidth   string      `xml:"bandwidth,attr"`
	Codecs      string      `xml:"codecs,attr"`
	MimeType    string      `xml:"mimeType,attr"`
	Width       int         `xml:"width,attr,omitempty"`
	Height      int         `xml:"height,attr,omitempty"`
	BaseURL     string      `xml:"BaseURL"`
	SegmentBase SegmentBase `xml:"SegmentBase"`

	// ContentLength is the vendor total-length attribute. When positive the
	// whole post-initialization body is one contiguous range.
	ContentLength string `xml:"FBContentLength,attr"`
}

// BandwidthValue returns the parsed bandwidth, or 0 when absent or malformed.
func (r *Representation) BandwidthValue() int64 {
	bw, err := strconv.ParseInt(strings.TrimSpace(r.Bandwidth), 10, 64)
	if err != nil || bw < 0 {
		return 0
	}
	return bw
}

// TotalLength returns the declared total resource length, or 0 when unknown.
func (r *Representation) TotalLength() int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(r.ContentLength), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// SegmentBase describes a single-resource representation addressed by byte ranges.
type SegmentBase struct {
	IndexRange     string          `xml:"indexRange,attr"`
	Initialization *Initialization `xml:"Initialization"`

	// Vendor segment-range attributes, in manifest order.
	FirstSegmentRange    string `xml:"FBFirstSegmentRange,attr"`
	SecondSegmentRange   string `xml:"FBSecondSegmentRange,attr"`
	PrefetchSegmentRange string `xml:"FBPrefetchSegmentRange,attr"`
}

// SegmentRanges returns the declared segment range strings in manifest order,
// omitting absent slots and exact duplicates.
func (sb *SegmentBase) SegmentRanges() []string {
	var ranges []string
	seen := make(map[string]struct{}, 3)
	for _, r := range []string{sb.FirstSegmentRange, sb.SecondSegmentRange, sb.PrefetchSegmentRange} {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		ranges = append(ranges, r)
	}
	return ranges
}

// Initialization locates the initialization segment.
type Initialization struct {
	Range string `xml:"range,attr"`
}

// ParseMPD parses manifest text. It fails with *ManifestParseError when the
// document is not well-formed or has no Period carrying an AdaptationSet.
func ParseMPD(text string) (*MPD, error) {
	var mpd MPD
	if err := xml.Unmarshal([]byte(text), &mpd); err != nil {
		return nil, &ManifestParseError{Reason: "document is not well-formed", Err: err}
	}
	if len(mpd.Periods) == 0 {
		return nil, &ManifestParseError{Reason: "no Period element"}
	}
	if len(mpd.Periods[0].Sets) == 0 {
		return nil, &ManifestParseError{Reason: fmt.Sprintf("period %q has no AdaptationSet", mpd.Periods[0].ID)}
	}
	return &mpd, nil
}
