package dash

import "strings"

// Kind classifies an adaptation set.
type Kind int

const (
	KindUnknown Kind = iota
	KindVideo
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

var (
	videoCodecFamilies = []string{"avc1", "avc3", "hvc1", "hev1", "vp09", "vp8", "av01"}
	audioCodecFamilies = []string{"mp4a", "opus", "ac-3", "ec-3", "vorbis", "flac"}
)

// Classify resolves the kind of an adaptation set: the explicit contentType
// attribute wins, then the first representation's mime type, then its codec
// string. Mime type and codecs inherit from the set when the representation
// leaves them empty.
func Classify(as *AdaptationSet) Kind {
	switch strings.ToLower(strings.TrimSpace(as.ContentType)) {
	case "video":
		return KindVideo
	case "audio":
		return KindAudio
	}

	if len(as.Representations) == 0 {
		return KindUnknown
	}
	first := &as.Representations[0]

	mime := first.MimeType
	if mime == "" {
		mime = as.MimeType
	}
	mime = strings.ToLower(mime)
	switch {
	case strings.Contains(mime, "video"):
		return KindVideo
	case strings.Contains(mime, "audio"):
		return KindAudio
	}

	codecs := first.Codecs
	if codecs == "" {
		codecs = as.Codecs
	}
	codecs = strings.ToLower(codecs)
	for _, family := range videoCodecFamilies {
		if strings.Contains(codecs, family) {
			return KindVideo
		}
	}
	for _, family := range audioCodecFamilies {
		if strings.Contains(codecs, family) {
			return KindAudio
		}
	}
	return KindUnknown
}

// Selection is the chosen video/audio representation pair.
type Selection struct {
	Video *Representation
	Audio *Representation
}

// Select picks the highest-bandwidth video and audio representation across all
// sets of the matching kind. Ties go to the first representation in document
// order. A missing or malformed bandwidth ranks as zero.
func Select(sets []AdaptationSet) (Selection, error) {
	var sel Selection
	var bestVideo, bestAudio int64 = -1, -1

	for i := range sets {
		kind := Classify(&sets[i])
		if kind == KindUnknown {
			continue
		}
		for j := range sets[i].Representations {
			rep := &sets[i].Representations[j]
			bw := rep.BandwidthValue()
			switch kind {
			case KindVideo:
				if bw > bestVideo {
					bestVideo, sel.Video = bw, rep
				}
			case KindAudio:
				if bw > bestAudio {
					bestAudio, sel.Audio = bw, rep
				}
			}
		}
	}

	if sel.Video == nil {
		return Selection{}, ErrNoVideoCandidate
	}
	if sel.Audio == nil {
		return Selection{}, ErrNoAudioCandidate
	}
	return sel, nil
}
