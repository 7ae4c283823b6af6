package dash

import (
	"regexp"
	"strconv"
)

// ByteRange is a closed interval [Start, End] of byte offsets.
type ByteRange struct {
	Start int64
	End   int64
}

var byteRangePattern = regexp.MustCompile(`^(\d+)-(\d+)$`)

// ParseByteRange parses the "start-end" textual form.
func ParseByteRange(s string) (ByteRange, error) {
	m := byteRangePattern.FindStringSubmatch(s)
	if m == nil {
		return ByteRange{}, &ByteRangeError{Input: s}
	}
	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return ByteRange{}, &ByteRangeError{Input: s}
	}
	end, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil || start > end {
		return ByteRange{}, &ByteRangeError{Input: s}
	}
	return ByteRange{Start: start, End: end}, nil
}

// Len returns the number of bytes covered by the range.
func (r ByteRange) Len() int64 {
	return r.End - r.Start + 1
}

// String returns the "start-end" form.
func (r ByteRange) String() string {
	return strconv.FormatInt(r.Start, 10) + "-" + strconv.FormatInt(r.End, 10)
}

// Header returns the HTTP Range header value for the range.
func (r ByteRange) Header() string {
	return "bytes=" + r.String()
}
