package dash

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger is a no-op logger for testing purposes.
type mockLogger struct{}

func (m *mockLogger) Debugf(format string, v ...interface{}) {}
func (m *mockLogger) Infof(format string, v ...interface{})  {}
func (m *mockLogger) Warnf(format string, v ...interface{})  {}
func (m *mockLogger) Errorf(format string, v ...interface{}) {}

var rangeHeader = regexp.MustCompile(`^bytes=(\d+)-(\d+)$`)

// rangeServer serves byte ranges of payload and records every Range header.
type rangeServer struct {
	*httptest.Server
	mu     sync.Mutex
	ranges []string
}

func newRangeServer(t *testing.T, payload []byte) *rangeServer {
	rs := &rangeServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Range")
		rs.mu.Lock()
		rs.ranges = append(rs.ranges, h)
		rs.mu.Unlock()

		if h == "" {
			w.Write(payload)
			return
		}
		m := rangeHeader.FindStringSubmatch(h)
		if m == nil {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[2])
		if end >= len(payload) {
			end = len(payload) - 1
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(payload)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload[start : end+1])
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *rangeServer) seen() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.ranges...)
}

func payloadOf(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestDownloadRepresentation_TotalLength(t *testing.T) {
	payload := payloadOf(4000)
	srv := newRangeServer(t, payload)

	client := NewClient(&mockLogger{}, "test-agent", 5*time.Second)
	downloader := NewSegmentDownloader(client, &mockLogger{}, 1)

	rep := &Representation{
		ID:            "v",
		ContentLength: "4000",
		SegmentBase:   SegmentBase{Initialization: &Initialization{Range: "0-500"}},
	}
	chunks, err := downloader.DownloadRepresentation(context.Background(), srv.URL, rep)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, int64(0), chunks[0].Start)
	assert.Equal(t, int64(500), chunks[0].End)
	assert.Equal(t, payload[:501], chunks[0].Data)
	assert.Equal(t, int64(501), chunks[1].Start)
	assert.Equal(t, int64(3999), chunks[1].End)
	assert.Equal(t, payload[501:], chunks[1].Data)
	assert.Equal(t, []string{"bytes=0-500", "bytes=501-3999"}, srv.seen())
}

func TestDownloadRepresentation_SegmentRangesDeduplicated(t *testing.T) {
	payload := payloadOf(3000)
	srv := newRangeServer(t, payload)

	client := NewClient(&mockLogger{}, "", 5*time.Second)
	downloader := NewSegmentDownloader(client, &mockLogger{}, 3)

	rep := &Representation{
		ID: "a",
		SegmentBase: SegmentBase{
			Initialization:       &Initialization{Range: "0-99"},
			FirstSegmentRange:    "100-1999",
			SecondSegmentRange:   "2000-2999",
			PrefetchSegmentRange: "100-1999",
		},
	}
	chunks, err := downloader.DownloadRepresentation(context.Background(), srv.URL, rep)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int64{0, 100, 2000}, []int64{chunks[0].Start, chunks[1].Start, chunks[2].Start}, "chunks keep plan order")
	assert.ElementsMatch(t, []string{"bytes=0-99", "bytes=100-1999", "bytes=2000-2999"}, srv.seen())
}

func TestDownloadRepresentation_StatusFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(&mockLogger{}, "", 5*time.Second)
	downloader := NewSegmentDownloader(client, &mockLogger{}, 2)

	rep := &Representation{ID: "v", SegmentBase: SegmentBase{Initialization: &Initialization{Range: "0-10"}}}
	_, err := downloader.DownloadRepresentation(context.Background(), server.URL, rep)

	var fetchErr *RangeFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusForbidden, fetchErr.Status)
	assert.Equal(t, server.URL, fetchErr.URL)
}

func TestDownloadRepresentation_ShortChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "short")
	}))
	defer server.Close()

	client := NewClient(&mockLogger{}, "", 5*time.Second)
	downloader := NewSegmentDownloader(client, &mockLogger{}, 1)

	rep := &Representation{ID: "v", SegmentBase: SegmentBase{Initialization: &Initialization{Range: "0-500"}}}
	_, err := downloader.DownloadRepresentation(context.Background(), server.URL, rep)

	var lenErr *ChunkLengthError
	require.True(t, errors.As(err, &lenErr))
	assert.Equal(t, int64(501), lenErr.Want)
	assert.Equal(t, int64(5), lenErr.Got)
}

func TestClient_FetchFullSendsNoRange(t *testing.T) {
	payload := payloadOf(64)
	srv := newRangeServer(t, payload)

	client := NewClient(&mockLogger{}, "agent/1.0", 5*time.Second)
	data, err := client.FetchFull(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, []string{""}, srv.seen())
}

func TestResolveRepresentationURL(t *testing.T) {
	mpd := &MPD{BaseURL: "https://cdn.example.com/media/"}
	period := &Period{BaseURL: "p0/"}

	got, err := ResolveRepresentationURL(mpd, period, &Representation{ID: "v", BaseURL: "video.mp4"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/media/p0/video.mp4", got)

	got, err = ResolveRepresentationURL(&MPD{}, &Period{}, &Representation{ID: "v", BaseURL: " https://other.example.com/x.mp4?a=1 "})
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com/x.mp4?a=1", got)

	_, err = ResolveRepresentationURL(&MPD{}, &Period{}, &Representation{ID: "v", BaseURL: "relative.mp4"})
	assert.Error(t, err)

	_, err = ResolveRepresentationURL(&MPD{}, &Period{}, &Representation{ID: "v"})
	assert.Error(t, err)
}

func TestClient_TimeoutBoundsHeadersNotBody(t *testing.T) {
	slowBody := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		fmt.Fprint(w, "abcd")
		w.(http.Flusher).Flush()
		time.Sleep(300 * time.Millisecond)
		fmt.Fprint(w, "efgh")
	}))
	defer slowBody.Close()

	client := NewClient(&mockLogger{}, "", 100*time.Millisecond)
	data, err := client.FetchRange(context.Background(), slowBody.URL, ByteRange{Start: 0, End: 7})
	require.NoError(t, err, "a body that keeps arriving after the headers is not cut off")
	assert.Equal(t, "abcdefgh", string(data))

	slowHeaders := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer slowHeaders.Close()

	_, err = client.FetchRange(context.Background(), slowHeaders.URL, ByteRange{Start: 0, End: 7})
	assert.Error(t, err)
}
