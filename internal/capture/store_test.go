package capture

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"mpdgrab/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger is a no-op logger for testing purposes.
type mockLogger struct{}

func (m *mockLogger) Debugf(format string, v ...interface{}) {}
func (m *mockLogger) Infof(format string, v ...interface{})  {}
func (m *mockLogger) Warnf(format string, v ...interface{})  {}
func (m *mockLogger) Errorf(format string, v ...interface{}) {}

func TestFragmentFromResponse(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		body      string
		wantKey   string
		wantStart int64
		wantEnd   int64
	}{
		{"query bounds", "https://cdn.example.com/v/t16/clip_n.mp4?bytestart=100&byteend=199&sig=x", "0123456789", "clip_n.mp4", 100, 199},
		{"missing extension", "https://cdn.example.com/v/stream?bytestart=5&byteend=9", "abcde", "stream.mp4", 5, 9},
		{"no bounds", "https://cdn.example.com/v/clip.mp4", "abcd", "clip.mp4", 0, 3},
		{"half bounds", "https://cdn.example.com/v/clip.mp4?bytestart=10", "abcd", "clip.mp4", 0, 3},
		{"empty path", "https://cdn.example.com/", "ab", "video.mp4", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, chunk, err := FragmentFromResponse(tt.url, []byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.wantStart, chunk.Start)
			assert.Equal(t, tt.wantEnd, chunk.End)
			assert.Equal(t, tt.body, string(chunk.Data))
		})
	}

	_, _, err := FragmentFromResponse("://bad", nil)
	assert.Error(t, err)
}

func TestFragmentStore_ObserveFiltersContentType(t *testing.T) {
	store := NewFragmentStore(&mockLogger{})

	stored, err := store.Observe("https://cdn.example.com/a.mp4", "image/jpeg", []byte("x"))
	require.NoError(t, err)
	assert.False(t, stored)

	stored, err = store.Observe("https://cdn.example.com/a.mp4?bytestart=0&byteend=0", "Video/MP4; codecs=avc1", []byte("x"))
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, 1, store.Len())
}

func TestFragmentStore_SealIsPhaseSeparated(t *testing.T) {
	store := NewFragmentStore(&mockLogger{})
	require.NoError(t, store.Append("a.mp4", models.Chunk{Start: 0, End: 0, Data: []byte("a")}))

	snapshot := store.Seal()
	require.Len(t, snapshot["a.mp4"], 1)

	err := store.Append("a.mp4", models.Chunk{Start: 1, End: 1, Data: []byte("b")})
	assert.True(t, errors.Is(err, ErrSealed))

	_, err = store.Observe("https://cdn.example.com/a.mp4", "video/mp4", []byte("c"))
	assert.True(t, errors.Is(err, ErrSealed))

	assert.Len(t, store.Seal()["a.mp4"], 1)
}

func TestFragmentStore_ConcurrentAppend(t *testing.T) {
	store := NewFragmentStore(&mockLogger{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "k" + strconv.Itoa(i%5) + ".mp4"
			assert.NoError(t, store.Append(key, models.Chunk{Start: int64(i), End: int64(i), Data: []byte{byte(i)}}))
		}(i)
	}
	wg.Wait()

	snapshot := store.Seal()
	assert.Len(t, snapshot, 5)
	total := 0
	for _, chunks := range snapshot {
		total += len(chunks)
	}
	assert.Equal(t, 50, total)
}
