package capture

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"

	"mpdgrab/internal/logger"
	"mpdgrab/internal/metrics"
	"mpdgrab/internal/models"
)

// ErrSealed is returned when a fragment arrives after capture has ended.
var ErrSealed = errors.New("capture store is sealed")

// FragmentStore is an append-only, keyed collection of passively captured
// fragments owned by one capture session. Appends are safe for concurrent use
// until Seal is called; after that the store only hands out its snapshot.
type FragmentStore struct {
	mutex     sync.Mutex
	fragments map[string][]models.Chunk
	sealed    bool
	logger    logger.Logger
}

// NewFragmentStore creates an empty store.
func NewFragmentStore(log logger.Logger) *FragmentStore {
	return &FragmentStore{
		fragments: make(map[string][]models.Chunk),
		logger:    log,
	}
}

// Append adds a chunk under key.
func (fs *FragmentStore) Append(key string, chunk models.Chunk) error {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	if fs.sealed {
		return ErrSealed
	}
	fs.fragments[key] = append(fs.fragments[key], chunk)
	metrics.FragmentsObserved.Inc()
	fs.logger.Debugf("Captured fragment %s [%d-%d], %d bytes", key, chunk.Start, chunk.End, len(chunk.Data))
	return nil
}

// Observe classifies an observed HTTP response. Only video/mp4 bodies are kept;
// it reports whether the response was stored.
func (fs *FragmentStore) Observe(rawURL, contentType string, body []byte) (bool, error) {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "video/mp4") {
		return false, nil
	}
	key, chunk, err := FragmentFromResponse(rawURL, body)
	if err != nil {
		return false, err
	}
	if err := fs.Append(key, chunk); err != nil {
		return false, err
	}
	return true, nil
}

// Seal ends capture and returns the collected fragments. Later calls return the
// same snapshot.
func (fs *FragmentStore) Seal() map[string][]models.Chunk {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	if !fs.sealed {
		fs.sealed = true
		fs.logger.Infof("Capture sealed with %d resource key(s)", len(fs.fragments))
	}
	return fs.fragments
}

// Len returns the number of distinct resource keys captured so far.
func (fs *FragmentStore) Len() int {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	return len(fs.fragments)
}

// FragmentFromResponse derives the store key and chunk bounds of an observed
// progressive-download response. The key is the base name of the URL path
// (".mp4" appended when missing). Bounds come from the bytestart/byteend query
// parameters when both parse, otherwise the body is assumed to start at 0.
func FragmentFromResponse(rawURL string, body []byte) (string, models.Chunk, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", models.Chunk{}, fmt.Errorf("invalid fragment URL %q: %w", rawURL, err)
	}

	key := path.Base(u.Path)
	if key == "." || key == "/" || key == "" {
		key = "video.mp4"
	}
	if !strings.HasSuffix(strings.ToLower(key), ".mp4") {
		key += ".mp4"
	}

	chunk := models.Chunk{Start: 0, End: int64(len(body)) - 1, Data: body}
	q := u.Query()
	start, startErr := strconv.ParseInt(q.Get("bytestart"), 10, 64)
	end, endErr := strconv.ParseInt(q.Get("byteend"), 10, 64)
	if startErr == nil && endErr == nil {
		chunk.Start, chunk.End = start, end
	}
	return key, chunk, nil
}
