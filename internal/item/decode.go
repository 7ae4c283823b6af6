package item

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the document encoding of a post stream.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatForPath picks the format from a file extension. Anything that is not
// .yaml or .yml is read as JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// DecodeError reports a document that does not fit the media tree schema.
type DecodeError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "invalid post document"
	if e.Path != "" {
		msg += " at " + e.Path
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

type rawPost struct {
	Name      string    `json:"name" yaml:"name"`
	Owner     string    `json:"owner,omitempty" yaml:"owner,omitempty"`
	SourceURL string    `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	Items     []rawItem `json:"items" yaml:"items"`
}

type rawItem struct {
	IsVideo  bool             `json:"is_video,omitempty" yaml:"is_video,omitempty"`
	Manifest string           `json:"manifest,omitempty" yaml:"manifest,omitempty"`
	Images   []ImageCandidate `json:"images,omitempty" yaml:"images,omitempty"`
	Children []rawItem        `json:"children,omitempty" yaml:"children,omitempty"`
}

// DecodePosts reads every post document in r. JSON streams may hold several
// concatenated objects and YAML streams several documents.
func DecodePosts(r io.Reader, format Format) ([]*Post, error) {
	var posts []*Post
	next := newDocumentReader(r, format)
	for i := 0; ; i++ {
		var raw rawPost
		err := next(&raw)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &DecodeError{Path: fmt.Sprintf("document[%d]", i), Reason: "malformed document", Err: err}
		}
		post, err := raw.toPost()
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// DecodePost reads exactly one post document.
func DecodePost(r io.Reader, format Format) (*Post, error) {
	posts, err := DecodePosts(r, format)
	if err != nil {
		return nil, err
	}
	if len(posts) != 1 {
		return nil, &DecodeError{Reason: fmt.Sprintf("expected one post document, got %d", len(posts))}
	}
	return posts[0], nil
}

// LoadPosts reads the post documents stored in path.
func LoadPosts(path string) ([]*Post, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read items file %s: %w", path, err)
	}
	return DecodePosts(bytes.NewReader(data), FormatForPath(path))
}

// EncodeJSON renders a post back into its JSON document form.
func EncodeJSON(p *Post) ([]byte, error) {
	raw := rawPost{Name: p.Name, Owner: p.Owner, SourceURL: p.SourceURL, Items: make([]rawItem, 0, len(p.Items))}
	for _, it := range p.Items {
		raw.Items = append(raw.Items, fromItem(it))
	}
	return json.MarshalIndent(raw, "", "  ")
}

func newDocumentReader(r io.Reader, format Format) func(v any) error {
	if format == FormatYAML {
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		return dec.Decode
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode
}

func (raw *rawPost) toPost() (*Post, error) {
	if strings.TrimSpace(raw.Name) == "" {
		return nil, &DecodeError{Path: "name", Reason: "post name is required"}
	}
	if strings.ContainsAny(raw.Name, `/\`) || raw.Name == "." || raw.Name == ".." {
		return nil, &DecodeError{Path: "name", Reason: fmt.Sprintf("post name %q is not a file name", raw.Name)}
	}
	post := &Post{
		Name:      raw.Name,
		Owner:     raw.Owner,
		SourceURL: raw.SourceURL,
		Items:     make([]MediaItem, 0, len(raw.Items)),
	}
	for i := range raw.Items {
		it, err := raw.Items[i].toItem(fmt.Sprintf("items[%d]", i))
		if err != nil {
			return nil, err
		}
		post.Items = append(post.Items, it)
	}
	return post, nil
}

func (raw *rawItem) toItem(path string) (MediaItem, error) {
	if raw.Children != nil {
		if raw.IsVideo || raw.Manifest != "" || len(raw.Images) > 0 {
			return nil, &DecodeError{Path: path, Reason: "container item must not carry media fields"}
		}
		c := &Container{Children: make([]MediaItem, 0, len(raw.Children))}
		for i := range raw.Children {
			child, err := raw.Children[i].toItem(fmt.Sprintf("%s.children[%d]", path, i))
			if err != nil {
				return nil, err
			}
			c.Children = append(c.Children, child)
		}
		return c, nil
	}

	for i, img := range raw.Images {
		if strings.TrimSpace(img.URL) == "" {
			return nil, &DecodeError{Path: fmt.Sprintf("%s.images[%d]", path, i), Reason: "image url is required"}
		}
		if img.Width < 0 {
			return nil, &DecodeError{Path: fmt.Sprintf("%s.images[%d]", path, i), Reason: "image width must not be negative"}
		}
	}
	return &Leaf{IsVideo: raw.IsVideo, Manifest: raw.Manifest, Images: raw.Images}, nil
}

func fromItem(it MediaItem) rawItem {
	switch v := it.(type) {
	case *Container:
		raw := rawItem{Children: make([]rawItem, 0, len(v.Children))}
		for _, child := range v.Children {
			raw.Children = append(raw.Children, fromItem(child))
		}
		return raw
	case *Leaf:
		return rawItem{IsVideo: v.IsVideo, Manifest: v.Manifest, Images: v.Images}
	default:
		return rawItem{}
	}
}
