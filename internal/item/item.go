// Package item defines the media tree handed to the walker and decodes it from
// JSON or YAML post documents.
package item

import (
	"fmt"
	"strconv"
)

// MediaItem is a node of a post's media tree: either a *Container or a *Leaf.
type MediaItem interface {
	isMediaItem()
}

// Container bundles child items and carries no media of its own.
type Container struct {
	Children []MediaItem
}

// Leaf carries the media of a single item.
type Leaf struct {
	IsVideo  bool
	Manifest string
	Images   []ImageCandidate
}

func (*Container) isMediaItem() {}
func (*Leaf) isMediaItem()      {}

// ImageCandidate is one still-image rendition of a leaf.
type ImageCandidate struct {
	URL   string `json:"url" yaml:"url"`
	Width int    `json:"width" yaml:"width"`
}

// HasManifest reports whether the leaf can take the manifest path.
func (l *Leaf) HasManifest() bool {
	return l.IsVideo && l.Manifest != ""
}

// Post is the envelope around one captured post.
type Post struct {
	Name      string
	Owner     string
	SourceURL string
	Items     []MediaItem
}

// ItemName returns the output name of the post's i-th top-level item.
// The first item keeps the post name.
func (p *Post) ItemName(i int) string {
	if i == 0 {
		return p.Name
	}
	return p.Name + "_" + strconv.Itoa(i)
}

// ChildName returns the output name of the index-th (0-based) child of a
// container named base.
func ChildName(base string, index int) string {
	return fmt.Sprintf("%s_%d", base, index+1)
}

// BestImage returns the candidate with the largest width. The first maximal
// candidate wins ties. ok is false when there are no candidates.
func BestImage(images []ImageCandidate) (best ImageCandidate, ok bool) {
	for i, img := range images {
		if i == 0 || img.Width > best.Width {
			best = img
		}
	}
	return best, len(images) > 0
}
