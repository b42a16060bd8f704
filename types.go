package s1st2md

import (
	"github.com/PuerkitoBio/goquery"
)

// LinkFormat controls how image references are rendered in Markdown.
type LinkFormat string

const (
	// LinkFormatWiki renders wiki-style embeds: ![[path]]
	LinkFormatWiki LinkFormat = "wiki"
	// LinkFormatStandard renders standard Markdown images: ![alt](path)
	LinkFormatStandard LinkFormat = "standard"
)

// ParseLinkFormat normalizes a user supplied link format string.
func ParseLinkFormat(s string) LinkFormat {
	if s == string(LinkFormatStandard) {
		return LinkFormatStandard
	}
	return LinkFormatWiki
}

// Post 表示单个楼层
type Post struct {
	// ID is the site-assigned post id, unique within a thread.
	ID string
	// PhysicalPage is the remote page this post's markup was obtained from.
	// Assigned at load time, never mutated afterward.
	PhysicalPage int
	// FloorLabel is the raw display string, e.g. "123#" or "楼主".
	FloorLabel string
	// FloorNumber is parsed from FloorLabel; nil when unparseable.
	FloorNumber *int
	// Author and Timestamp are best-effort display strings.
	Author    string
	Timestamp string
	// Content is an owned, detached copy of the post's content subtree.
	// It is never shared with any other document.
	Content *goquery.Selection
	// Rating is the optional parsed rating sub-element.
	Rating *RatingBlock
}

// RatingBlock 评分记录
type RatingBlock struct {
	Participants string      `toml:"participants"`
	Points       string      `toml:"points"`
	Entries      []RateEntry `toml:"entries"`
}

// RateEntry 单条评分
type RateEntry struct {
	User   string `toml:"user"`
	Score  string `toml:"score"`
	Reason string `toml:"reason"`
}

// ThreadMeta holds per-thread display metadata extracted from the first
// loaded page.
type ThreadMeta struct {
	TID         string
	Title       string
	URL         string
	Section     string
	TotalPages  int
	CurrentPage int
}

// ExportOptions are the per-run user options. All fields except PostsPerPage
// are optional; nil pointers mean "unbounded"/"not requested".
type ExportOptions struct {
	StartFloor     *int       `toml:"start_floor"`
	EndFloor       *int       `toml:"end_floor"`
	PostsPerPage   int        `toml:"posts_per_page"`
	DownloadImages bool       `toml:"download_images"`
	LinkFormat     LinkFormat `toml:"link_format"`
	EmoteFormat    LinkFormat `toml:"emote_format"`
	PostsPerFile   *int       `toml:"posts_per_file"`
	StartFile      *int       `toml:"start_file"`
	EndFile        *int       `toml:"end_file"`
}

// DefaultExportOptions mirrors the site's fixed page size and the default
// rendering modes.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		PostsPerPage:   40,
		DownloadImages: true,
		LinkFormat:     LinkFormatWiki,
		EmoteFormat:    LinkFormatWiki,
	}
}

// RangeRequested reports whether any floor bound was asked for.
func (o ExportOptions) RangeRequested() bool {
	return o.StartFloor != nil || o.EndFloor != nil
}

// DownloadRequest is one enqueued asset: fetch url, write to destination.
type DownloadRequest struct {
	URL  string
	Path string
}

// DownloadFailure records one failed asset materialization.
type DownloadFailure struct {
	URL   string
	Path  string
	Error string
}

// StatusFunc receives progress updates: a stage name plus current/total
// counters (zero when not meaningful for the stage).
type StatusFunc func(stage string, current, total int)

// IntPtr is a small helper for building optional option fields.
func IntPtr(v int) *int { return &v }
