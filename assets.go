package s1st2md

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

// DownloadSink materializes one enqueued asset. Implementations own per-item
// timeout and cancellation; the registry only observes success or failure.
type DownloadSink interface {
	EnqueueDownload(ctx context.Context, url, destPath string) error
}

// AssetRegistry deduplicates image URLs and assigns each one a stable
// relative storage path of the form {tid}/{page}/{filename}. One URL maps to
// exactly one path for the lifetime of the registry; a reserved path is never
// reused by a different URL.
type AssetRegistry struct {
	tid             string
	linkFormat      LinkFormat
	downloadEnabled bool

	queue    []DownloadRequest
	paths    map[string]string
	reserved map[string]struct{}
	failures []DownloadFailure

	pacing time.Duration
}

// NewAssetRegistry creates a registry for one export run.
func NewAssetRegistry(tid string, linkFormat LinkFormat, downloadEnabled bool) *AssetRegistry {
	if tid == "" {
		tid = "unknown_tid"
	}
	return &AssetRegistry{
		tid:             tid,
		linkFormat:      linkFormat,
		downloadEnabled: downloadEnabled,
		paths:           make(map[string]string),
		reserved:        make(map[string]struct{}),
		pacing:          50 * time.Millisecond,
	}
}

// Enqueue records an image reference and returns the Markdown to embed for
// it. Idempotent per URL: repeated calls return a reference to the same
// assigned path.
func (r *AssetRegistry) Enqueue(imageURL, altText string, page int) string {
	if altText == "" {
		altText = "image"
	}
	if !strings.HasPrefix(imageURL, "http") {
		// Not an absolute fetchable reference; keep it verbatim.
		return fmt.Sprintf("![%s](%s)", altText, imageURL)
	}
	if !r.downloadEnabled {
		escaped := strings.ReplaceAll(altText, "]", "\\]")
		return fmt.Sprintf("![%s](%s)", escaped, imageURL)
	}

	if savePath, ok := r.paths[imageURL]; ok {
		return r.reference(savePath, altText)
	}

	filename := filenameFromURL(imageURL, altText)
	savePath := r.reservePath(filename, page)
	r.paths[imageURL] = savePath
	r.queue = append(r.queue, DownloadRequest{URL: imageURL, Path: savePath})
	slog.Debug("入队图片", "url", imageURL, "alt", altText, "path", savePath)
	return r.reference(savePath, altText)
}

// QueueSize returns the number of pending downloads.
func (r *AssetRegistry) QueueSize() int { return len(r.queue) }

// Failures returns the per-item failures collected by the last Drain.
func (r *AssetRegistry) Failures() []DownloadFailure { return r.failures }

// Drain asks the sink to materialize every queued asset, in insertion order.
// A failed item is recorded and never blocks the rest of the queue. A small
// pacing delay keeps the sink from being flooded.
func (r *AssetRegistry) Drain(ctx context.Context, sink DownloadSink, status StatusFunc) error {
	total := len(r.queue)
	r.failures = nil
	if total == 0 {
		return nil
	}
	slog.Info("开始下载图片", "count", total)

	lim := rate.NewLimiter(rate.Every(r.pacing), 1)
	for i, req := range r.queue {
		if status != nil {
			status("download", i+1, total)
		}
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		if err := sink.EnqueueDownload(ctx, req.URL, req.Path); err != nil {
			slog.Error("图片下载失败", "url", req.URL, "path", req.Path, "error", err)
			r.failures = append(r.failures, DownloadFailure{URL: req.URL, Path: req.Path, Error: err.Error()})
		}
	}
	slog.Info("图片队列处理完毕", "failed", len(r.failures))
	return nil
}

func (r *AssetRegistry) reference(savePath, altText string) string {
	if r.linkFormat == LinkFormatStandard {
		return fmt.Sprintf("![%s](%s)", altText, escapeRefPath(savePath))
	}
	return fmt.Sprintf("![[%s]]", savePath)
}

// reservePath assigns a unique path under {tid}/{page}/, disambiguating
// colliding filenames with an incrementing numeric suffix.
func (r *AssetRegistry) reservePath(filename string, page int) string {
	base, ext := splitFilename(filename)
	base = sanitizeFilename(base)

	pageDir := "unknown_page"
	if page > 0 {
		pageDir = fmt.Sprintf("%d", page)
	}
	prefix := fmt.Sprintf("%s/%s/", r.tid, pageDir)
	candidate := base + ext
	counter := 1
	for {
		if _, taken := r.reserved[prefix+candidate]; !taken {
			break
		}
		candidate = fmt.Sprintf("%s-%d%s", base, counter, ext)
		counter++
	}
	full := prefix + candidate
	r.reserved[full] = struct{}{}
	return full
}

// filenameFromURL derives a filename from the URL's last path segment,
// falling back to the alt text when the segment is empty or the URL cannot
// be parsed.
func filenameFromURL(imageURL, altText string) string {
	u, err := url.Parse(imageURL)
	if err != nil {
		return altText
	}
	segment := path.Base(u.Path)
	if segment == "." || segment == "/" {
		return altText
	}
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		decoded = segment
	}
	decoded = strings.TrimSpace(strings.SplitN(decoded, "?", 2)[0])
	if decoded == "" {
		return altText
	}
	return decoded
}

// splitFilename separates the extension, defaulting to a generic image
// extension when the name carries none.
func splitFilename(name string) (base, ext string) {
	dot := strings.LastIndex(name, ".")
	if dot <= 0 {
		return name, ".png"
	}
	return name[:dot], name[dot:]
}

var forbiddenFilenameChars = []string{"\\", "/", ":", "*", "?", "\"", "<", ">", "|"}

func sanitizeFilename(name string) string {
	return lo.Reduce(forbiddenFilenameChars, func(acc, ch string, _ int) string {
		return strings.ReplaceAll(acc, ch, "_")
	}, name)
}

// escapeRefPath percent-encodes a relative path for use inside a standard
// Markdown image reference.
func escapeRefPath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
