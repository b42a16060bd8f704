package s1st2md

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// provenanceAttr carries the physical page a node was collected from. It is
// stored as a DOM attribute so that it survives serialization and cloning.
const provenanceAttr = "data-s1-page"

// Pre-compiled selectors used by the conversion rules.
var (
	quoteHeaderMatcher = cascadia.MustCompile("div.quote > font")
	quoteBlockMatcher  = cascadia.MustCompile("div.quote")
	decorationMatcher  = cascadia.MustCompile(".cronclosethread_getbox")
	postStatusMatcher  = cascadia.MustCompile("i.pstatus")
	contentLinkMatcher = cascadia.MustCompile("a[href]")
)

var smileyPathPattern = regexp.MustCompile(`/smiley/(.+)$`)

// DocumentConverter maps a post's content subtree into Markdown. Image rules
// feed the AssetRegistry; quote rules re-enter the converter on detached
// clones. One instance is reused for every post of an export run.
type DocumentConverter struct {
	conv        *converter.Converter
	assets      *AssetRegistry
	emoteFormat LinkFormat
	siteBase    *url.URL
}

// NewDocumentConverter builds a converter with the site-specific rules
// registered ahead of the stock CommonMark handling.
func NewDocumentConverter(assets *AssetRegistry, emoteFormat LinkFormat, siteOrigin string) (*DocumentConverter, error) {
	siteBase, err := url.Parse(strings.TrimRight(siteOrigin, "/") + "/2b/")
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("无效站点地址: %s", siteOrigin))
	}

	dc := &DocumentConverter{
		assets:      assets,
		emoteFormat: emoteFormat,
		siteBase:    siteBase,
	}

	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
		),
	)
	conv.Register.RendererFor("img", converter.TagTypeInline, dc.renderImage, converter.PriorityEarly)
	conv.Register.RendererFor("blockquote", converter.TagTypeBlock, dc.renderQuote, converter.PriorityEarly)
	dc.conv = conv
	return dc, nil
}

// ConvertPost converts one post's owned content subtree to Markdown. The
// subtree is mutated in place (decoration stripped, status marker rewritten,
// relative links rebased); it must never be a live page node.
func (dc *DocumentConverter) ConvertPost(content *goquery.Selection) (string, error) {
	if content == nil || len(content.Nodes) == 0 {
		return "[内容无法加载或已被删除]", nil
	}

	content.FindMatcher(decorationMatcher).Remove()

	content.FindMatcher(postStatusMatcher).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		s.ReplaceWithHtml("<blockquote>" + html.EscapeString(text) + "</blockquote>")
	})

	dc.rewriteRelativeLinks(content)

	out, err := dc.conv.ConvertNode(content.Nodes[0])
	if err != nil {
		return "", NewParseError("转换帖子内容失败", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// rewriteRelativeLinks rebases relative hrefs against the site base path.
// Malformed hrefs are left unchanged and logged.
func (dc *DocumentConverter) rewriteRelativeLinks(content *goquery.Selection) {
	content.FindMatcher(contentLinkMatcher).Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if href == "" || strings.HasPrefix(href, "http") || strings.HasPrefix(href, "//") ||
			strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			slog.Warn("无法转换相对链接", "href", href, "error", err)
			return
		}
		link.SetAttr("href", dc.siteBase.ResolveReference(ref).String())
	})
}

// renderImage dispatches the three image shapes in priority order:
// attachment image, emoticon, external image. Anything else falls through to
// the stock renderer.
func (dc *DocumentConverter) renderImage(_ converter.Context, w converter.Writer, n *html.Node) converter.RenderStatus {
	src := nodeAttr(n, "src")
	aid := nodeAttr(n, "aid")
	zoomfile := nodeAttr(n, "zoomfile")
	file := nodeAttr(n, "file")
	smilieID := nodeAttr(n, "smilieid")
	page := nodeProvenance(n)

	placeholder := strings.HasSuffix(src, "/none.gif")
	isAttachment := aid != "" || (placeholder && (zoomfile != "" || file != ""))

	switch {
	case isAttachment:
		w.WriteString(dc.renderAttachmentImage(n, src, aid, zoomfile, file, page, placeholder))
		return converter.RenderSuccess

	case smilieID != "" && strings.Contains(src, "/smiley/"):
		w.WriteString(dc.renderEmoticon(src, smilieID))
		return converter.RenderSuccess

	case strings.HasPrefix(src, "http"):
		alt := nodeAttr(n, "alt")
		if alt == "" {
			alt = "ext_image"
		}
		w.WriteString(dc.assets.Enqueue(src, alt, page))
		return converter.RenderSuccess
	}

	return converter.RenderTryNext
}

// renderAttachmentImage resolves the attachment's real URL by trying, in
// order: absolute zoom attribute, absolute file attribute, non-placeholder
// absolute src, then the relative attributes rebased on the site path.
func (dc *DocumentConverter) renderAttachmentImage(n *html.Node, src, aid, zoomfile, file string, page int, placeholder bool) string {
	if aid == "" {
		aid = "未知ID"
	}

	var imageURL string
	switch {
	case strings.HasPrefix(zoomfile, "http"):
		imageURL = zoomfile
	case strings.HasPrefix(file, "http"):
		imageURL = file
	case src != "" && !placeholder && strings.HasPrefix(src, "http"):
		imageURL = src
	case strings.HasPrefix(file, "data/attachment"):
		imageURL = dc.siteBase.String() + file
	case strings.HasPrefix(src, "data/attachment"):
		imageURL = dc.siteBase.String() + src
	}

	alt := nodeAttr(n, "alt")
	if alt == "" || strings.EqualFold(alt, "attachimg") {
		alt = "附件 " + aid
	}

	if imageURL == "" {
		slog.Warn("未能找到附件图片的有效URL", "aid", aid)
		return fmt.Sprintf("[附件图片 aid=%s 加载失败]", aid)
	}
	return dc.assets.Enqueue(imageURL, alt, page)
}

// renderEmoticon renders a smiley without enqueueing it for download.
func (dc *DocumentConverter) renderEmoticon(src, smilieID string) string {
	if dc.emoteFormat == LinkFormatStandard {
		name := smilieID
		if name == "" {
			name = "smiley"
		}
		return fmt.Sprintf("![%s](%s)", name, src)
	}

	path := "表情" + smilieID
	if m := smileyPathPattern.FindStringSubmatch(src); len(m) > 1 {
		path = m[1]
	}
	ref := "![[" + path
	if smilieID != "" {
		ref += "|smilieid=" + smilieID
	}
	return ref + "]]"
}

// renderQuote handles both quote shapes. The body is produced by re-entering
// the converter on a detached clone, so nested quotes recurse naturally.
func (dc *DocumentConverter) renderQuote(_ converter.Context, w converter.Writer, n *html.Node) converter.RenderStatus {
	clone, err := detachedClone(n)
	if err != nil {
		slog.Warn("克隆引用块失败", "error", err)
		return converter.RenderTryNext
	}

	header := clone.FindMatcher(quoteHeaderMatcher).First()
	if header.Length() > 0 {
		authorAndTime := strings.Join(strings.Fields(header.Text()), " ")
		if authorAndTime == "" {
			authorAndTime = "用户"
		}
		// 只摘掉本层的署名头，嵌套引用的署名由递归转换保留
		clone.FindMatcher(quoteBlockMatcher).First().Remove()
		body := dc.convertFragment(clone)
		w.WriteString("> **引用 " + authorAndTime + ":**\n>\n" + prefixQuoteLines(body) + "\n\n")
		return converter.RenderSuccess
	}

	body := strings.TrimSpace(dc.convertFragment(clone))
	if strings.HasPrefix(body, "本帖最后由") && !strings.Contains(body, "\n") {
		w.WriteString("> *" + body + "*\n\n")
		return converter.RenderSuccess
	}
	w.WriteString("\n> " + strings.ReplaceAll(body, "\n", "\n> ") + "\n\n")
	return converter.RenderSuccess
}

// convertFragment converts the children of a cloned element.
func (dc *DocumentConverter) convertFragment(clone *goquery.Selection) string {
	inner, err := clone.Html()
	if err != nil {
		return ""
	}
	out, err := dc.conv.ConvertString(inner)
	if err != nil {
		slog.Warn("转换引用内容失败", "error", err)
		return ""
	}
	return out
}

func prefixQuoteLines(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

// detachedClone serializes a node and re-parses it into a fresh document,
// returning the selection of the corresponding root element. Mutating the
// clone never touches the source tree.
func detachedClone(n *html.Node) (*goquery.Selection, error) {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sb.String()))
	if err != nil {
		return nil, err
	}
	sel := doc.Find(n.Data).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("cloned %s element not found", n.Data)
	}
	return sel, nil
}

func nodeAttr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func nodeProvenance(n *html.Node) int {
	v := nodeAttr(n, provenanceAttr)
	if v == "" {
		return 0
	}
	page, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return page
}
