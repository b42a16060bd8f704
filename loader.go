package s1st2md

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// LocalPage 是一份已持有的页面HTML，代替网络抓取作为起始页
type LocalPage struct {
	HTML string
	Page int
}

// ThreadLoader 按页收集帖子：起始页复用已有文档，其余页按需抓取，
// 每页先解锁再解析。
type ThreadLoader struct {
	fetcher  *PageFetcher
	unlocker *ContentUnlocker
}

// NewThreadLoader 创建新的帖子加载器
func NewThreadLoader(fetcher *PageFetcher, unlocker *ContentUnlocker) *ThreadLoader {
	return &ThreadLoader{fetcher: fetcher, unlocker: unlocker}
}

// LoadResult 一次加载的产出
type LoadResult struct {
	Meta  *ThreadMeta
	Posts []Post
	Pages PageRange
}

// Load 解析元数据，计算目标页范围并收集范围内的全部帖子。
// 单页抓取失败只跳过该页；会话层面的解锁失败会中止整个加载。
func (l *ThreadLoader) Load(ctx context.Context, tid string, opts ExportOptions, input *LocalPage, status StatusFunc) (*LoadResult, error) {
	initialDoc, initialPage, err := l.initialDocument(ctx, tid, input)
	if err != nil {
		return nil, err
	}
	if initialDoc.Find("#postlist").Length() == 0 {
		return nil, NewParseError("页面中没有帖子列表，可能不是帖子页面", nil)
	}

	meta := ParseThreadMeta(initialDoc, tid, l.fetcher.ThreadPageURL(tid, initialPage))
	if input != nil && input.Page > 0 {
		meta.CurrentPage = input.Page
	}

	floors := ResolveFloorRange(opts)
	pages := PagesForRange(floors, opts.PostsPerPage, meta.TotalPages)
	slog.Info("开始加载帖子",
		"tid", tid, "title", meta.Title,
		"total_pages", meta.TotalPages, "first_page", pages.First, "last_page", pages.Last)

	var posts []Post
	actual := PageRange{First: pages.First, Last: pages.First}
	for page := pages.First; page <= pages.Last; page++ {
		actual.Last = page
		if status != nil {
			status("加载页面", page, meta.TotalPages)
		}

		var pagePosts []Post
		if page == meta.CurrentPage {
			pagePosts, err = l.processCurrentPage(ctx, initialDoc, tid, page)
		} else {
			pagePosts, err = l.processRemotePage(ctx, tid, page)
		}
		if err != nil {
			if IsFatalUnlockError(err) {
				return nil, err
			}
			slog.Warn("跳过页面", "page", page, "error", err)
			continue
		}
		posts = append(posts, pagePosts...)
	}

	slog.Info("帖子加载完成", "posts", len(posts), "pages", actual.Last-actual.First+1)
	return &LoadResult{Meta: meta, Posts: posts, Pages: actual}, nil
}

func (l *ThreadLoader) initialDocument(ctx context.Context, tid string, input *LocalPage) (*goquery.Document, int, error) {
	if input != nil {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(input.HTML))
		if err != nil {
			return nil, 0, NewParseError("无法解析输入的页面HTML", err)
		}
		page := input.Page
		if page < 1 {
			page = 1
		}
		return doc, page, nil
	}

	html, err := l.fetcher.FetchThreadPage(ctx, tid, 1)
	if err != nil {
		return nil, 0, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, 0, NewParseError("无法解析首页HTML", err)
	}
	return doc, 1, nil
}

// processCurrentPage 在原文档上解锁后重新序列化#postlist再解析，
// 保证后续转换基于干净的文档树。
func (l *ThreadLoader) processCurrentPage(ctx context.Context, doc *goquery.Document, tid string, page int) ([]Post, error) {
	selections := PostSelections(doc)
	tagProvenance(selections, page)

	if err := l.unlocker.Unlock(ctx, tid, page, selections); err != nil {
		return nil, err
	}

	inner, err := doc.Find("#postlist").First().Html()
	if err != nil {
		return nil, NewParseError("无法序列化帖子列表", err)
	}
	reparsed, err := goquery.NewDocumentFromReader(
		strings.NewReader(`<body><div id="postlist">` + inner + `</div></body>`))
	if err != nil {
		return nil, NewParseError("无法重新解析帖子列表", err)
	}

	fresh := PostSelections(reparsed)
	tagProvenance(fresh, page)
	return buildPosts(fresh, page), nil
}

func (l *ThreadLoader) processRemotePage(ctx context.Context, tid string, page int) ([]Post, error) {
	html, err := l.fetcher.FetchThreadPage(ctx, tid, page)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, NewParseError("无法解析页面HTML", err)
	}

	selections := PostSelections(doc)
	if len(selections) == 0 {
		if doc.Find(`div[id^="post_"]`).Length() > 0 {
			slog.Warn("找到帖子但不在#postlist下", "page", page)
		} else {
			slog.Warn("页面中未找到任何帖子", "page", page)
		}
		return nil, nil
	}
	tagProvenance(selections, page)

	if err := l.unlocker.Unlock(ctx, tid, page, selections); err != nil {
		return nil, err
	}
	return buildPosts(selections, page), nil
}

// tagProvenance 把物理页码写进帖子与图片节点的属性，
// 序列化后依然可以追溯来源页。
func tagProvenance(selections []*goquery.Selection, page int) {
	value := strconv.Itoa(page)
	for _, sel := range selections {
		sel.SetAttr(provenanceAttr, value)
		sel.Find("img").Each(func(_ int, img *goquery.Selection) {
			img.SetAttr(provenanceAttr, value)
		})
	}
}

func buildPosts(selections []*goquery.Selection, page int) []Post {
	posts := make([]Post, 0, len(selections))
	for _, sel := range selections {
		posts = append(posts, BuildPost(sel, page))
	}
	return posts
}
