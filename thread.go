package s1st2md

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
)

var (
	totalPagesPattern  = regexp.MustCompile(`/ (\d+) 页`)
	floorNumberPattern = regexp.MustCompile(`^(\d+)`)
	tidPathPattern     = regexp.MustCompile(`thread-(\d+)`)
	rateUserDotPattern = regexp.MustCompile(`^\d+\.`)
)

var (
	postMatcher        = cascadia.MustCompile(`#postlist > div[id^="post_"]`)
	floorMatcher       = cascadia.MustCompile(`.pi strong a[id^="postnum"]`)
	authorMatcher      = cascadia.MustCompile(`.pi .authi .xw1`)
	postTimeMatcher    = cascadia.MustCompile(`em[id^="authorposton"]`)
	postBodyMatcher    = cascadia.MustCompile(`td[id^="postmessage_"]`)
	rateTableMatcher   = cascadia.MustCompile(`dl[id^="ratelog_"] table.ratl`)
	rateRowMatcher     = cascadia.MustCompile(`tbody.ratl_l tr`)
	sectionMatcher     = cascadia.MustCompile(`#pt .z a[href^="forum-"]`)
	totalPagesMatcher  = cascadia.MustCompile(`#pgt .pg span[title^="共"]`)
	currentPageMatcher = cascadia.MustCompile(`#pgt .pg strong`)
)

// ResolveTID 从帖子URL中解析帖子ID
func ResolveTID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", NewValidationError(fmt.Sprintf("无法解析URL: %s", rawURL))
	}
	if m := tidPathPattern.FindStringSubmatch(u.Path); m != nil {
		return m[1], nil
	}
	if tid := u.Query().Get("tid"); tid != "" {
		return tid, nil
	}
	return "", NewValidationError(fmt.Sprintf("URL中未找到帖子ID: %s", rawURL))
}

// ParseThreadMeta 从帖子页面提取元数据。缺失的字段使用占位默认值。
func ParseThreadMeta(doc *goquery.Document, tid, fallbackURL string) *ThreadMeta {
	meta := &ThreadMeta{
		TID:         tid,
		Title:       "未知标题",
		URL:         fallbackURL,
		Section:     "未知版块",
		TotalPages:  1,
		CurrentPage: 1,
	}

	root := doc.Get(0)
	if n := htmlquery.FindOne(root, `//*[@id="thread_subject"]`); n != nil {
		if title := strings.TrimSpace(htmlquery.InnerText(n)); title != "" {
			meta.Title = title
		}
	}
	if n := htmlquery.FindOne(root, `//link[@rel="canonical"]`); n != nil {
		if href := htmlquery.SelectAttr(n, "href"); href != "" {
			meta.URL = href
		}
	}

	// 面包屑最后一个版块链接为所属版块
	if sec := doc.FindMatcher(sectionMatcher).Last(); sec.Length() > 0 {
		if section := strings.TrimSpace(sec.Text()); section != "" {
			meta.Section = section
		}
	}

	if span := doc.FindMatcher(totalPagesMatcher).First(); span.Length() > 0 {
		if m := totalPagesPattern.FindStringSubmatch(span.Text()); m != nil {
			if total, err := strconv.Atoi(m[1]); err == nil && total > 0 {
				meta.TotalPages = total
			}
		}
	}
	if cur := doc.FindMatcher(currentPageMatcher).First(); cur.Length() > 0 {
		if page, err := strconv.Atoi(strings.TrimSpace(cur.Text())); err == nil && page > 0 {
			meta.CurrentPage = page
		}
	}
	return meta
}

// PostSelections 返回页面中的全部帖子节点，保持文档顺序
func PostSelections(doc *goquery.Document) []*goquery.Selection {
	var posts []*goquery.Selection
	doc.FindMatcher(postMatcher).Each(func(_ int, sel *goquery.Selection) {
		posts = append(posts, sel)
	})
	return posts
}

// BuildPost 把一个帖子节点解析为结构化记录
func BuildPost(sel *goquery.Selection, page int) Post {
	id, _ := sel.Attr("id")
	pid := strings.TrimPrefix(id, "post_")

	label := "N/A"
	if el := sel.FindMatcher(floorMatcher).First(); el.Length() > 0 {
		if text := strings.TrimSpace(el.Text()); text != "" {
			label = text
		}
	}
	floorNum := parseFloorNumber(label)

	author := "未知作者"
	if el := sel.FindMatcher(authorMatcher).First(); el.Length() > 0 {
		if text := strings.TrimSpace(el.Text()); text != "" {
			author = text
		}
	}

	timestamp := "未知时间"
	if el := sel.FindMatcher(postTimeMatcher).First(); el.Length() > 0 {
		if text := strings.TrimSpace(strings.Replace(el.Text(), "发表于 ", "", 1)); text != "" {
			timestamp = text
		}
	}

	var content *goquery.Selection
	if el := sel.FindMatcher(postBodyMatcher).First(); el.Length() > 0 {
		content = el
	}

	return Post{
		ID:           pid,
		PhysicalPage: page,
		FloorLabel:   normalizeFloorLabel(label),
		FloorNumber:  floorNum,
		Author:       author,
		Timestamp:    timestamp,
		Content:      content,
		Rating:       parseRating(sel),
	}
}

// parseFloorNumber 解析楼层序号，楼主视为1楼
func parseFloorNumber(label string) *int {
	if strings.Contains(label, "楼主") {
		return IntPtr(1)
	}
	if m := floorNumberPattern.FindStringSubmatch(label); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return IntPtr(n)
		}
	}
	return nil
}

func normalizeFloorLabel(label string) string {
	if label == "楼主" {
		return "1# (楼主)"
	}
	if strings.Contains(label, "#") {
		return strings.Replace(label, " #", "#", 1)
	}
	return label
}

func parseRating(post *goquery.Selection) *RatingBlock {
	table := post.FindMatcher(rateTableMatcher).First()
	if table.Length() == 0 {
		return nil
	}

	block := &RatingBlock{Participants: "?", Points: "?"}
	header := table.Find("tbody tr").First()
	if header.Length() > 0 {
		if text := strings.TrimSpace(header.Find("th:nth-child(1) span").First().Text()); text != "" {
			block.Participants = text
		}
		if text := strings.TrimSpace(header.Find("th:nth-child(2) i span").First().Text()); text != "" {
			block.Points = text
		}
	}

	table.FindMatcher(rateRowMatcher).Each(func(_ int, row *goquery.Selection) {
		entry := RateEntry{User: "匿名", Score: "?"}
		if link := row.Find("td:nth-child(1) a").Last(); link.Length() > 0 {
			if user := strings.TrimSpace(link.Text()); user != "" {
				entry.User = user
			}
		}
		if score := strings.TrimSpace(row.Find("td:nth-child(2)").Text()); score != "" {
			entry.Score = score
		}
		entry.Reason = strings.TrimSpace(row.Find("td:nth-child(3)").Text())
		block.Entries = append(block.Entries, entry)
	})

	if len(block.Entries) == 0 {
		return nil
	}
	return block
}

// Markdown 把评分块渲染为引用列表
func (r *RatingBlock) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "> **评分** (参与人数 `%s`, 总战斗力 `%s`):\n", r.Participants, r.Points)
	for _, entry := range r.Entries {
		user := entry.User
		// 以 "数字." 开头的用户名会被当成有序列表，转义句点
		if rateUserDotPattern.MatchString(user) {
			user = strings.Replace(user, ".", "\\.", 1)
		}
		fmt.Fprintf(&b, "> - %s `%s` %s\n", user, entry.Score, entry.Reason)
	}
	b.WriteString(">\n")
	return b.String()
}
