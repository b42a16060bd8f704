package s1st2md_test

import (
	"bytes"
	_ "embed"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	main "github.com/reimu-nue/s1st2md"
)

//go:embed thread-2246666.html
var threadPageHTML []byte

func loadThreadDoc(t *testing.T) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(threadPageHTML))
	if err != nil {
		t.Fatalf("解析测试页面失败: %v", err)
	}
	return doc
}

func TestResolveTID(t *testing.T) {
	tests := []struct {
		rawURL  string
		want    string
		wantErr bool
	}{
		{"https://bbs.saraba1st.com/2b/thread-2246666-1-1.html", "2246666", false},
		{"https://bbs.saraba1st.com/2b/forum.php?mod=viewthread&tid=123456", "123456", false},
		{"https://bbs.saraba1st.com/2b/forum-75-1.html", "", true},
	}
	for _, tt := range tests {
		got, err := main.ResolveTID(tt.rawURL)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ResolveTID(%q) 应当报错", tt.rawURL)
			}
			continue
		}
		if err != nil {
			t.Errorf("ResolveTID(%q): %v", tt.rawURL, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveTID(%q) = %q, want %q", tt.rawURL, got, tt.want)
		}
	}
}

func TestParseThreadMeta(t *testing.T) {
	doc := loadThreadDoc(t)

	meta := main.ParseThreadMeta(doc, "2246666", "http://fallback/")
	if meta.Title != "测试大楼：含/斜杠的标题" {
		t.Errorf("Title = %q", meta.Title)
	}
	if meta.URL != "https://bbs.saraba1st.com/2b/thread-2246666-1-1.html" {
		t.Errorf("URL = %q", meta.URL)
	}
	if meta.Section != "PC数码区" {
		t.Errorf("Section = %q", meta.Section)
	}
	if meta.TotalPages != 3 {
		t.Errorf("TotalPages = %d", meta.TotalPages)
	}
	if meta.CurrentPage != 1 {
		t.Errorf("CurrentPage = %d", meta.CurrentPage)
	}
}

func TestParseThreadMetaDefaults(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body></body></html>"))
	if err != nil {
		t.Fatal(err)
	}
	meta := main.ParseThreadMeta(doc, "1", "http://fallback/")
	if meta.Title != "未知标题" || meta.Section != "未知版块" {
		t.Errorf("占位默认值错误: %+v", meta)
	}
	if meta.TotalPages != 1 || meta.CurrentPage != 1 {
		t.Errorf("页数默认值错误: %+v", meta)
	}
	if meta.URL != "http://fallback/" {
		t.Errorf("URL = %q", meta.URL)
	}
}

func TestPostSelectionsAndBuildPost(t *testing.T) {
	doc := loadThreadDoc(t)

	selections := main.PostSelections(doc)
	if len(selections) != 3 {
		t.Fatalf("帖子数量 = %d, want 3", len(selections))
	}

	first := main.BuildPost(selections[0], 1)
	if first.ID != "100" {
		t.Errorf("ID = %q", first.ID)
	}
	if first.FloorLabel != "1# (楼主)" {
		t.Errorf("楼主标签 = %q", first.FloorLabel)
	}
	if first.FloorNumber == nil || *first.FloorNumber != 1 {
		t.Errorf("楼主楼层 = %v", first.FloorNumber)
	}
	if first.Author != "用户甲" {
		t.Errorf("Author = %q", first.Author)
	}
	if first.Timestamp != "2024-1-1 12:00" {
		t.Errorf("Timestamp = %q", first.Timestamp)
	}
	if first.Content == nil {
		t.Error("首楼应有内容节点")
	}

	second := main.BuildPost(selections[1], 1)
	if second.FloorLabel != "2#" {
		t.Errorf("二楼标签 = %q", second.FloorLabel)
	}
	if second.FloorNumber == nil || *second.FloorNumber != 2 {
		t.Errorf("二楼楼层 = %v", second.FloorNumber)
	}
	if second.Rating == nil {
		t.Fatal("二楼应有评分块")
	}
	if second.Rating.Participants != "2" || second.Rating.Points != "+4" {
		t.Errorf("评分汇总 = %q / %q", second.Rating.Participants, second.Rating.Points)
	}
	if len(second.Rating.Entries) != 2 {
		t.Fatalf("评分条目 = %d", len(second.Rating.Entries))
	}
	if second.Rating.Entries[0].User != "用户丙" || second.Rating.Entries[0].Score != "+2" || second.Rating.Entries[0].Reason != "好文" {
		t.Errorf("评分条目1 = %+v", second.Rating.Entries[0])
	}

	third := main.BuildPost(selections[2], 1)
	if third.Content != nil {
		t.Error("被屏蔽帖子不应有内容节点")
	}
	if third.FloorNumber == nil || *third.FloorNumber != 3 {
		t.Errorf("三楼楼层 = %v", third.FloorNumber)
	}
	if third.Rating != nil {
		t.Error("三楼不应有评分块")
	}
}

func TestRatingMarkdownEscapesLeadingNumber(t *testing.T) {
	block := &main.RatingBlock{
		Participants: "2",
		Points:       "+4",
		Entries: []main.RateEntry{
			{User: "用户丙", Score: "+2", Reason: "好文"},
			{User: "1.5次元住人", Score: "+2"},
		},
	}

	md := block.Markdown()
	if !strings.Contains(md, "> **评分** (参与人数 `2`, 总战斗力 `+4`):\n") {
		t.Errorf("评分头部错误:\n%s", md)
	}
	if !strings.Contains(md, "> - 用户丙 `+2` 好文\n") {
		t.Errorf("评分条目错误:\n%s", md)
	}
	if !strings.Contains(md, `1\.5次元住人`) {
		t.Errorf("以数字加句点开头的用户名应被转义:\n%s", md)
	}
}
