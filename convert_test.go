package s1st2md_test

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	main "github.com/reimu-nue/s1st2md"
)

// convertSnippet 把一段帖子内容HTML包进表格结构再转换，
// 模拟真实页面中 td.t_f 的位置。
func convertSnippet(t *testing.T, reg *main.AssetRegistry, emoteFormat main.LinkFormat, inner string) string {
	t.Helper()
	page := `<html><body><table><tbody><tr><td class="t_f" id="postmessage_1">` + inner + `</td></tr></tbody></table></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("解析HTML失败: %v", err)
	}
	sel := doc.Find(`td[id^="postmessage_"]`).First()
	if sel.Length() == 0 {
		t.Fatal("未找到内容节点")
	}

	conv, err := main.NewDocumentConverter(reg, emoteFormat, "https://bbs.saraba1st.com")
	if err != nil {
		t.Fatalf("创建转换器失败: %v", err)
	}
	out, err := conv.ConvertPost(sel)
	if err != nil {
		t.Fatalf("转换失败: %v", err)
	}
	return out
}

func TestConvertNilContent(t *testing.T) {
	reg := main.NewAssetRegistry("555", main.LinkFormatWiki, true)
	conv, err := main.NewDocumentConverter(reg, main.LinkFormatWiki, "https://bbs.saraba1st.com")
	if err != nil {
		t.Fatal(err)
	}
	out, err := conv.ConvertPost(nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "[内容无法加载或已被删除]" {
		t.Errorf("空内容占位符 = %q", out)
	}
}

func TestConvertExternalImage(t *testing.T) {
	reg := main.NewAssetRegistry("555", main.LinkFormatWiki, true)
	out := convertSnippet(t, reg, main.LinkFormatWiki,
		`前文<img src="https://img.example.com/photo.jpg" alt="图片" data-s1-page="2">后文`)

	if !strings.Contains(out, "![[555/2/photo.jpg]]") {
		t.Errorf("外链图片应改写为本地引用:\n%s", out)
	}
	if reg.QueueSize() != 1 {
		t.Errorf("QueueSize = %d", reg.QueueSize())
	}
}

func TestConvertAttachmentImage(t *testing.T) {
	reg := main.NewAssetRegistry("555", main.LinkFormatWiki, true)
	out := convertSnippet(t, reg, main.LinkFormatWiki,
		`<img src="https://bbs.saraba1st.com/2b/static/image/common/none.gif" zoomfile="https://img.saraba1st.com/forum/big.jpg" aid="42" data-s1-page="1">`)

	if !strings.Contains(out, "![[555/1/big.jpg]]") {
		t.Errorf("附件图片应使用zoomfile地址:\n%s", out)
	}
}

func TestConvertAttachmentRelativeFile(t *testing.T) {
	reg := main.NewAssetRegistry("555", main.LinkFormatWiki, true)
	out := convertSnippet(t, reg, main.LinkFormatWiki,
		`<img src="static/image/common/none.gif" file="data/attachment/forum/202401/x.png" aid="9" data-s1-page="3">`)

	if !strings.Contains(out, "![[555/3/x.png]]") {
		t.Errorf("相对路径附件应被入队:\n%s", out)
	}

	sink := &recordingSink{}
	if err := reg.Drain(context.Background(), sink, nil); err != nil {
		t.Fatal(err)
	}
	if len(sink.calls) != 1 {
		t.Fatalf("calls = %d", len(sink.calls))
	}
	if sink.calls[0].URL != "https://bbs.saraba1st.com/2b/data/attachment/forum/202401/x.png" {
		t.Errorf("附件URL未按站点路径补全: %q", sink.calls[0].URL)
	}
}

func TestConvertAttachmentWithoutSource(t *testing.T) {
	reg := main.NewAssetRegistry("555", main.LinkFormatWiki, true)
	out := convertSnippet(t, reg, main.LinkFormatWiki,
		`<img src="static/image/common/none.gif" aid="7">`)

	if !strings.Contains(out, "[附件图片 aid=7 加载失败]") {
		t.Errorf("无可用地址的附件应渲染失败占位:\n%s", out)
	}
	if reg.QueueSize() != 0 {
		t.Errorf("QueueSize = %d", reg.QueueSize())
	}
}

func TestConvertEmoticon(t *testing.T) {
	src := "https://static.saraba1st.com/image/smiley/face2017/07.png"

	reg := main.NewAssetRegistry("555", main.LinkFormatWiki, true)
	out := convertSnippet(t, reg, main.LinkFormatWiki,
		`<img src="`+src+`" smilieid="519">`)
	if !strings.Contains(out, "![[face2017/07.png|smilieid=519]]") {
		t.Errorf("wiki格式表情:\n%s", out)
	}
	if reg.QueueSize() != 0 {
		t.Error("表情不应进入下载队列")
	}

	reg2 := main.NewAssetRegistry("555", main.LinkFormatWiki, true)
	out = convertSnippet(t, reg2, main.LinkFormatStandard,
		`<img src="`+src+`" smilieid="519">`)
	if !strings.Contains(out, "![519]("+src+")") {
		t.Errorf("standard格式表情:\n%s", out)
	}
}

func TestConvertPostStatus(t *testing.T) {
	reg := main.NewAssetRegistry("555", main.LinkFormatWiki, true)
	out := convertSnippet(t, reg, main.LinkFormatWiki,
		`<i class="pstatus">本帖最后由 用户甲 于 2024-1-2 08:00 编辑</i>正文内容`)

	if !strings.Contains(out, "> *本帖最后由 用户甲 于 2024-1-2 08:00 编辑*") {
		t.Errorf("编辑状态应渲染为斜体引用:\n%s", out)
	}
	if !strings.Contains(out, "正文内容") {
		t.Errorf("正文丢失:\n%s", out)
	}
}

func TestConvertStripsDecoration(t *testing.T) {
	reg := main.NewAssetRegistry("555", main.LinkFormatWiki, true)
	out := convertSnippet(t, reg, main.LinkFormatWiki,
		`<div class="cronclosethread_getbox">活动装饰</div>正文`)

	if strings.Contains(out, "活动装饰") {
		t.Errorf("装饰元素应被剔除:\n%s", out)
	}
}

func TestConvertRewritesRelativeLinks(t *testing.T) {
	reg := main.NewAssetRegistry("555", main.LinkFormatWiki, true)
	out := convertSnippet(t, reg, main.LinkFormatWiki,
		`<a href="thread-123-1-1.html">跳转</a> <a href="https://example.com/x">外链</a> <a href="#top">锚点</a>`)

	if !strings.Contains(out, "https://bbs.saraba1st.com/2b/thread-123-1-1.html") {
		t.Errorf("相对链接应补全为绝对地址:\n%s", out)
	}
	if !strings.Contains(out, "https://example.com/x") {
		t.Errorf("绝对链接应保持不变:\n%s", out)
	}
	if strings.Contains(out, "https://bbs.saraba1st.com/2b/#top") {
		t.Errorf("锚点链接不应被改写:\n%s", out)
	}
}

func TestConvertAttributedQuote(t *testing.T) {
	reg := main.NewAssetRegistry("555", main.LinkFormatWiki, true)
	out := convertSnippet(t, reg, main.LinkFormatWiki,
		`<blockquote><div class="quote"><font>用户丙 发表于 2024-1-1 10:00</font></div>引用的正文</blockquote>之后的正文`)

	if !strings.Contains(out, "> **引用 用户丙 发表于 2024-1-1 10:00:**") {
		t.Errorf("署名引用头部错误:\n%s", out)
	}
	if !strings.Contains(out, "> 引用的正文") {
		t.Errorf("引用正文未加前缀:\n%s", out)
	}
	if !strings.Contains(out, "之后的正文") {
		t.Errorf("引用之后的内容丢失:\n%s", out)
	}
}

func TestConvertNestedQuoteKeepsInnerAttribution(t *testing.T) {
	reg := main.NewAssetRegistry("555", main.LinkFormatWiki, true)
	out := convertSnippet(t, reg, main.LinkFormatWiki,
		`<blockquote><div class="quote"><font>外层用户 发表于 2024-1-2 09:00</font></div>外层正文`+
			`<blockquote><div class="quote"><font>内层用户 发表于 2024-1-1 10:00</font></div>内层正文</blockquote>`+
			`</blockquote>`)

	if !strings.Contains(out, "> **引用 外层用户 发表于 2024-1-2 09:00:**") {
		t.Errorf("外层署名丢失:\n%s", out)
	}
	if !strings.Contains(out, "> 外层正文") {
		t.Errorf("外层正文未加前缀:\n%s", out)
	}
	if !strings.Contains(out, "> > **引用 内层用户 发表于 2024-1-1 10:00:**") {
		t.Errorf("嵌套引用的署名应保留并加双层前缀:\n%s", out)
	}
	if !strings.Contains(out, "> > 内层正文") {
		t.Errorf("嵌套引用正文错误:\n%s", out)
	}
}

func TestConvertPlainQuote(t *testing.T) {
	reg := main.NewAssetRegistry("555", main.LinkFormatWiki, true)
	out := convertSnippet(t, reg, main.LinkFormatWiki,
		`<blockquote><p>第一段</p><p>第二段</p></blockquote>`)

	if !strings.Contains(out, "> 第一段") || !strings.Contains(out, "> 第二段") {
		t.Errorf("无署名引用应逐行加前缀:\n%s", out)
	}
}
