package s1st2md_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	main "github.com/reimu-nue/s1st2md"
)

// fakeThreadPage 生成一页符合站点结构的帖子页面，每页perPage个楼层。
func fakeThreadPage(page, totalPages, perPage int) string {
	var b strings.Builder
	b.WriteString(`<html><head><title>test</title></head><body>`)
	b.WriteString(`<span id="thread_subject">测试导出大楼</span>`)
	b.WriteString(`<div id="pt"><div class="z"><a href="forum.php">论坛</a> <a href="forum-27-1.html">游戏论坛</a></div></div>`)
	fmt.Fprintf(&b, `<div id="pgt"><div class="pg"><strong>%d</strong><span title="共 %d 页">&nbsp;/ %d 页</span></div></div>`,
		page, totalPages, totalPages)
	b.WriteString(`<div id="postlist">`)

	for i := 1; i <= perPage; i++ {
		floor := (page-1)*perPage + i
		pid := 10000 + floor
		label := fmt.Sprintf("%d#", floor)
		if floor == 1 {
			label = "楼主"
		}
		fmt.Fprintf(&b, `<div id="post_%d"><table><tbody><tr><td class="plc">`+
			`<div class="pi"><strong><a id="postnum%d">%s</a></strong>`+
			`<div class="authi"><a class="xw1">用户%d</a> <em id="authorposton%d">发表于 2024-1-1 12:00</em></div></div>`+
			`<div class="pcb"><div class="t_fsz"><table><tbody><tr>`+
			`<td class="t_f" id="postmessage_%d">第%d层的内容</td>`+
			`</tr></tbody></table></div></div>`+
			`</td></tr></tbody></table></div>`,
			pid, pid, label, floor, pid, pid, floor)
	}

	b.WriteString(`</div></body></html>`)
	return b.String()
}

// newExportFixture 启动伪造论坛并装配完整导出链路
func newExportFixture(t *testing.T, totalPages, perPage int) (*main.Exporter, string, *[]int) {
	t.Helper()

	var requested []int
	mux := http.NewServeMux()
	mux.HandleFunc("/2b/", func(w http.ResponseWriter, r *http.Request) {
		var page int
		if _, err := fmt.Sscanf(r.URL.Path, "/2b/thread-777-%d-1.html", &page); err != nil || page < 1 || page > totalPages {
			http.NotFound(w, r)
			return
		}
		requested = append(requested, page)
		fmt.Fprint(w, fakeThreadPage(page, totalPages, perPage))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	outputDir := t.TempDir()
	cfg := main.NewDefaultConfig()
	cfg.BaseURL = server.URL
	cfg.OutputDir = outputDir
	cfg.HTTPPageDelay = time.Millisecond
	cfg.HTTPRetryDelay = time.Millisecond

	api := main.NewAppClient(cfg.APIBaseURL, cfg.HTTPTimeout)
	unlocker := main.NewContentUnlocker(api, main.NewFileSessionStore(filepath.Join(outputDir, "session.toml")), main.StaticCredentials{}, perPage)
	loader := main.NewThreadLoader(main.NewPageFetcher(cfg), unlocker)
	exporter := main.NewExporter(cfg, loader, main.NewFSDownloadSink(cfg), main.NewEmitter(outputDir))
	return exporter, outputDir, &requested
}

func TestExportFloorRangeSingleFile(t *testing.T) {
	exporter, outputDir, requested := newExportFixture(t, 3, 5)

	opts := main.DefaultExportOptions()
	opts.PostsPerPage = 5
	opts.StartFloor = main.IntPtr(6)
	opts.EndFloor = main.IntPtr(10)
	opts.DownloadImages = false

	files, err := exporter.Export(t.Context(), "777", opts, nil, nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("files = %v", files)
	}
	if filepath.Base(files[0]) != "测试导出大楼.md" {
		t.Errorf("文件名 = %q", filepath.Base(files[0]))
	}

	content, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	text := string(content)

	if !strings.HasPrefix(text, "# 测试导出大楼\n\n**版块:** 游戏论坛\n") {
		t.Errorf("文档头部错误:\n%s", text[:min(len(text), 200)])
	}
	for floor := 6; floor <= 10; floor++ {
		want := fmt.Sprintf("## %d# | 用户%d | 2024-1-1 12:00", floor, floor)
		if !strings.Contains(text, want) {
			t.Errorf("缺少楼层 %d", floor)
		}
		if !strings.Contains(text, fmt.Sprintf("第%d层的内容", floor)) {
			t.Errorf("缺少楼层 %d 正文", floor)
		}
	}
	if strings.Contains(text, "## 5# |") || strings.Contains(text, "## 11# |") {
		t.Error("范围外楼层不应出现")
	}

	// 首页总是会取一次用于元数据，范围内只需第2页
	if want := []int{1, 2}; fmt.Sprint(*requested) != fmt.Sprint(want) {
		t.Errorf("请求页序列 = %v, want %v", *requested, want)
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.IsDir() {
			t.Errorf("禁用下载时不应出现图片目录: %s", e.Name())
		}
	}
}

func TestExportChunkedFiles(t *testing.T) {
	exporter, _, requested := newExportFixture(t, 3, 5)

	opts := main.DefaultExportOptions()
	opts.PostsPerPage = 5
	opts.PostsPerFile = main.IntPtr(5)
	opts.DownloadImages = false

	files, err := exporter.Export(t.Context(), "777", opts, nil, nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("应按每5帖一个文件切分, got %v", files)
	}
	for i, f := range files {
		want := fmt.Sprintf("测试导出大楼 - Page %d.md", i+1)
		if filepath.Base(f) != want {
			t.Errorf("files[%d] = %q, want %q", i, filepath.Base(f), want)
		}
		content, err := os.ReadFile(f)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(content), "# 测试导出大楼") {
			t.Errorf("分块文件缺少公共头部: %s", f)
		}
	}

	// 楼主楼层出现在第一个文件里
	first, _ := os.ReadFile(files[0])
	if !strings.Contains(string(first), "## 1# (楼主) | 用户1 |") {
		t.Errorf("楼主楼层渲染错误:\n%s", first)
	}

	if len(*requested) != 3 {
		t.Errorf("全量导出应抓取全部3页, got %v", *requested)
	}
}

func TestExportLocalInputPage(t *testing.T) {
	exporter, _, requested := newExportFixture(t, 3, 5)

	opts := main.DefaultExportOptions()
	opts.PostsPerPage = 5
	opts.StartFloor = main.IntPtr(6)
	opts.EndFloor = main.IntPtr(10)
	opts.DownloadImages = false

	input := &main.LocalPage{HTML: fakeThreadPage(2, 3, 5), Page: 2}
	files, err := exporter.Export(t.Context(), "777", opts, input, nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	// 第2页由本地输入提供，不应发起任何网络请求
	if len(*requested) != 0 {
		t.Errorf("本地页面覆盖范围时不应抓取, got %v", *requested)
	}

	content, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "## 6# | 用户6 |") {
		t.Errorf("本地页面楼层缺失:\n%s", content)
	}
}

func TestExportSkipsFailedPage(t *testing.T) {
	var requested []int
	mux := http.NewServeMux()
	mux.HandleFunc("/2b/", func(w http.ResponseWriter, r *http.Request) {
		var page int
		if _, err := fmt.Sscanf(r.URL.Path, "/2b/thread-777-%d-1.html", &page); err != nil || page < 1 || page > 3 {
			http.NotFound(w, r)
			return
		}
		requested = append(requested, page)
		if page == 2 {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, fakeThreadPage(page, 3, 5))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	outputDir := t.TempDir()
	cfg := main.NewDefaultConfig()
	cfg.BaseURL = server.URL
	cfg.OutputDir = outputDir
	cfg.HTTPPageDelay = time.Millisecond
	cfg.HTTPRetryDelay = time.Millisecond

	api := main.NewAppClient(cfg.APIBaseURL, cfg.HTTPTimeout)
	unlocker := main.NewContentUnlocker(api, main.NewFileSessionStore(filepath.Join(outputDir, "session.toml")), main.StaticCredentials{}, 5)
	loader := main.NewThreadLoader(main.NewPageFetcher(cfg), unlocker)
	exporter := main.NewExporter(cfg, loader, main.NewFSDownloadSink(cfg), main.NewEmitter(outputDir))

	opts := main.DefaultExportOptions()
	opts.PostsPerPage = 5
	opts.DownloadImages = false

	files, err := exporter.Export(t.Context(), "777", opts, nil, nil)
	if err != nil {
		t.Fatalf("单页失败不应中止导出: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("files = %v", files)
	}

	content, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	text := string(content)

	for _, floor := range []int{1, 5, 11, 15} {
		if !strings.Contains(text, fmt.Sprintf("第%d层的内容", floor)) {
			t.Errorf("幸存页面的楼层 %d 缺失", floor)
		}
	}
	for _, floor := range []int{6, 10} {
		if strings.Contains(text, fmt.Sprintf("第%d层的内容", floor)) {
			t.Errorf("失败页面的楼层 %d 不应出现", floor)
		}
	}

	// 失败页按重试次数多次请求后被跳过
	if len(requested) < 4 {
		t.Errorf("请求序列过短: %v", requested)
	}
}
