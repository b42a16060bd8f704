package s1st2md

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// blockedMarkers pairs a container selector with the placeholder text the
// site renders for gated content.
var blockedMarkers = []struct {
	matcher  cascadia.Selector
	fragment string
}{
	{cascadia.MustCompile(".plhin"), "作者被禁止或删除 内容自动屏蔽"},
	{cascadia.MustCompile("#messagetext"), "内容审核中，即将开放"},
}

var unlockContainerMatcher = cascadia.MustCompile(".pcb")

// threadUnlockAPI is the slice of AppClient the unlocker needs.
type threadUnlockAPI interface {
	ThreadPage(ctx context.Context, sid, tid string, pageNo, pageSize int) (*ThreadPageData, error)
	Login(ctx context.Context, creds Credentials) (string, error)
}

// ContentUnlocker swaps gated post content for the authoritative payload
// served by the app API. A session invalidation triggers exactly one
// re-authentication retry; a second invalidation is fatal.
type ContentUnlocker struct {
	api      threadUnlockAPI
	sessions SessionStore
	creds    CredentialSource
	pageSize int
}

// NewContentUnlocker wires the unlocker to its collaborators.
func NewContentUnlocker(api threadUnlockAPI, sessions SessionStore, creds CredentialSource, pageSize int) *ContentUnlocker {
	if pageSize <= 0 {
		pageSize = 40
	}
	return &ContentUnlocker{api: api, sessions: sessions, creds: creds, pageSize: pageSize}
}

// IsFatalUnlockError reports whether an unlock failure must abort the whole
// load (unrecoverable session/login failure, as opposed to stale data).
func IsFatalUnlockError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == SessionError
}

// Unlock scans one page's posts for gated content and, when any is found,
// replaces it in place. Pages without gated posts never touch the API.
func (u *ContentUnlocker) Unlock(ctx context.Context, tid string, page int, posts []*goquery.Selection) error {
	var blocked []*goquery.Selection
	for _, post := range posts {
		if isBlockedPost(post) {
			blocked = append(blocked, post)
		}
	}
	if len(blocked) == 0 {
		return nil
	}
	slog.Info("检测到被屏蔽的帖子", "page", page, "count", len(blocked))

	for attempt := 0; ; attempt++ {
		sid, err := u.ensureSession(ctx)
		if err != nil {
			return err
		}

		data, err := u.api.ThreadPage(ctx, sid, tid, page, u.pageSize)
		if errors.Is(err, ErrSessionInvalid) {
			if rmErr := u.sessions.Remove(); rmErr != nil {
				slog.Warn("清除会话令牌失败", "error", rmErr)
			}
			if attempt > 0 {
				return NewSessionError("重新登录后会话仍然无效，无法解锁内容", err)
			}
			slog.Info("会话失效，尝试重新登录")
			if _, err := u.authenticate(ctx); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}

		u.applyPayloads(blocked, data, page)
		return nil
	}
}

// applyPayloads rewrites each blocked post whose id has an authoritative
// payload; posts without one stay blocked and are only logged.
func (u *ContentUnlocker) applyPayloads(blocked []*goquery.Selection, data *ThreadPageData, page int) {
	payloads := make(map[string]ThreadPagePost, len(data.List))
	for _, p := range data.List {
		payloads[p.PID.String()] = p
	}

	for _, post := range blocked {
		id, _ := post.Attr("id")
		pid := strings.TrimPrefix(id, "post_")
		payload, ok := payloads[pid]
		if !ok {
			slog.Warn("API数据中未找到帖子", "pid", pid, "page", page)
			continue
		}
		container := post.FindMatcher(unlockContainerMatcher).First()
		if container.Length() == 0 {
			slog.Warn("未找到帖子内容容器", "pid", pid)
			continue
		}
		container.SetHtml(postFragmentHTML(pid, payload.Message))
	}
}

func (u *ContentUnlocker) ensureSession(ctx context.Context) (string, error) {
	sid, err := u.sessions.Get()
	if err != nil {
		return "", NewSessionError("读取会话令牌失败", err)
	}
	if sid != "" {
		return sid, nil
	}
	return u.authenticate(ctx)
}

func (u *ContentUnlocker) authenticate(ctx context.Context) (string, error) {
	creds, ok, err := u.creds.Credentials(ctx)
	if err != nil {
		return "", NewSessionError("获取登录凭据失败", err)
	}
	if !ok {
		return "", NewSessionError("登录取消或失败", ErrLoginCancelled)
	}

	sid, err := u.api.Login(ctx, creds)
	if err != nil {
		return "", NewSessionError("重新登录失败，无法解锁内容", err)
	}
	if err := u.sessions.Set(sid); err != nil {
		return "", NewSessionError("保存会话令牌失败", err)
	}
	slog.Info("登录成功")
	return sid, nil
}

func isBlockedPost(post *goquery.Selection) bool {
	for _, marker := range blockedMarkers {
		el := post.FindMatcher(marker.matcher).First()
		if el.Length() > 0 && strings.Contains(el.Text(), marker.fragment) {
			return true
		}
	}
	return false
}

// postFragmentHTML rebuilds the site's content markup around an
// authoritative payload. The payload is trusted HTML, injected verbatim.
func postFragmentHTML(pid, message string) string {
	if message == "" {
		message = "[内容为空]"
	}
	return fmt.Sprintf(`<div class="t_fsz"><table cellspacing="0" cellpadding="0"><tbody><tr><td class="t_f" id="postmessage_%s">%s</td></tr></tbody></table></div>`, pid, message)
}
