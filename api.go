package s1st2md

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// apiEnvelope is the wire format of the official app API. A code in the
// "50x" family means the session is invalid; "200" is success; any other
// code is tolerated with a warning as long as data is present.
type apiEnvelope struct {
	Code    json.Number     `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ThreadPageData is the authoritative page payload.
type ThreadPageData struct {
	List []ThreadPagePost `json:"list"`
}

// ThreadPagePost is one post as served by the app API. Message is a trusted
// HTML fragment injected verbatim into the page document.
type ThreadPagePost struct {
	PID     json.Number `json:"pid"`
	Message string      `json:"message"`
}

type loginData struct {
	SID string `json:"sid"`
}

// Credentials are the values the login endpoint accepts. QuestionID "0"
// means no security question.
type Credentials struct {
	Username   string
	Password   string
	QuestionID string
	Answer     string
}

// AppClient talks to the official app API used to reveal gated posts.
type AppClient struct {
	baseURL string
	client  *http.Client
}

// NewAppClient creates a client for the given API base URL.
func NewAppClient(baseURL string, timeout time.Duration) *AppClient {
	return &AppClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// ThreadPage fetches the authoritative post payloads for one physical page.
func (c *AppClient) ThreadPage(ctx context.Context, sid, tid string, pageNo, pageSize int) (*ThreadPageData, error) {
	form := url.Values{}
	form.Set("sid", sid)
	form.Set("tid", tid)
	form.Set("pageNo", strconv.Itoa(pageNo))
	form.Set("pageSize", strconv.Itoa(pageSize))

	raw, err := c.post(ctx, "/thread/page", form)
	if err != nil {
		return nil, err
	}

	var data ThreadPageData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, NewParseError("解析 thread/page 响应失败", err)
	}
	return &data, nil
}

// Login exchanges credentials for a session token.
func (c *AppClient) Login(ctx context.Context, creds Credentials) (string, error) {
	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)
	if creds.QuestionID != "" && creds.QuestionID != "0" {
		form.Set("questionid", creds.QuestionID)
		form.Set("answer", creds.Answer)
	}

	raw, err := c.post(ctx, "/user/login", form)
	if err != nil {
		return "", err
	}

	var data loginData
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", NewParseError("解析登录响应失败", err)
	}
	if data.SID == "" {
		return "", NewSessionError("登录响应缺少会话令牌", nil)
	}
	return data.SID, nil
}

// post performs one form POST and unwraps the response envelope.
func (c *AppClient) post(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, NewNetworkError("创建API请求失败", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, NewNetworkError(fmt.Sprintf("API %s 请求失败", path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, NewNetworkError(fmt.Sprintf("API %s 状态异常: %s", path, resp.Status), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewNetworkError("读取API响应失败", err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, NewParseError("解析API响应失败", err)
	}

	code := envelope.Code.String()
	switch {
	case code == "":
		return nil, NewParseError("API响应缺少状态码", nil)
	case strings.HasPrefix(code, "50"):
		slog.Warn("API返回登录错误", "code", code, "message", envelope.Message)
		return nil, ErrSessionInvalid
	case code != "200":
		slog.Warn("API返回非成功状态码", "code", code, "message", envelope.Message)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil, ErrAPIMissingData
	}
	return envelope.Data, nil
}
