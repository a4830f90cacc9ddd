package erpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// Client — 上游ERP REST网关客户端
// 负责附加Bearer凭证、统一JSON编解码、空响应体归一化、401会话过期通知
// 自材请求、见积、产品目录等模块共用
// =============================================================================

// APIError 上游返回的非2xx响应
// Body保留上游响应体原文（JSON或纯文本），向调用方逐字透出，不做二次加工
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream status %d", e.Status)
	}
	return e.Body
}

// IsUnauthorized 是否为会话过期（401）
func IsUnauthorized(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == http.StatusUnauthorized
}

// Client ERP客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
	onExpired  func() // 401时触发的会话过期回调，由会话持有方注册
}

// NewClient 创建ERP客户端实例
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// OnSessionExpired 注册会话过期回调（显式观察者，不走全局事件广播）
func (c *Client) OnSessionExpired(fn func()) {
	c.onExpired = fn
}

// Get 发起GET请求
func (c *Client) Get(ctx context.Context, token, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, token, nil, result)
}

// Post 发起POST请求
func (c *Client) Post(ctx context.Context, token, path string, body, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, token, body, result)
}

// Patch 发起PATCH请求
func (c *Client) Patch(ctx context.Context, token, path string, body, result interface{}) error {
	return c.do(ctx, http.MethodPatch, path, token, body, result)
}

// Delete 发起DELETE请求
func (c *Client) Delete(ctx context.Context, token, path string) error {
	return c.do(ctx, http.MethodDelete, path, token, nil, nil)
}

// do 执行上游API请求
// method: HTTP方法（GET/POST/PATCH/DELETE）
// path: API路径（如 /api/material-requests/42）
// body: 请求体（JSON序列化，nil则不发送）
// result: 响应结构体指针（JSON反序列化，nil或空响应体则跳过）
func (c *Client) do(ctx context.Context, method, path, token string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求上游ERP失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if c.onExpired != nil {
			c.onExpired()
		}
		return &APIError{Status: resp.StatusCode, Body: normalizeErrorBody(respBody)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: normalizeErrorBody(respBody)}
	}

	// 空响应体归一化：204或空body视为成功，不尝试解码
	if result == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("解析响应体失败: %w", err)
	}
	return nil
}

// normalizeErrorBody 错误体透传：JSON原样字符串化，非JSON按原文返回
func normalizeErrorBody(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	if json.Valid(trimmed) {
		var compact bytes.Buffer
		if err := json.Compact(&compact, trimmed); err == nil {
			return compact.String()
		}
	}
	return string(trimmed)
}
