// Package github — бекенд блоб-хранилища поверх GitHub repository
// contents API. Ревизия файла (sha) играет роль тега версии: PUT и
// DELETE со stale sha гитхаб отклоняет, что и даёт optimistic
// concurrency на уровне одного файла.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cwrk-planet/vault-room-service/internal/store"
)

const defaultBaseURL = "https://api.github.com"

type Config struct {
	BaseURL string // для тестов; по умолчанию api.github.com
	Owner   string
	Repo    string
	Branch  string
	Token   string
	Timeout time.Duration // обязательный: зависший вызов не должен держать хендлер
}

type Client struct {
	baseURL    string
	owner      string
	repo       string
	branch     string
	token      string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(base, "/"),
		owner:   cfg.Owner,
		repo:    cfg.Repo,
		branch:  cfg.Branch,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type contentResponse struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	SHA     string `json:"sha"`
	Content string `json:"content"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

func (c *Client) Get(ctx context.Context, path string) ([]byte, string, error) {
	resp, err := c.do(ctx, http.MethodGet, path, "ref="+url.QueryEscape(c.branch), nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", store.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, "", statusErr("get", path, resp.StatusCode)
	}

	var body contentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, "", fmt.Errorf("github: decode get %s: %w", path, store.ErrUnavailable)
	}

	// content приходит base64 с переводами строк внутри
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(body.Content, "\n", ""))
	if err != nil {
		return nil, "", fmt.Errorf("github: content of %s is not base64: %w", path, store.ErrUnavailable)
	}
	return raw, body.SHA, nil
}

func (c *Client) Put(ctx context.Context, path string, content []byte, version string) (string, error) {
	payload := map[string]any{
		"message": "update room data",
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  c.branch,
	}
	if version != "" {
		payload["sha"] = version
	}

	resp, err := c.do(ctx, http.MethodPut, path, "", payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict, http.StatusUnprocessableEntity:
		// 409 — sha устарел; 422 — файл уже существует при создании без sha
		return "", store.ErrVersionConflict
	default:
		return "", statusErr("put", path, resp.StatusCode)
	}

	var body putResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("github: decode put %s: %w", path, store.ErrUnavailable)
	}
	return body.Content.SHA, nil
}

func (c *Client) Delete(ctx context.Context, path string, version string) error {
	payload := map[string]any{
		"message": "delete room data",
		"sha":     version,
		"branch":  c.branch,
	}

	resp, err := c.do(ctx, http.MethodDelete, path, "", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNotFound:
		return nil
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return store.ErrVersionConflict
	default:
		return statusErr("delete", path, resp.StatusCode)
	}
}

func (c *Client) List(ctx context.Context, dir string) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, dir, "ref="+url.QueryEscape(c.branch), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, statusErr("list", dir, resp.StatusCode)
	}

	var items []contentResponse
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("github: decode list %s: %w", dir, store.ErrUnavailable)
	}

	names := make([]string, 0, len(items))
	for _, it := range items {
		if it.Type == "file" {
			names = append(names, it.Name)
		}
	}
	return names, nil
}

func (c *Client) do(ctx context.Context, method, path, query string, payload any) (*http.Response, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, c.owner, c.repo, escapePath(path))
	if query != "" {
		u += "?" + query
	}

	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("github: marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("github: %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "vault-room-service")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: %s %s: %v: %w", method, path, err, store.ErrUnavailable)
	}
	return resp, nil
}

// escapePath экранирует сегменты, сохраняя разделители.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func statusErr(op, path string, code int) error {
	return fmt.Errorf("github: %s %s: status %d: %w", op, path, code, store.ErrUnavailable)
}
