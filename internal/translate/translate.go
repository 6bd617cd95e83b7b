// Package translate wraps the free Google web translation endpoint. The
// relay treats translation as best effort: any failure means "no translation
// available" and the caller carries on without one.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
)

// Translator is the collaborator boundary. ok=false means no usable
// translation; it is never an error the caller should propagate.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, bool)
}

type GoogleTranslator struct {
	http    *http.Client
	baseURL string
	logger  *slog.Logger
}

func NewGoogleTranslator(httpClient *http.Client, baseURL string, logger *slog.Logger) *GoogleTranslator {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://translate.googleapis.com"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleTranslator{http: httpClient, baseURL: baseURL, logger: logger}
}

func (g *GoogleTranslator) Translate(ctx context.Context, text, targetLang string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" || strings.TrimSpace(targetLang) == "" {
		return "", false
	}

	endpoint := fmt.Sprintf("%s/translate_a/single?client=gtx&sl=auto&tl=%s&dt=t&q=%s",
		g.baseURL, url.QueryEscape(targetLang), url.QueryEscape(text))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := g.http.Do(req)
	if err != nil {
		g.logger.Debug("translate_request_failed", "error", err.Error())
		return "", false
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.Debug("translate_http_error", "status", resp.StatusCode)
		return "", false
	}

	out, err := decodeSegments(raw)
	if err != nil {
		g.logger.Debug("translate_decode_failed", "error", err.Error())
		return "", false
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", false
	}
	return out, true
}

// decodeSegments unpacks the gtx response: a JSON array whose first element
// is a list of [translatedChunk, sourceChunk, ...] segments.
func decodeSegments(raw []byte) (string, error) {
	var payload []json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", err
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("empty translation payload")
	}
	var segments [][]any
	if err := json.Unmarshal(payload[0], &segments); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		if s, ok := seg[0].(string); ok {
			b.WriteString(s)
		}
	}
	return b.String(), nil
}

// ContainsHan reports whether s has at least one CJK ideograph. The relay
// uses this as a cheap script-presence heuristic for "the staff wrote in
// their own language, translate for the user".
func ContainsHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
