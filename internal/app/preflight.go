package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/somatic/internal/config"
)

const preflightTimeout = 3 * time.Second

// Preflight failures. Both are fatal at startup.
var (
	ErrProxyUnauthorized = errors.New("app: LLM proxy rejected the API key")
	ErrProxyUnreachable  = errors.New("app: LLM proxy is not reachable")
)

// Preflight checks the backends a session cannot run without. For the
// claude_proxy provider it asks the proxy for its model list; a rejected key
// or an unreachable proxy is an error, any other unexpected status only a
// warning. withTTS also checks the speech engine credentials.
func Preflight(ctx context.Context, cfg *config.Config, client *http.Client, withTTS bool) error {
	if withTTS && cfg.TTS.Engine == "elevenlabs" && cfg.TTS.APIKey == "" {
		return fmt.Errorf("%w: set tts.api_key (or ${ELEVENLABS_API_KEY}) to use elevenlabs", ErrMissingAPIKey)
	}
	if cfg.LLM.Provider != "claude_proxy" {
		return nil
	}
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, preflightTimeout)
	defer cancel()

	proxy := strings.TrimRight(cfg.LLM.ProxyURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, proxy+"/v1/models", nil)
	if err != nil {
		return fmt.Errorf("app: preflight request: %w", err)
	}
	if cfg.LLM.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.LLM.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w at %s: start the proxy and try again: %w", ErrProxyUnreachable, proxy, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w at %s: check llm.api_key", ErrProxyUnauthorized, proxy)
	case resp.StatusCode != http.StatusOK:
		slog.Warn("LLM proxy answered unexpectedly", "url", proxy, "status", resp.StatusCode)
	default:
		slog.Debug("LLM proxy reachable", "url", proxy)
	}
	return nil
}
