// Package assistant answers support chat messages through an OpenAI-compatible
// chat completions endpoint. It never surfaces an error: any failure yields
// FallbackMessage.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clipwave/clipwave/internal/config"
	"github.com/clipwave/clipwave/internal/logging"
	"github.com/clipwave/clipwave/internal/metrics"
	"github.com/clipwave/clipwave/pkg/models"
)

// FallbackMessage is returned whenever the upstream call fails
const FallbackMessage = "🤔 Desculpe, estou com dificuldades técnicas no momento. Mas posso ajudar com informações sobre nosso teste grátis de 3 dias, funcionalidades, pagamento e muito mais! Sobre o que você gostaria de saber?"

// SystemPrompt frames every conversation
const SystemPrompt = `Você é uma assistente virtual amigável e prestativa de uma plataforma de edição de vídeos com IA. Seu objetivo é ajudar os usuários com:

1. **Informações sobre o teste grátis**: 3 dias completos, acesso total, sem cobrança durante o teste
2. **Dúvidas sobre pagamento**: Não cobramos durante o teste, dados do cartão são apenas para segurança
3. **Funcionalidades**: Cortes automáticos, legendas inteligentes, dublagem com IA, templates virais, análise de performance
4. **Segurança**: Dados criptografados, privacidade garantida
5. **Suporte**: Disponível 24/7, sempre pronta para ajudar
6. **Planos**: Básico (R$ 29/mês), Pro (R$ 79/mês), Premium (R$ 149/mês)

Seja sempre positiva, use emojis quando apropriado, e incentive o usuário a testar a plataforma gratuitamente. Responda de forma clara, objetiva e amigável em português do Brasil.`

var errNoAPIKey = errors.New("assistant api key not configured")

type completionRequest struct {
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message models.ChatMessage `json:"message"`
	} `json:"choices"`
}

// Client calls the chat completions endpoint
type Client struct {
	client *http.Client
	cfg    config.AssistantConfig
	logger *logging.Logger
}

// NewClient creates a client for cfg
func NewClient(cfg config.AssistantConfig, logger *logging.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		client: &http.Client{Timeout: timeout},
		cfg:    cfg,
		logger: logger.WithComponent("assistant"),
	}
}

// Complete returns the assistant's reply to messages, or FallbackMessage
func (c *Client) Complete(ctx context.Context, messages []models.ChatMessage) string {
	reply, err := c.complete(ctx, messages)
	if err != nil {
		metrics.AssistantRequestsTotal.WithLabelValues("fallback").Inc()
		c.logger.WithError(err).Warn("chat completion failed, using fallback")
		return FallbackMessage
	}
	metrics.AssistantRequestsTotal.WithLabelValues("success").Inc()
	return reply
}

func (c *Client) complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	if c.cfg.APIKey == "" {
		return "", errNoAPIKey
	}

	payload, err := json.Marshal(completionRequest{
		Model:       c.cfg.Model,
		Messages:    append([]models.ChatMessage{{Role: "system", Content: SystemPrompt}}, messages...),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upstream returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", errors.New("upstream returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}
