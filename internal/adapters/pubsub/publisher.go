package pubsub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"microlearning-services/internal/domain"
	"microlearning-services/internal/infra/metrics"
)

// Publisher публикует события через HTTP API сайдкара pubsub.
// Данные оборачиваются в готовый конверт, поэтому идентификатор события
// назначается здесь и доезжает до подписчиков без изменений.
type Publisher struct {
	baseURL    *url.URL
	pubsubName string
	source     string
	httpClient *http.Client
}

var _ domain.EventPublisher = (*Publisher)(nil)

// PublisherOption настраивает издателя.
type PublisherOption func(*Publisher)

// WithHTTPClient заменяет HTTP-клиент издателя.
func WithHTTPClient(client *http.Client) PublisherOption {
	return func(p *Publisher) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithTimeout задаёт таймаут запросов публикации.
func WithTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		if p.httpClient == nil {
			p.httpClient = &http.Client{}
		}
		p.httpClient.Timeout = timeout
	}
}

// WithSource задаёт имя сервиса-источника в конверте.
func WithSource(source string) PublisherOption {
	return func(p *Publisher) {
		if source != "" {
			p.source = source
		}
	}
}

// NewPublisher создаёт издателя событий.
func NewPublisher(baseURL, pubsubName string, opts ...PublisherOption) (*Publisher, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "http"
	}
	if pubsubName == "" {
		pubsubName = "pubsub"
	}
	p := &Publisher{
		baseURL:    parsed,
		pubsubName: pubsubName,
		source:     "microlearning",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish отправляет данные события в тему брокера.
func (p *Publisher) Publish(ctx context.Context, topic domain.Topic, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	env := Envelope{
		ID:              uuid.NewString(),
		Source:          p.source,
		Type:            "com.dapr.event.sent",
		SpecVersion:     "1.0",
		DataContentType: "application/json",
		PubsubName:      p.pubsubName,
		Topic:           topic,
		Data:            raw,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	resolved := *p.baseURL
	basePath := strings.TrimSuffix(p.baseURL.Path, "/")
	resolved.Path = basePath + fmt.Sprintf("/v1.0/publish/%s/%s", url.PathEscape(p.pubsubName), url.PathEscape(string(topic)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resolved.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/cloudevents+json")

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	metrics.ObserveNetworkRequest("pubsub", "publish", string(topic), start, err)
	if err != nil {
		return fmt.Errorf("publish request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("publish failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
