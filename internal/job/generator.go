package job

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	generateTimeout = 30 * time.Second
	imageSize       = 512

	// how long the breaker stays open before letting a trial call through
	breakerOpenTimeout = 60 * time.Second
)

var (
	ErrUpstreamStatus = errors.New("image generator returned non-200 status")
	ErrNoImages       = errors.New("image generator returned no images")
)

type GenerateRequest struct {
	Positive string `json:"positive"`
	Negative string `json:"negative"`
	Height   int    `json:"height"`
	Width    int    `json:"width"`
}

func NewGenerateRequest(prompt string) GenerateRequest {
	return GenerateRequest{
		Positive: prompt,
		Negative: "",
		Height:   imageSize,
		Width:    imageSize,
	}
}

type generateResponse struct {
	Images []string `json:"images"`
}

// Generator returns base64 encoded images for a prompt.
type Generator interface {
	Generate(ctx context.Context, request GenerateRequest) ([]string, error)
}

// HTTPGenerator calls the image service. The breaker fails fast while the
// service keeps failing; calls are never retried.
type HTTPGenerator struct {
	client  *http.Client
	baseURL string
	apiKey  string
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewHTTPGenerator(baseURL string, apiKey string, logger *zap.Logger) *HTTPGenerator {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "image-generator",
		Timeout: breakerOpenTimeout,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &HTTPGenerator{
		client:  &http.Client{Timeout: generateTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		breaker: breaker,
		logger:  logger,
	}
}

func (g *HTTPGenerator) Generate(ctx context.Context, request GenerateRequest) ([]string, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.generate(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	return result.([]string), nil
}

func (g *HTTPGenerator) generate(ctx context.Context, request GenerateRequest) ([]string, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("x-api-key", g.apiKey)

	response, err := g.client.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("call image generator: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUpstreamStatus, response.StatusCode)
	}

	var decoded generateResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode generate response: %w", err)
	}

	return decoded.Images, nil
}
