package openai

import (
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/kasetlab/agrirag/pkg/ai"
)

// AdvisorOpenAIClient implements ai.AdvisorAIClient against OpenAI-compatible
// endpoints. It manages separate clients for embeddings and chat/completion
// tasks so the two concerns can be pointed at different providers.
//
// An AdvisorOpenAIClient should be created using NewAdvisorOpenAIClient.
type AdvisorOpenAIClient struct {
	embeddingModel string
	chatModel      string
	classifyModel  string

	embeddingURL string
	embeddingKey string
	chatURL      string
	chatKey      string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewAdvisorOpenAIClientParams defines the configuration parameters for
// creating a new AdvisorOpenAIClient.
//
// ChatModel is used for free-text answer synthesis, ClassifyModel for
// structured classification/verification calls, EmbeddingModel for embeddings.
type NewAdvisorOpenAIClientParams struct {
	EmbeddingModel string
	ChatModel      string
	ClassifyModel  string

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string
}

// NewAdvisorOpenAIClient creates an AdvisorOpenAIClient configured with the
// provided parameters.
//
// Example:
//
//	client := openai.NewAdvisorOpenAIClient(openai.NewAdvisorOpenAIClientParams{
//		EmbeddingModel: "text-embedding-3-small",
//		ChatModel:      "gpt-4o-mini",
//		ClassifyModel:  "gpt-4o-mini",
//		ChatKey:        os.Getenv("OPENAI_API_KEY"),
//		EmbeddingKey:   os.Getenv("OPENAI_API_KEY"),
//	})
func NewAdvisorOpenAIClient(
	params NewAdvisorOpenAIClientParams,
) *AdvisorOpenAIClient {
	chatClient := newOpenaiClient(params.ChatURL, params.ChatKey)
	embedClient := newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey)

	classifyModel := params.ClassifyModel
	if classifyModel == "" {
		classifyModel = params.ChatModel
	}

	return &AdvisorOpenAIClient{
		embeddingModel: params.EmbeddingModel,
		chatModel:      params.ChatModel,
		classifyModel:  classifyModel,

		chatURL:      params.ChatURL,
		chatKey:      params.ChatKey,
		embeddingURL: params.EmbeddingURL,
		embeddingKey: params.EmbeddingKey,

		ChatClient:      chatClient,
		EmbeddingClient: embedClient,
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

func (c *AdvisorOpenAIClient) modifyMetrics(delta ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()

	c.metrics.InputTokens += delta.InputTokens
	c.metrics.OutputTokens += delta.OutputTokens
	c.metrics.TotalTokens += delta.TotalTokens
	c.metrics.DurationMs += delta.DurationMs
}

// ResetMetrics zeroes the accumulated model metrics.
func (c *AdvisorOpenAIClient) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}

// GetMetrics returns a copy of the accumulated model metrics.
func (c *AdvisorOpenAIClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}
