package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"paperchat/internal/faults"
)

const (
	defaultChatTimeout     = 30 * time.Second
	defaultChatTemperature = 0.2
	defaultMaxTokens       = 1024
)

// OpenAIClient calls the OpenAI Chat Completions API.
type OpenAIClient struct {
	model  openai.ChatModel
	client *openai.Client
}

// NewOpenAIClient builds a client with defaults against api.openai.com.
func NewOpenAIClient(apiKey string, model openai.ChatModel) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	cli := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{
		model:  model,
		client: &cli,
	}, nil
}

func (c *OpenAIClient) Generate(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	return c.Chat(ctx, system, []Message{{Role: "user", Content: prompt}}, maxTokens)
}

func (c *OpenAIClient) Chat(ctx context.Context, system string, messages []Message, maxTokens int) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("nil openai client")
	}
	if len(messages) == 0 {
		return "", faults.Input("no messages")
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	reqCtx, cancel := context.WithTimeout(ctx, defaultChatTimeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(reqCtx, openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            buildMessages(system, messages),
		Temperature:         openai.Float(defaultChatTemperature),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return "", faults.Provider("openai chat call failed", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", faults.Provider("openai chat call failed", fmt.Errorf("no choices returned"))
	}
	return resp.Choices[0].Message.Content, nil
}

func buildMessages(system string, messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(system),
				},
			},
		})
	}
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(m.Content),
					},
				},
			})
		default:
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(m.Content),
					},
				},
			})
		}
	}
	return out
}
