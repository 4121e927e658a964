// Package briefing writes the short daily message shown to an employee
// after login, using an Azure OpenAI chat deployment.
package briefing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/directory"
	"github.com/rs/zerolog"
)

const defaultMaxTokens = 200

// ErrNoCompletion is returned when the deployment answers without text.
var ErrNoCompletion = errors.New("no completion received from LLM")

// chatClient is the part of azopenai.Client the summarizer needs.
type chatClient interface {
	GetChatCompletions(ctx context.Context, body azopenai.ChatCompletionsOptions, options *azopenai.GetChatCompletionsOptions) (azopenai.GetChatCompletionsResponse, error)
}

type AzureSummarizer struct {
	client     chatClient
	deployment string
	maxTokens  int32
	log        zerolog.Logger
}

type Options struct {
	Endpoint   string
	APIKey     string
	Deployment string
	MaxTokens  int32
	Logger     zerolog.Logger
}

// NewAzureSummarizer creates a summarizer bound to one chat deployment.
func NewAzureSummarizer(opts Options) (*AzureSummarizer, error) {
	if opts.Endpoint == "" || opts.Deployment == "" || opts.APIKey == "" {
		return nil, errors.New("briefing: endpoint, deployment and api key are required")
	}
	client, err := azopenai.NewClientWithKeyCredential(opts.Endpoint, azcore.NewKeyCredential(opts.APIKey), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating Azure OpenAI client: %w", err)
	}
	return newSummarizer(client, opts), nil
}

func newSummarizer(client chatClient, opts Options) *AzureSummarizer {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &AzureSummarizer{
		client:     client,
		deployment: opts.Deployment,
		maxTokens:  maxTokens,
		log:        opts.Logger.With().Str("component", "briefing").Logger(),
	}
}

// Brief asks the deployment for the employee's daily briefing.
func (s *AzureSummarizer) Brief(ctx context.Context, e directory.Employee, notifications []directory.Notification) (string, error) {
	resp, err := s.client.GetChatCompletions(
		ctx,
		azopenai.ChatCompletionsOptions{
			DeploymentName: to.Ptr(s.deployment),
			MaxTokens:      to.Ptr(s.maxTokens),
			Messages: []azopenai.ChatRequestMessageClassification{
				&azopenai.ChatRequestUserMessage{
					Content: azopenai.NewChatRequestUserMessageContent(Prompt(e, notifications)),
				},
			},
		},
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) > 0 && resp.Choices[0].Message != nil && resp.Choices[0].Message.Content != nil {
		text := strings.TrimSpace(*resp.Choices[0].Message.Content)
		if text != "" {
			s.log.Debug().Str("employee", e.ID).Int("chars", len(text)).Msg("briefing generated")
			return text, nil
		}
	}
	return "", ErrNoCompletion
}

// Prompt builds the instruction sent to the model.
func Prompt(e directory.Employee, notifications []directory.Notification) string {
	var b strings.Builder
	b.WriteString("You are a helpful workplace assistant system called \"InfoPoint\".\n")
	b.WriteString("Generate a short, friendly, and professional daily briefing message for an employee.\n\n")
	fmt.Fprintf(&b, "Employee: %s (%s).\n", e.FullName(), e.Position)
	fmt.Fprintf(&b, "Pending Tasks/Notifications: %d.\n\n", len(notifications))

	b.WriteString("Details of notifications:\n")
	for _, n := range notifications {
		fmt.Fprintf(&b, "- Type: %s, Title: %s\n", n.Type, n.Title)
	}

	b.WriteString("\nRules:\n")
	b.WriteString("1. If they have Urgent or Medical notifications, emphasize the importance gently.\n")
	b.WriteString("2. Keep it under 50 words.\n")
	b.WriteString("3. Be motivating but professional.\n")
	b.WriteString("4. Return ONLY the message text.\n")
	return b.String()
}
