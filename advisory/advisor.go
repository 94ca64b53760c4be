package advisory

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"go-cropwatch/types"
)

// Advisor asks OpenAI for a short preventive-measures note to append
// to a freshly created outbreak alert. Purely additive: alert
// creation never waits on it and never fails because of it.
type Advisor struct {
	client *openai.Client
}

func NewAdvisor(apiKey string) *Advisor {
	return &Advisor{client: openai.NewClient(apiKey)}
}

// Advise generates the advisory text for one alert.
func (a *Advisor) Advise(ctx context.Context, alert types.Alert) (string, error) {
	prompt := fmt.Sprintf(
		"A plant disease outbreak alert was just raised: %q in %s, %d reported cases within a %.1f km radius, severity %s. "+
			"Write practical preventive guidance for farmers in the affected area (2-3 sentences maximum). "+
			"Do not repeat the case numbers; focus on what to do.",
		alert.Disease, alert.Province, alert.CaseCount, alert.RadiusKM, alert.Severity,
	)

	resp, err := a.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: openai.GPT4oMini,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "You are an agricultural extension assistant that gives farmers concise, actionable disease-prevention advice.",
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   150,
			N:           1,
			Temperature: 0.5, // Lower temperature for more focused advice
		},
	)
	if err != nil {
		return "", fmt.Errorf("openai chat completion error: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai returned empty response or choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
