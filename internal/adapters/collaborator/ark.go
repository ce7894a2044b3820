package collaborator

import (
	"context"

	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"
)

// ark talks to a Volcengine Ark vision model endpoint.
type ark struct {
	client *arkruntime.Client
	model  string
}

func newArk(s Settings) *ark {
	var opts []arkruntime.ConfigOption
	if s.BaseURL != "" {
		opts = append(opts, arkruntime.WithBaseUrl(s.BaseURL))
	}
	return &ark{client: arkruntime.NewClientWithApiKey(s.APIKey, opts...), model: s.Model}
}

func (a *ark) complete(ctx context.Context, system, user string, clip Clip, maxTokens int) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, model.CreateChatCompletionRequest{
		Model: a.model,
		Messages: []*model.ChatCompletionMessage{
			{
				Role:    model.ChatMessageRoleSystem,
				Content: &model.ChatCompletionMessageContent{StringValue: volcengine.String(system)},
			},
			{
				Role: model.ChatMessageRoleUser,
				Content: &model.ChatCompletionMessageContent{
					ListValue: []*model.ChatCompletionMessageContentPart{
						{Type: model.ChatCompletionMessageContentPartTypeText, Text: user},
						{
							Type:     model.ChatCompletionMessageContentPartTypeImageURL,
							ImageURL: &model.ChatMessageImageURL{URL: clip.DataURL()},
						},
					},
				},
			},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil ||
		resp.Choices[0].Message.Content.StringValue == nil {
		return "", ErrEmptyResponse
	}
	return *resp.Choices[0].Message.Content.StringValue, nil
}
