package toolgateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/voicerelay/ent"
	openai "github.com/sashabaranov/go-openai"
)

// LLMChoiceConfig configures the implicit tool-choice path, used when a
// turn's utterance isn't an explicit slash command.
type LLMChoiceConfig struct {
	Model       string
	SystemPrompt string
}

// Choice is one tool the LLM elected to call for a turn. A turn with no
// tool call at all yields a nil Choice alongside the assistant's text reply.
type Choice struct {
	ToolName string
	Args     map[string]any
}

// ChooseTool asks the LLM, given the caller's tools and the turn's
// utterance, whether to call a tool. tools is the tenant's tool catalog
// converted to the OpenAI function-calling schema.
func ChooseTool(ctx context.Context, client *openai.Client, cfg LLMChoiceConfig, tools []*ent.Tool, utterance string) (*Choice, string, error) {
	openaiTools := make([]openai.Tool, len(tools))
	for i, t := range tools {
		openaiTools[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		}
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: cfg.SystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: utterance},
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    cfg.Model,
		Messages: messages,
		Tools:    openaiTools,
	})
	if err != nil {
		return nil, "", fmt.Errorf("toolgateway: llm tool choice: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, "", fmt.Errorf("toolgateway: llm returned no choices")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) == 0 {
		return nil, msg.Content, nil
	}

	call := msg.ToolCalls[0]
	var args map[string]any
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return nil, "", fmt.Errorf("toolgateway: parse llm tool arguments: %w", err)
	}

	return &Choice{ToolName: call.Function.Name, Args: args}, msg.Content, nil
}
