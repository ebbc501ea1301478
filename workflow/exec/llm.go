package exec

import (
	"context"

	"github.com/nbaghiro/flowmaestro/workflow"
	"github.com/nbaghiro/flowmaestro/workflow/model"
)

// handleLLM runs one chat completion against the registry's chat model.
//
// Config:
//   - prompt: user message (required)
//   - system: optional system message
//   - model: optional model name hint recorded in the output
//
// Output: content, model, and any tool calls the model requested. Token
// usage is reported through signals so the engine accrues real cost.
func (r *Registry) handleLLM(ctx context.Context, req Request) workflow.Result {
	return r.chatCompletion(ctx, req, "")
}

// handleVision is the chat-model path for image-bearing prompts. The image
// reference travels in the prompt; multimodal attachment is the chat
// adapter's concern.
//
// Config: prompt (required), imageUrl appended to the prompt when present.
func (r *Registry) handleVision(ctx context.Context, req Request) workflow.Result {
	if imageURL, ok := req.Config["imageUrl"].(string); ok && imageURL != "" {
		prompt, _ := req.Config["prompt"].(string)
		req.Config["prompt"] = prompt + "\n\nImage: " + imageURL
	}
	return r.chatCompletion(ctx, req, "")
}

// handleAgent runs an agent-flavored completion: like llm but with a default
// system prompt granting the model its agent role.
func (r *Registry) handleAgent(ctx context.Context, req Request) workflow.Result {
	return r.chatCompletion(ctx, req, "You are an autonomous agent executing one step of a workflow. Complete the task described by the user and reply with the result.")
}

func (r *Registry) chatCompletion(ctx context.Context, req Request, defaultSystem string) workflow.Result {
	if r.chat == nil {
		return failf("%s %s: no chat model configured", req.Meta.NodeID, req.Meta.NodeName)
	}

	prompt, _ := req.Config["prompt"].(string)
	if prompt == "" {
		return failf("node %s: prompt is required", req.Meta.NodeID)
	}

	var messages []model.Message
	system, _ := req.Config["system"].(string)
	if system == "" {
		system = defaultSystem
	}
	if system != "" {
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: system})
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: prompt})

	out, err := r.chat.Chat(ctx, messages, nil)
	if err != nil {
		return failf("node %s: chat completion: %v", req.Meta.NodeID, err)
	}

	output := map[string]any{
		"content": out.Text,
		"model":   out.Usage.Model,
	}
	if len(out.ToolCalls) > 0 {
		calls := make([]any, 0, len(out.ToolCalls))
		for _, call := range out.ToolCalls {
			calls = append(calls, map[string]any{"name": call.Name, "input": call.Input})
		}
		output["toolCalls"] = calls
	}

	result := workflow.Result{Success: true, Output: output}
	if out.Usage.InputTokens > 0 || out.Usage.OutputTokens > 0 {
		result.Signals = &workflow.Signals{
			TokenUsage: &workflow.TokenUsage{
				PromptTokens:     int(out.Usage.InputTokens),
				CompletionTokens: int(out.Usage.OutputTokens),
				Model:            out.Usage.Model,
			},
		}
	}
	return result
}
