// Package agent runs LLM-backed tools. An agent tool is a chat completion
// loop that can call sibling tools and upstream MCP tools until the model
// produces a final answer.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"
	"github.com/openai/openai-go/v3/shared/constant"

	"github.com/a5c-ai/mcpml/internal/config"
	"github.com/a5c-ai/mcpml/internal/errs"
	"github.com/a5c-ai/mcpml/internal/mcp"
)

// AgentTypeSimple is the only built-in agent type. Unknown types fall back
// to it with a warning so configs written for richer runtimes still work.
const AgentTypeSimple = "simple"

// ToolCaller executes configured tools by name. The registry implements it.
type ToolCaller interface {
	Call(ctx context.Context, name string, args map[string]any) (any, error)
	InputSchema(tool config.Tool) (properties map[string]any, required []string)
}

// Service runs agent tools against a chat completions backend.
type Service struct {
	cfg    *config.Config
	tools  ToolCaller
	client openai.Client
}

// New builds the agent service, constructing the model client from the
// environment.
func New(cfg *config.Config, tools ToolCaller) (*Service, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	return &Service{cfg: cfg, tools: tools, client: client}, nil
}

// Run executes one agent tool to completion.
func (s *Service) Run(ctx context.Context, tool config.Tool, input string) (string, error) {
	if tool.AgentType != "" && tool.AgentType != AgentTypeSimple {
		slog.Warn("unknown agent_type, using simple agent", "tool", tool.Name, "agent_type", tool.AgentType)
	}

	model := tool.Model
	if model == "" {
		model = config.DefaultModel
	}
	maxTurns := tool.MaxTurns
	if maxTurns <= 0 {
		maxTurns = config.DefaultMaxTurns
	}

	mcpSvc := mcp.New(s.cfg.ServersFor(tool), s.cfg.Settings.MCPTimeout)
	defs, dispatch, err := s.collectTools(ctx, tool, mcpSvc)
	if err != nil {
		return "", err
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(tool.Instructions),
			openai.UserMessage(input),
		},
	}
	if len(defs) > 0 {
		params.Tools = defs
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String("auto"),
		}
	}

	for turn := 0; turn < maxTurns; turn++ {
		completion, err := s.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", errs.Wrapf(err, "Agent %q request failed.", tool.Name)
		}
		if len(completion.Choices) == 0 {
			return "", errs.Error{Reason: fmt.Sprintf("Agent %q got an empty response from the model.", tool.Name)}
		}
		msg := completion.Choices[0].Message

		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}

		params.Messages = append(params.Messages, assistantMessage(msg))
		for _, tc := range msg.ToolCalls {
			if tc.Type != "function" || tc.Function.Name == "" {
				continue
			}
			slog.Debug("agent tool call", "agent", tool.Name, "tool", tc.Function.Name, "turn", turn)
			output := dispatch(ctx, tc.Function.Name, tc.Function.Arguments)
			params.Messages = append(params.Messages, openai.ToolMessage(output, tc.ID))
		}
	}

	return "", errs.Error{Reason: fmt.Sprintf("Agent %q did not finish within %d turns.", tool.Name, maxTurns)}
}

type dispatchFunc func(ctx context.Context, name, rawArgs string) string

// collectTools gathers the function definitions visible to an agent: its
// sibling tools plus the tools of its allowed upstream servers, namespaced
// as <server>_<tool>. The returned dispatch routes a call to whichever side
// owns the name; errors become tool output so the model can react to them.
func (s *Service) collectTools(ctx context.Context, tool config.Tool, mcpSvc *mcp.Service) ([]openai.ChatCompletionToolUnionParam, dispatchFunc, error) {
	var defs []openai.ChatCompletionToolUnionParam
	local := map[string]bool{}

	for _, sibling := range s.cfg.ToolsFor(tool) {
		properties, required := s.tools.InputSchema(sibling)
		defs = append(defs, functionDef(sibling.Name, sibling.Description, properties, required))
		local[sibling.Name] = true
	}

	if len(mcpSvc.Servers()) > 0 {
		upstream, err := mcpSvc.Tools(ctx)
		if err != nil {
			return nil, nil, err
		}
		for server, tools := range upstream {
			for _, t := range tools {
				defs = append(defs, functionDef(
					mcp.FullName(server, t.Name),
					t.Description,
					t.InputSchema.Properties,
					t.InputSchema.Required,
				))
			}
		}
	}

	dispatch := func(ctx context.Context, name, rawArgs string) string {
		var args map[string]any
		if rawArgs != "" {
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				return fmt.Sprintf("error: invalid arguments: %v", err)
			}
		}
		if local[name] {
			result, err := s.tools.Call(ctx, name, args)
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			return stringify(result)
		}
		result, err := mcpSvc.CallTool(ctx, name, args)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return result
	}

	return defs, dispatch, nil
}

func functionDef(name, description string, properties map[string]any, required []string) openai.ChatCompletionToolUnionParam {
	parameters := shared.FunctionParameters{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		parameters["required"] = required
	}
	def := shared.FunctionDefinitionParam{
		Name:       name,
		Parameters: parameters,
	}
	if description != "" {
		def.Description = openai.String(description)
	}
	return openai.ChatCompletionFunctionTool(def)
}

// assistantMessage converts a completion message back into a request param
// so the tool call round-trip stays in the conversation.
func assistantMessage(msg openai.ChatCompletionMessage) openai.ChatCompletionMessageParamUnion {
	asst := openai.ChatCompletionAssistantMessageParam{
		Role: constant.Assistant("assistant"),
	}
	if msg.Content != "" {
		asst.Content.OfString = param.NewOpt(msg.Content)
	}
	for _, tc := range msg.ToolCalls {
		if tc.Type != "function" {
			continue
		}
		asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID:   tc.ID,
				Type: constant.Function("function"),
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
}

func stringify(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
