package reason

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"qtune/internal/domain"
	"qtune/internal/tool"
)

// messagesAPI is the slice of the Anthropic client the proposer uses.
// Tests substitute a deterministic stub.
type messagesAPI interface {
	CreateMessages(ctx context.Context, request anthropic.MessagesRequest) (anthropic.MessagesResponse, error)
}

// AnthropicProposer drives the tool-use conversation with the Anthropic
// Messages API until a terminal answer or the per-candidate step ceiling.
type AnthropicProposer struct {
	api          messagesAPI
	dispatcher   *tool.Dispatcher
	model        string
	maxTokens    int
	maxToolSteps int
	log          *slog.Logger
}

// Options configure an AnthropicProposer.
type Options struct {
	APIKey       string
	Model        string
	MaxTokens    int
	MaxToolSteps int
}

// NewAnthropicProposer builds a proposer backed by the real API.
func NewAnthropicProposer(opts Options, dispatcher *tool.Dispatcher, log *slog.Logger) *AnthropicProposer {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1400
	}
	if opts.MaxToolSteps <= 0 {
		opts.MaxToolSteps = 30
	}
	if log == nil {
		log = slog.Default()
	}
	return &AnthropicProposer{
		api:          anthropic.NewClient(opts.APIKey),
		dispatcher:   dispatcher,
		model:        opts.Model,
		maxTokens:    opts.MaxTokens,
		maxToolSteps: opts.MaxToolSteps,
		log:          log.With("component", "reason"),
	}
}

// Propose runs the conversation loop. Tool calls are dispatched and fed
// back as tool results; one re-ask is allowed when the terminal answer
// fails candidate validation.
func (p *AnthropicProposer) Propose(ctx context.Context, req Request) (Candidate, error) {
	msgs := []anthropic.Message{anthropic.NewUserTextMessage(buildUserPrompt(req))}
	toolDefs := p.toolDefinitions()

	reasks := 1
	for step := 0; step < p.maxToolSteps; step++ {
		resp, err := p.api.CreateMessages(ctx, anthropic.MessagesRequest{
			Model:     anthropic.Model(p.model),
			System:    systemPrompt,
			Messages:  msgs,
			MaxTokens: p.maxTokens,
			Tools:     toolDefs,
		})
		if err != nil {
			return Candidate{}, domain.ErrReasoning("reasoning service: %v", err)
		}

		msgs = append(msgs, anthropic.Message{Role: anthropic.RoleAssistant, Content: resp.Content})

		if resp.StopReason == anthropic.MessagesStopReasonToolUse {
			results := p.dispatchCalls(ctx, resp.Content)
			if len(results) == 0 {
				return Candidate{}, domain.ErrReasoning("tool_use stop with no tool calls")
			}
			msgs = append(msgs, anthropic.Message{Role: anthropic.RoleUser, Content: results})
			continue
		}

		text := collectText(resp.Content)
		candidate, err := parseAnswer(text)
		if err == nil {
			return candidate, nil
		}

		if reasks > 0 {
			reasks--
			p.log.Warn("invalid answer from reasoning service, re-asking", "error", err)
			msgs = append(msgs, anthropic.NewUserTextMessage(
				"Your answer was invalid: "+err.Error()+
					". Reply with exactly one SELECT statement in a single ```sql fenced block, followed by a short rationale."))
			continue
		}
		return Candidate{}, err
	}

	return Candidate{}, domain.ErrReasoning("tool step budget (%d) exhausted without a terminal answer", p.maxToolSteps)
}

func (p *AnthropicProposer) toolDefinitions() []anthropic.ToolDefinition {
	defs := p.dispatcher.Definitions()
	out := make([]anthropic.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, anthropic.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema(),
		})
	}
	return out
}

func (p *AnthropicProposer) dispatchCalls(ctx context.Context, content []anthropic.MessageContent) []anthropic.MessageContent {
	var results []anthropic.MessageContent
	for _, c := range content {
		if c.Type != anthropic.MessagesContentTypeToolUse || c.MessageContentToolUse == nil {
			continue
		}
		call := c.MessageContentToolUse

		args := map[string]any{}
		if len(call.Input) > 0 {
			// Malformed arguments become an empty map; the dispatcher's
			// schema validation reports what is missing.
			_ = json.Unmarshal(call.Input, &args)
		}

		res := p.dispatcher.Invoke(ctx, call.Name, args)
		p.log.Debug("relayed tool call", "tool", call.Name, "ok", res.OK)
		results = append(results, anthropic.NewToolResultMessageContent(call.ID, res.JSON(), !res.OK))
	}
	return results
}

func collectText(content []anthropic.MessageContent) string {
	var chunks []string
	for _, c := range content {
		if c.Type == anthropic.MessagesContentTypeText {
			if t := c.GetText(); strings.TrimSpace(t) != "" {
				chunks = append(chunks, t)
			}
		}
	}
	return strings.Join(chunks, "\n")
}

// parseAnswer extracts and validates the candidate from a terminal
// answer. The rationale is the answer text without the SQL block.
func parseAnswer(text string) (Candidate, error) {
	sqlText, ok := ExtractSQL(text)
	if !ok {
		return Candidate{}, domain.ErrCandidate("no SQL found in answer")
	}
	if err := ValidateCandidate(sqlText); err != nil {
		return Candidate{}, err
	}
	return Candidate{SQL: sqlText, Rationale: rationaleOf(text)}, nil
}

func rationaleOf(text string) string {
	out := sqlBlockRe.ReplaceAllString(text, "")
	return strings.TrimSpace(out)
}
