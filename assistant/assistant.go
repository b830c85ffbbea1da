// Package assistant is the conversational command center. It answers free
// text questions about one event by letting the hosted model call read-only
// tools over the store, and it also synthesizes speech and incident summaries.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/drishti/backend/gemini"
)

// FallbackAnswer is returned whenever no answer could be produced
const FallbackAnswer = "I'm sorry, I was unable to process that request. Please try again."

// maxToolRounds bounds the call/response turns of one question
const maxToolRounds = 6

var ErrEmptyQuery = errors.New("query is required")

// Generator is the hosted model endpoint
type Generator interface {
	GenerateContent(ctx context.Context, model string, req *gemini.Request) (*gemini.Response, error)
}

// Config names the models and the voice
type Config struct {
	Model    string
	TTSModel string
	Voice    string
}

type Assistant struct {
	client Generator
	src    Source
	model  string
	tts    string
	voice  string
}

func New(client Generator, src Source, cfg Config) *Assistant {
	return &Assistant{
		client: client,
		src:    src,
		model:  cfg.Model,
		tts:    cfg.TTSModel,
		voice:  cfg.Voice,
	}
}

func systemPrompt() string {
	return `You are the voice assistant for the Drishti AI Security Platform.
Your name is Drishti. Be concise, professional, and helpful.
You have access to a suite of tools to provide real-time information about the security system for the current event.
You MUST use these tools to answer any user question about the system.
- Use 'getSystemStatus' for general overview questions.
- Use 'getIncidents' for questions about specific incidents or lists of incidents.
- Use 'getCameras' for questions about specific cameras or lists of cameras.
- Use 'getCommanderRoster' for questions about personnel.
- Use 'predictSystemBottlenecks' for questions about future predictions, forecasts, potential problems, or analyzing the current situation.
After using a tool, you MUST formulate a final, user-facing answer based on the tool's output.
If you don't know the answer or a tool fails, provide a helpful message stating what you can do.`
}

// Ask answers a question about the event. Model and tool failures are
// logged and turned into FallbackAnswer; only an empty query is an error.
func (a *Assistant) Ask(ctx context.Context, eventID, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}

	answer, err := a.converse(ctx, eventID, query)
	if err != nil {
		log.Printf("⚠️ Command center query failed for event %s: %v", eventID, err)
		return FallbackAnswer, nil
	}
	if answer == "" {
		return FallbackAnswer, nil
	}
	return answer, nil
}

func (a *Assistant) converse(ctx context.Context, eventID, query string) (string, error) {
	req := &gemini.Request{
		SystemInstruction: &gemini.Content{Parts: []gemini.Part{gemini.TextPart(systemPrompt())}},
		Contents:          []gemini.Content{{Role: "user", Parts: []gemini.Part{gemini.TextPart(query)}}},
		Tools:             Tools(),
	}

	for round := 0; round < maxToolRounds; round++ {
		resp, err := a.client.GenerateContent(ctx, a.model, req)
		if err != nil {
			return "", err
		}
		if len(resp.Candidates) == 0 {
			return "", gemini.ErrNoCandidate
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			return extractAnswer(resp.Text()), nil
		}

		req.Contents = append(req.Contents, resp.Candidates[0].Content)
		responses := make([]gemini.Part, 0, len(calls))
		for _, call := range calls {
			out, err := a.callTool(ctx, eventID, call)
			if err != nil {
				log.Printf("⚠️ Tool %s failed: %v", call.Name, err)
				out = map[string]string{"error": err.Error()}
			}
			responses = append(responses, gemini.Part{FunctionResponse: &gemini.FunctionResponse{
				Name:     call.Name,
				Response: out,
			}})
		}
		req.Contents = append(req.Contents, gemini.Content{Role: "user", Parts: responses})
	}
	return "", fmt.Errorf("no answer after %d tool rounds", maxToolRounds)
}

// extractAnswer accepts either plain text or an {"answer": "..."} object
func extractAnswer(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "{") {
		var out struct {
			Answer string `json:"answer"`
		}
		if err := json.Unmarshal([]byte(text), &out); err == nil && out.Answer != "" {
			return out.Answer
		}
	}
	return text
}
