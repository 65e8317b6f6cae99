package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"trivia-solo-service/internal/domain"
)

const submitTool = "submit_trivia"

// TriviaGenerator asks a chat model for multiple choice questions through a forced tool call.
type TriviaGenerator struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewTriviaGenerator(apiKey, model string, logger *zap.Logger) *TriviaGenerator {
	return NewTriviaGeneratorWithConfig(openai.DefaultConfig(apiKey), model, logger)
}

// NewTriviaGeneratorWithConfig allows pointing the client at another base URL.
func NewTriviaGeneratorWithConfig(cfg openai.ClientConfig, model string, logger *zap.Logger) *TriviaGenerator {
	if model == "" {
		model = openai.GPT4o
	}
	return &TriviaGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

func (g *TriviaGenerator) GenerateTrivia(ctx context.Context, topic string, count int) (domain.Trivia, error) {
	g.logger.Debug("requesting trivia", zap.String("topic", topic), zap.Int("count", count))

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a trivia host. Write fun multiple choice trivia questions with one correct answer each.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(topic, count),
			},
		},
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        submitTool,
				Description: "Submit generated trivia questions",
				Parameters:  triviaSchema,
			},
		}},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: submitTool},
		},
	})
	if err != nil {
		return domain.Trivia{}, fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Trivia{}, fmt.Errorf("%w: no choices", domain.ErrMalformedResponse)
	}
	calls := resp.Choices[0].Message.ToolCalls
	if len(calls) == 0 {
		return domain.Trivia{}, fmt.Errorf("%w: no tool calls", domain.ErrMalformedResponse)
	}
	if calls[0].Function.Name != submitTool {
		return domain.Trivia{}, fmt.Errorf("%w: unexpected tool call %s", domain.ErrMalformedResponse, calls[0].Function.Name)
	}
	return ParseToolArguments(calls[0].Function.Arguments)
}

// ParseToolArguments converts submit_trivia arguments into validated trivia.
func ParseToolArguments(arguments string) (domain.Trivia, error) {
	var args struct {
		Questions []struct {
			Text          string   `json:"text"`
			Options       []string `json:"options"`
			CorrectAnswer int      `json:"correct_answer"`
		} `json:"questions"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return domain.Trivia{}, fmt.Errorf("%w: parse tool arguments: %v", domain.ErrMalformedResponse, err)
	}

	trivia := domain.Trivia{Questions: make([]domain.Question, 0, len(args.Questions))}
	for i, q := range args.Questions {
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			return domain.Trivia{}, fmt.Errorf("%w: question %d correct answer %d out of range", domain.ErrMalformedResponse, i, q.CorrectAnswer)
		}
		answers := make([]domain.Answer, len(q.Options))
		for j, opt := range q.Options {
			answers[j] = domain.Answer{Text: strings.TrimSpace(opt), IsCorrect: j == q.CorrectAnswer}
		}
		trivia.Questions = append(trivia.Questions, domain.Question{Text: strings.TrimSpace(q.Text), Answers: answers})
	}
	if err := trivia.Validate(); err != nil {
		return domain.Trivia{}, err
	}
	return trivia, nil
}

func buildPrompt(topic string, count int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Generate %d trivia questions about: %s\n\n", count, topic))
	sb.WriteString("Requirements:\n")
	sb.WriteString("- Each question has 4 options, exactly one of them correct\n")
	sb.WriteString("- Keep questions short enough to read within a few seconds\n")
	sb.WriteString("- Do not give the answer away in the question text\n")
	sb.WriteString("- Use the " + submitTool + " tool to return your questions\n")
	return sb.String()
}

var triviaSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"questions": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"text": map[string]interface{}{
						"type":        "string",
						"description": "The question text",
					},
					"options": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Array of 4 multiple choice options",
					},
					"correct_answer": map[string]interface{}{
						"type":        "integer",
						"description": "0-based index of the correct option",
					},
				},
				"required": []string{"text", "options", "correct_answer"},
			},
		},
	},
	"required": []string{"questions"},
}
