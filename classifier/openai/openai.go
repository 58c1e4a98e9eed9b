// Package openai implements the classifier contracts on top of the
// OpenAI chat completions API with structured (JSON schema) outputs.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/wnakano/luma-appointments-qa/classifier"
	"github.com/wnakano/luma-appointments-qa/match"
	"github.com/wnakano/luma-appointments-qa/repository"
)

const defaultModel = "gpt-4o-mini"

// historyWindow bounds how many prior exchanges are rendered into
// classification prompts.
const historyWindow = 6

type options struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Option configures the client.
type Option func(*options)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.APIKey = key
	}
}

// WithBaseURL sets a base URL override, for gateways and compatible
// providers.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.BaseURL = url
	}
}

// WithModel sets the chat model name.
func WithModel(model string) Option {
	return func(o *options) {
		o.Model = model
	}
}

// Client implements classifier.IntentClassifier,
// classifier.ConfirmationClassifier, classifier.Answerer and
// match.SemanticMatcher against the OpenAI API.
type Client struct {
	client openai.Client
	model  string
}

// New creates a client.
func New(opts ...Option) *Client {
	o := &options{Model: defaultModel}
	for _, opt := range opts {
		opt(o)
	}
	var clientOpts []openaiopt.RequestOption
	if o.APIKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.APIKey))
	}
	if o.BaseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.BaseURL))
	}
	return &Client{
		client: openai.NewClient(clientOpts...),
		model:  o.Model,
	}
}

// complete issues one structured-output chat completion and decodes
// the JSON reply into out.
func (c *Client) complete(ctx context.Context, system, user, schemaName string, schema map[string]any, out any) error {
	req := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schemaName,
					Schema: schema,
					Strict: openai.Bool(true),
				},
			},
		},
	}
	completion, err := c.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return fmt.Errorf("chat completion: empty choices")
	}
	content := completion.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("decode %s response: %w", schemaName, err)
	}
	return nil
}

const intentSystemPrompt = `You classify messages sent to a medical appointment assistant.
Classify the user's intent as one of:
- general_qa: a general question about the clinic or services
- list_appointments: the user wants to see their appointments
- confirm_appointment: the user wants to confirm an appointment
- cancel_appointment: the user wants to cancel an appointment
- user_information: the message mainly supplies identity details
- appointment_information: the message mainly supplies appointment details
Also extract, when present, the user's full name, phone number and
date of birth (YYYY-MM-DD), and any appointment details: doctor name,
clinic name, date, specialty. Leave absent values as empty strings.
Report a confidence between 0 and 1.`

var intentSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"intent": map[string]any{
			"type": "string",
			"enum": []string{
				"general_qa", "list_appointments", "confirm_appointment",
				"cancel_appointment", "user_information", "appointment_information",
			},
		},
		"confidence": map[string]any{"type": "number"},
		"verification_info": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"full_name":     map[string]any{"type": "string"},
				"phone_number":  map[string]any{"type": "string"},
				"date_of_birth": map[string]any{"type": "string"},
			},
			"required":             []string{"full_name", "phone_number", "date_of_birth"},
			"additionalProperties": false,
		},
		"appointment_info": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"doctor_full_name": map[string]any{"type": "string"},
				"clinic_name":      map[string]any{"type": "string"},
				"appointment_date": map[string]any{"type": "string"},
				"specialty":        map[string]any{"type": "string"},
			},
			"required":             []string{"doctor_full_name", "clinic_name", "appointment_date", "specialty"},
			"additionalProperties": false,
		},
		"raw_query": map[string]any{"type": "string"},
	},
	"required":             []string{"intent", "confidence", "verification_info", "appointment_info", "raw_query"},
	"additionalProperties": false,
}

// ClassifyIntent implements classifier.IntentClassifier.
func (c *Client) ClassifyIntent(ctx context.Context, userMessage string, history []classifier.Exchange) (*classifier.IntentResult, error) {
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Recent conversation:\n")
		sb.WriteString(renderHistory(history))
		sb.WriteString("\n")
	}
	sb.WriteString("Message: ")
	sb.WriteString(userMessage)

	var result classifier.IntentResult
	if err := c.complete(ctx, intentSystemPrompt, sb.String(), "intent_classification", intentSchema, &result); err != nil {
		return nil, err
	}
	if !result.Intent.Valid() {
		return nil, fmt.Errorf("intent classification returned unknown intent %q", result.Intent)
	}
	if result.RawQuery == "" {
		result.RawQuery = userMessage
	}
	return &result, nil
}

const confirmationSystemPrompt = `You read a patient's reply to a yes/no question from a medical
appointment assistant. Classify the reply as:
- confirm: the patient agrees to proceed
- reject: the patient declines
- unclear: the reply does not answer the question
Report a confidence between 0 and 1 and a one-sentence reasoning.`

var confirmationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"intent": map[string]any{
			"type": "string",
			"enum": []string{"confirm", "reject", "unclear"},
		},
		"confidence": map[string]any{"type": "number"},
		"reasoning":  map[string]any{"type": "string"},
	},
	"required":             []string{"intent", "confidence", "reasoning"},
	"additionalProperties": false,
}

// ClassifyConfirmation implements classifier.ConfirmationClassifier.
func (c *Client) ClassifyConfirmation(ctx context.Context, userMessage, question string) (*classifier.ConfirmationResult, error) {
	user := fmt.Sprintf("Question asked: %s\nPatient's reply: %s", question, userMessage)
	var result classifier.ConfirmationResult
	if err := c.complete(ctx, confirmationSystemPrompt, user, "confirmation_classification", confirmationSchema, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

const answerSystemPrompt = `You are an assistant for a medical appointment service. Answer the
patient's question briefly and helpfully. If the question needs
information you do not have, say so and suggest contacting the clinic.
Never give medical advice.`

var answerSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"answer": map[string]any{"type": "string"},
	},
	"required":             []string{"answer"},
	"additionalProperties": false,
}

// Answer implements classifier.Answerer.
func (c *Client) Answer(ctx context.Context, userMessage string, history []classifier.Exchange) (string, error) {
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Recent conversation:\n")
		sb.WriteString(renderHistory(history))
		sb.WriteString("\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(userMessage)

	var result struct {
		Answer string `json:"answer"`
	}
	if err := c.complete(ctx, answerSystemPrompt, sb.String(), "question_answer", answerSchema, &result); err != nil {
		return "", err
	}
	return result.Answer, nil
}

const semanticMatchSystemPrompt = `You match a patient's partial description of an appointment against
their scheduled appointments. Pick the single best matching
appointment id, or report that none matches. Report a confidence
between 0 and 1 and a one-sentence reasoning.`

var semanticMatchSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"match_found": map[string]any{"type": "boolean"},
		"confidence":  map[string]any{"type": "number"},
		"matched_id":  map[string]any{"type": "string"},
		"reasoning":   map[string]any{"type": "string"},
	},
	"required":             []string{"match_found", "confidence", "matched_id", "reasoning"},
	"additionalProperties": false,
}

// MatchAppointment implements match.SemanticMatcher.
func (c *Client) MatchAppointment(ctx context.Context, criteria match.Criteria, candidates []repository.Appointment) (*match.SemanticResult, error) {
	var sb strings.Builder
	sb.WriteString("Description provided by the patient:\n")
	if criteria.DoctorFullName != "" {
		fmt.Fprintf(&sb, "- doctor: %s\n", criteria.DoctorFullName)
	}
	if criteria.ClinicName != "" {
		fmt.Fprintf(&sb, "- clinic: %s\n", criteria.ClinicName)
	}
	if criteria.AppointmentDate != "" {
		fmt.Fprintf(&sb, "- date: %s\n", criteria.AppointmentDate)
	}
	if criteria.Specialty != "" {
		fmt.Fprintf(&sb, "- specialty: %s\n", criteria.Specialty)
	}
	sb.WriteString("Scheduled appointments:\n")
	for _, appt := range candidates {
		fmt.Fprintf(&sb, "- id %s: %s\n", appt.ID, match.Describe(appt))
	}

	var result match.SemanticResult
	if err := c.complete(ctx, semanticMatchSystemPrompt, sb.String(), "appointment_match", semanticMatchSchema, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func renderHistory(history []classifier.Exchange) string {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	var sb strings.Builder
	for _, ex := range history {
		fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", ex.User, ex.System)
	}
	return sb.String()
}
