package services

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/insightpilot/insight-engine/pkg/llm"
	"github.com/insightpilot/insight-engine/pkg/models"
	"github.com/insightpilot/insight-engine/pkg/queryexpr"
)

//go:embed exemplars.yaml
var bootstrapExemplarsYAML []byte

// TranslationResult is the structured output of one translation.
type TranslationResult struct {
	QueryType   models.QueryType
	Expression  string
	Explanation string
}

// ExemplarProvider supplies the current few-shot exemplar set. Implemented by
// the feedback optimizer; the translator only ever reads.
type ExemplarProvider interface {
	Current() *models.ExemplarSet
}

// Translator maps a natural-language question onto the restricted query
// grammar using schema context and few-shot exemplars.
type Translator interface {
	Translate(ctx context.Context, schema *models.SchemaDescriptor, nlText string) (*TranslationResult, error)
}

type translator struct {
	client      llm.LLMClient
	exemplars   ExemplarProvider
	temperature float64
	logger      *zap.Logger
}

// NewTranslator creates a Translator. exemplars may be nil, in which case
// only the bootstrap exemplars are used.
func NewTranslator(client llm.LLMClient, exemplars ExemplarProvider, temperature float64, logger *zap.Logger) Translator {
	return &translator{
		client:      client,
		exemplars:   exemplars,
		temperature: temperature,
		logger:      logger.Named("translator"),
	}
}

var _ Translator = (*translator)(nil)

const translatorSystemPrompt = `You translate natural-language questions about a tabular dataset into a restricted query language.

The query language supports only:
  SELECT col [, col ...] | SELECT fn(col) with fn in count, sum, avg, min, max | SELECT *
  WHERE col op value with op in =, !=, >, >=, <, <=, CONTAINS, combined with AND/OR
  GROUP BY col
  ORDER BY col [ASC|DESC]
  LIMIT n

Respond with a single JSON object and nothing else:
{"query_type": "...", "expression": "...", "explanation": "..."}

query_type must be one of: aggregation, filtering, sorting, grouping, statistical, visualization.
expression must use only columns from the provided schema.`

// maxPromptExemplars bounds how many few-shot examples go into one prompt.
const maxPromptExemplars = 8

// rawTranslation is the JSON contract expected from the model.
type rawTranslation struct {
	QueryType   string `json:"query_type"`
	Expression  string `json:"expression"`
	Explanation string `json:"explanation"`
}

// Translate issues a structured generation call and validates the output.
// One retry with an augmented instruction is made on validation failure;
// a second failure is terminal.
func (t *translator) Translate(ctx context.Context, schema *models.SchemaDescriptor, nlText string) (*TranslationResult, error) {
	prompt := t.buildPrompt(schema, nlText, "")

	result, failure := t.tryOnce(ctx, prompt, schema)
	if failure == "" {
		return result, nil
	}

	t.logger.Warn("translation attempt failed, retrying",
		zap.String("reason", failure),
		zap.String("question", nlText))

	retryPrompt := t.buildPrompt(schema, nlText, failure)
	result, failure = t.tryOnce(ctx, retryPrompt, schema)
	if failure == "" {
		return result, nil
	}

	return nil, &TranslationError{Message: failure}
}

// tryOnce performs one generation attempt. It returns a non-empty failure
// reason instead of a result when the output breaks the contract.
func (t *translator) tryOnce(ctx context.Context, prompt string, schema *models.SchemaDescriptor) (*TranslationResult, string) {
	response, err := t.client.GenerateResponse(ctx, prompt, translatorSystemPrompt, t.temperature)
	if err != nil {
		return nil, fmt.Sprintf("model call failed: %v", err)
	}

	raw, err := llm.ParseJSONResponse[rawTranslation](response)
	if err != nil {
		return nil, "response was not a valid JSON object"
	}

	expression := strings.TrimSpace(raw.Expression)
	if expression == "" {
		return nil, "expression was empty"
	}

	plan, err := queryexpr.Parse(expression)
	if err != nil {
		return nil, fmt.Sprintf("expression does not fit the query language: %v", err)
	}
	if err := queryexpr.Validate(plan, schema); err != nil {
		return nil, fmt.Sprintf("expression is invalid for this dataset: %v", err)
	}

	return &TranslationResult{
		QueryType:   models.ParseQueryType(strings.ToLower(strings.TrimSpace(raw.QueryType))),
		Expression:  expression,
		Explanation: strings.TrimSpace(raw.Explanation),
	}, ""
}

func (t *translator) buildPrompt(schema *models.SchemaDescriptor, nlText, previousFailure string) string {
	var sb strings.Builder

	sb.WriteString("Dataset schema:\n")
	sb.WriteString(FormatSchemaInfo(schema))
	sb.WriteString("\n")

	exemplars := t.promptExemplars()
	if len(exemplars) > 0 {
		sb.WriteString("\nExamples of good translations:\n")
		for _, ex := range exemplars {
			fmt.Fprintf(&sb, "Schema: %s\nQuestion: %s\nExpression: %s\n\n", ex.SchemaInfo, ex.NLText, ex.Expression)
		}
	}

	if previousFailure != "" {
		fmt.Fprintf(&sb, "\nYour previous answer was rejected: %s\nProduce a corrected answer that satisfies the contract exactly.\n", previousFailure)
	}

	fmt.Fprintf(&sb, "\nQuestion: %s\n", nlText)
	return sb.String()
}

// promptExemplars merges optimizer exemplars with the bootstrap set, most
// recent feedback first, bounded to maxPromptExemplars.
func (t *translator) promptExemplars() []models.FeedbackExample {
	var out []models.FeedbackExample
	if t.exemplars != nil {
		if set := t.exemplars.Current(); set != nil {
			out = append(out, set.Examples...)
		}
	}
	if len(out) < maxPromptExemplars {
		out = append(out, bootstrapExemplars()...)
	}
	if len(out) > maxPromptExemplars {
		out = out[:maxPromptExemplars]
	}
	return out
}

// FormatSchemaInfo renders a schema descriptor as prompt-ready text, one
// column per line with type and sample values.
func FormatSchemaInfo(schema *models.SchemaDescriptor) string {
	if schema == nil || len(schema.Columns) == 0 {
		return "(no columns)"
	}
	var sb strings.Builder
	for _, col := range schema.Columns {
		fmt.Fprintf(&sb, "- %s (%s)", col.Name, col.Type)
		if len(col.SampleValues) > 0 {
			fmt.Fprintf(&sb, " e.g. %s", strings.Join(col.SampleValues, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

var (
	bootstrapOnce sync.Once
	bootstrapSet  []models.FeedbackExample
)

// bootstrapExemplars parses the embedded starter exemplars once.
func bootstrapExemplars() []models.FeedbackExample {
	bootstrapOnce.Do(func() {
		var doc struct {
			Examples []models.FeedbackExample `yaml:"examples"`
		}
		if err := yaml.Unmarshal(bootstrapExemplarsYAML, &doc); err != nil {
			// The file is compiled in; a parse failure is a build defect.
			panic(fmt.Sprintf("invalid embedded exemplars: %v", err))
		}
		bootstrapSet = doc.Examples
	})
	return bootstrapSet
}
