package benchmark

import (
	"context"
	"fmt"
	"strings"

	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/catalog"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/eval"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/model"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/question"
)

// Completer is the slice of the model client the pipeline needs.
type Completer interface {
	Complete(ctx context.Context, req model.CompletionRequest) (*model.CompletionResult, error)
}

// Pipeline executes the staged classification-then-answer flow for one
// profile against one question at a time.
type Pipeline struct {
	client       Completer
	profile      *ModelProfile
	catalog      *catalog.Catalog
	excerptLimit int
}

// NewPipeline builds a pipeline bound to a profile and its completion client.
func NewPipeline(client Completer, profile *ModelProfile, cat *catalog.Catalog, excerptLimit int) *Pipeline {
	if excerptLimit <= 0 {
		excerptLimit = 40
	}
	return &Pipeline{
		client:       client,
		profile:      profile,
		catalog:      cat,
		excerptLimit: excerptLimit,
	}
}

// Outcome is everything the pipeline produced for one question, including
// partial step traces when a stage failed.
type Outcome struct {
	Steps        []StepResult
	AnswerEval   *eval.Evaluation
	TopologyEval *eval.TopologyEvaluation
	TopologyPred *eval.TopologyPrediction
	FallbackUsed bool

	stagePredictions []eval.StagePrediction
}

// Execute runs the profile's enabled stages in order. A stage failure aborts
// the remaining stages for this question and returns the error alongside the
// partial outcome; the caller decides how the run proceeds.
func (p *Pipeline) Execute(ctx context.Context, q *question.Question) (*Outcome, error) {
	outcome := &Outcome{}
	prediction := eval.StagePrediction{}
	classified := false

	for _, kind := range p.profile.EnabledSteps() {
		var err error
		switch kind {
		case StepClassifySubject:
			prediction, err = p.runClassifyStep(ctx, outcome, q, eval.StageSubject, prediction)
			classified = classified || err == nil
		case StepClassifyTopic:
			prediction, err = p.runClassifyStep(ctx, outcome, q, eval.StageTopic, prediction)
			classified = classified || err == nil
		case StepClassifySubtopic:
			prediction, err = p.runClassifyStep(ctx, outcome, q, eval.StageSubtopic, prediction)
			classified = classified || err == nil
		case StepAnswer:
			err = p.runAnswerStep(ctx, outcome, q)
		default:
			err = fmt.Errorf("unknown pipeline step %q", kind)
		}
		if err != nil {
			p.finishTopology(outcome, q, classified)
			return outcome, err
		}
	}

	p.finishTopology(outcome, q, classified)
	return outcome, nil
}

func (p *Pipeline) finishTopology(outcome *Outcome, q *question.Question, classified bool) {
	if !classified {
		return
	}
	pred := eval.MergeStages(outcome.stagePredictions...)
	topologyEval := eval.EvaluateTopology(q.Topology, pred, p.catalog)
	outcome.TopologyPred = &pred
	outcome.TopologyEval = &topologyEval
}

func (p *Pipeline) runClassifyStep(ctx context.Context, outcome *Outcome, q *question.Question, stage eval.Stage, prior eval.StagePrediction) (eval.StagePrediction, error) {
	prompt := p.classifyPrompt(q, stage, prior)
	step := StepResult{Kind: classifyKind(stage), Prompt: prompt}

	result, err := p.complete(ctx, prompt, classifySchema(stage))
	if err != nil {
		step.Error = err.Error()
		outcome.Steps = append(outcome.Steps, step)
		return prior, err
	}
	recordResult(&step, outcome, result)

	prediction, err := eval.ParseTopologyStage(stage, result.Text, prior)
	if err != nil {
		step.Error = err.Error()
		outcome.Steps = append(outcome.Steps, step)
		return prior, err
	}

	outcome.Steps = append(outcome.Steps, step)
	outcome.stagePredictions = append(outcome.stagePredictions, prediction)
	return prediction, nil
}

func (p *Pipeline) runAnswerStep(ctx context.Context, outcome *Outcome, q *question.Question) error {
	prompt := p.answerPrompt(q)
	step := StepResult{Kind: StepAnswer, Prompt: prompt}

	result, err := p.complete(ctx, prompt, model.SchemaAnswer)
	if err != nil {
		step.Error = err.Error()
		outcome.Steps = append(outcome.Steps, step)
		return err
	}
	recordResult(&step, outcome, result)

	parsed, err := eval.ParseAnswer(result.Text)
	if err != nil {
		step.Error = err.Error()
		outcome.Steps = append(outcome.Steps, step)
		return err
	}
	outcome.Steps = append(outcome.Steps, step)

	evaluation := eval.EvaluateAnswer(q, parsed.Answer)
	outcome.AnswerEval = &evaluation
	return nil
}

func (p *Pipeline) complete(ctx context.Context, prompt string, schema model.SchemaClass) (*model.CompletionResult, error) {
	messages := []model.Message{}
	if p.profile.SystemPrompt != "" {
		messages = append(messages, model.Message{Role: "system", Content: p.profile.SystemPrompt})
	}
	messages = append(messages, model.Message{Role: "user", Content: prompt})

	return p.client.Complete(ctx, model.CompletionRequest{
		Model:            p.profile.ModelID,
		Messages:         messages,
		Temperature:      p.profile.Temperature,
		TopP:             p.profile.TopP,
		FrequencyPenalty: p.profile.FrequencyPenalty,
		PresencePenalty:  p.profile.PresencePenalty,
		MaxTokens:        p.profile.MaxOutputTokens,
		Structured:       p.structuredEnabled(),
		Schema:           schema,
	})
}

// structuredEnabled defaults to structured-output mode; a profile whose
// diagnostics proved the endpoint rejects it skips the doomed first attempt.
func (p *Pipeline) structuredEnabled() bool {
	if d := p.profile.Diagnostics; d != nil && d.StructuredOutput != nil {
		return *d.StructuredOutput
	}
	return true
}

func recordResult(step *StepResult, outcome *Outcome, result *model.CompletionResult) {
	step.Response = result.Text
	step.Latency = result.Latency
	step.PromptTokens = result.Usage.PromptTokens
	step.CompletionTokens = result.Usage.CompletionTokens
	step.UsageEstimated = result.UsageEstimated
	step.FallbackUsed = result.FallbackUsed
	if result.FallbackUsed {
		outcome.FallbackUsed = true
	}
}

func classifyKind(stage eval.Stage) StepKind {
	switch stage {
	case eval.StageSubject:
		return StepClassifySubject
	case eval.StageTopic:
		return StepClassifyTopic
	default:
		return StepClassifySubtopic
	}
}

func classifySchema(stage eval.Stage) model.SchemaClass {
	switch stage {
	case eval.StageSubject:
		return model.SchemaTopologySubject
	case eval.StageTopic:
		return model.SchemaTopologyTopic
	default:
		return model.SchemaTopologySubtopic
	}
}

func (p *Pipeline) classifyPrompt(q *question.Question, stage eval.Stage, prior eval.StagePrediction) string {
	var entries []catalog.Entry
	var noun, field string
	switch stage {
	case eval.StageSubject:
		entries = p.catalog.Subjects()
		noun, field = "subject", "subjectId"
	case eval.StageTopic:
		entries = p.catalog.TopicsOf(prior.SubjectID)
		noun, field = "topic", "topicId"
	default:
		entries = p.catalog.SubtopicsOf(prior.TopicID)
		noun, field = "subtopic", "subtopicId"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Classify the following question into the most fitting %s.\n\n", noun)
	fmt.Fprintf(&b, "Question:\n%s\n\n", q.Prompt)

	if len(entries) == 0 {
		fmt.Fprintf(&b, "There are no options available, use your best judgment to name a %s.\n\n", noun)
	} else {
		fmt.Fprintf(&b, "Choose the id of exactly one of these options, or null if none fits:\n")
		limit := len(entries)
		if limit > p.excerptLimit {
			limit = p.excerptLimit
		}
		for _, entry := range entries[:limit] {
			fmt.Fprintf(&b, "- %s: %s\n", entry.ID, entry.Name)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Respond with a JSON object: {\"%s\": \"<id or null>\", \"confidence\": <0..1>}", field)
	return b.String()
}

func (p *Pipeline) answerPrompt(q *question.Question) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Answer the following question.\n\n%s\n", q.Prompt)

	if len(q.Options) > 0 {
		b.WriteString("\nOptions:\n")
		for i, opt := range q.Options {
			fmt.Fprintf(&b, "%c) %s\n", 'A'+i, opt.Text)
		}
	}

	if q.Instructions != "" {
		fmt.Fprintf(&b, "\n%s\n", q.Instructions)
	}

	switch q.Type {
	case question.TypeSingleChoice:
		b.WriteString("\nSelect exactly one option.")
	case question.TypeMultiChoice:
		b.WriteString("\nSelect every correct option; list them in the answer field.")
	case question.TypeNumeric:
		b.WriteString("\nGive a numeric answer.")
	case question.TypeBoolean:
		b.WriteString("\nAnswer true or false.")
	}

	b.WriteString("\nRespond with a JSON object: {\"answer\": \"...\", \"explanation\": \"...\", \"confidence\": <0..1>}")
	return b.String()
}
