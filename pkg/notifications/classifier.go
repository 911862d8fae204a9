package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/notifyengine/pkg/llm"
	"github.com/dmitrymomot/notifyengine/pkg/logger"
)

// Classification is the classifier's verdict for one request.
type Classification struct {
	Score    float64  `json:"score"`
	Reason   string   `json:"reason"`
	Priority Priority `json:"priority"`
}

// FallbackClassification is used whenever the classifier can't produce an answer.
func FallbackClassification() Classification {
	return Classification{Score: 0.5, Reason: "Default priority", Priority: PriorityMedium}
}

// Classifier scores a request. Implementations never fail: they fall back to
// FallbackClassification instead.
type Classifier interface {
	Classify(ctx context.Context, req Request) Classification
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, req Request) Classification

func (f ClassifierFunc) Classify(ctx context.Context, req Request) Classification {
	return f(ctx, req)
}

const DefaultClassifierTimeout = 5 * time.Second

const classifierSystemPrompt = `You rank workplace notifications by urgency for a single user.
Respond with a JSON object and nothing else, with exactly these fields:
  "score":    number between 0 and 1, higher is more urgent
  "reason":   short sentence explaining the score
  "priority": one of "low", "medium", "high", "urgent"`

var errMalformedClassification = errors.New("malformed classification")

// LLMClassifier asks a language model to classify requests.
type LLMClassifier struct {
	completer llm.Completer
	timeout   time.Duration
	logger    *slog.Logger
}

type LLMClassifierOption func(*LLMClassifier)

// WithClassifierTimeout bounds each model call. Non-positive values are ignored.
func WithClassifierTimeout(d time.Duration) LLMClassifierOption {
	return func(c *LLMClassifier) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithClassifierLogger(l *slog.Logger) LLMClassifierOption {
	return func(c *LLMClassifier) { c.logger = l }
}

func NewLLMClassifier(completer llm.Completer, opts ...LLMClassifierOption) *LLMClassifier {
	c := &LLMClassifier{
		completer: completer,
		timeout:   DefaultClassifierTimeout,
		logger:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type completion struct {
	text string
	err  error
}

// Classify calls the model with a bounded timeout. The call runs in its own
// goroutine so a completer that ignores ctx still can't stall the caller.
func (c *LLMClassifier) Classify(ctx context.Context, req Request) Classification {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan completion, 1)
	go func() {
		text, err := c.completer.Complete(ctx, classifierSystemPrompt, buildClassifierPrompt(req))
		done <- completion{text: text, err: err}
	}()

	var res completion
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	if res.err != nil {
		c.logger.WarnContext(ctx, "priority classification failed, using fallback",
			logger.UserID(req.UserID),
			logger.NotificationType(string(req.Type)),
			logger.Error(res.err),
		)
		return FallbackClassification()
	}

	cls, err := ParseClassification(res.text)
	if err != nil {
		c.logger.WarnContext(ctx, "unparseable priority classification, using fallback",
			logger.UserID(req.UserID),
			logger.NotificationType(string(req.Type)),
			logger.Error(err),
		)
		return FallbackClassification()
	}
	return cls
}

func buildClassifierPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Type: %s\n", req.Type)
	fmt.Fprintf(&b, "Title: %s\n", req.Title)
	if req.Body != "" {
		fmt.Fprintf(&b, "Body: %s\n", req.Body)
	}
	if req.PriorityHint != nil {
		fmt.Fprintf(&b, "Sender priority hint: %s\n", *req.PriorityHint)
	}
	return b.String()
}

// ParseClassification decodes a model response. The response must be a single
// JSON object with exactly the keys score, reason and priority, each once and
// spelled in lower case. The score is clamped to [0, 1] and the priority to
// the known levels.
func ParseClassification(text string) (Classification, error) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(text)))

	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return Classification{}, fmt.Errorf("%w: not a JSON object", errMalformedClassification)
	}

	var (
		score            *float64
		reason, priority *string
		seen             = make(map[string]bool, 3)
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Classification{}, errors.Join(errMalformedClassification, err)
		}
		key, _ := tok.(string)
		if seen[key] {
			return Classification{}, fmt.Errorf("%w: duplicate field %q", errMalformedClassification, key)
		}
		seen[key] = true

		switch key {
		case "score":
			err = dec.Decode(&score)
		case "reason":
			err = dec.Decode(&reason)
		case "priority":
			err = dec.Decode(&priority)
		default:
			return Classification{}, fmt.Errorf("%w: unknown field %q", errMalformedClassification, key)
		}
		if err != nil {
			return Classification{}, errors.Join(errMalformedClassification, err)
		}
	}
	if _, err := dec.Token(); err != nil {
		return Classification{}, errors.Join(errMalformedClassification, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Classification{}, fmt.Errorf("%w: trailing data", errMalformedClassification)
	}
	if score == nil || reason == nil || priority == nil {
		return Classification{}, fmt.Errorf("%w: missing field", errMalformedClassification)
	}

	return Classification{
		Score:    min(max(*score, 0), 1),
		Reason:   *reason,
		Priority: ParsePriority(*priority),
	}, nil
}

// RuleClassifier classifies with fixed keyword rules and the type catalog.
// It needs no network and is deterministic.
type RuleClassifier struct {
	catalog *TypeCatalog
}

func NewRuleClassifier(catalog *TypeCatalog) *RuleClassifier {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &RuleClassifier{catalog: catalog}
}

var keywordRules = []struct {
	priority Priority
	keywords []string
}{
	{PriorityUrgent, []string{"urgent", "asap", "critical", "outage", "immediately", "emergency"}},
	{PriorityHigh, []string{"overdue", "deadline", "important", "blocked", "today"}},
}

var priorityScores = map[Priority]float64{
	PriorityLow:    0.2,
	PriorityMedium: 0.5,
	PriorityHigh:   0.75,
	PriorityUrgent: 0.95,
}

// Classify picks the higher of the keyword match and the request's own
// priority (hint, else catalog default). A hint is never downgraded.
func (c *RuleClassifier) Classify(_ context.Context, req Request) Classification {
	base := c.catalog.DefaultPriority(req.Type)
	if req.PriorityHint != nil && req.PriorityHint.Valid() {
		base = *req.PriorityHint
	}
	result := Classification{Score: priorityScores[base], Reason: fmt.Sprintf("Default for %s", req.Type), Priority: base}

	text := strings.ToLower(req.Title + " " + req.Body)
	for _, rule := range keywordRules {
		kw, ok := containsAny(text, rule.keywords)
		if ok && rule.priority.Rank() > result.Priority.Rank() {
			result = Classification{Score: priorityScores[rule.priority], Reason: fmt.Sprintf("Mentions %q", kw), Priority: rule.priority}
			break
		}
	}
	return result
}

func containsAny(text string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}
