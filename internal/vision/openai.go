package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"golang.org/x/time/rate"

	"github.com/thangdam97/mtl-studio/internal/annotation"
)

// AnalysisPrompt instructs the vision model. It is part of the cache key, so
// editing it invalidates previously cached analyses.
const AnalysisPrompt = `Analyze this manga page panel by panel, in reading order.
For each panel report: the speaker (if any dialogue), all characters present,
the dialogue transcript, the facial expression, the body language, a one-line
scene summary, the atmosphere, a short narrative-beat tag, and an emotional
intensity from 0.0 to 1.0.
Respond with a JSON array only, one object per panel, using the keys:
speaker, characters, dialogue, expression, body_language, scene_summary,
atmosphere, narrative_beat, intensity.`

// Config tunes the OpenAI analyzer.
type Config struct {
	Model string
	// MaxAttempts caps retries per page; delays double per attempt.
	MaxAttempts int
	// BaseDelay is the first retry delay.
	BaseDelay time.Duration
	// RequestsPerMinute throttles calls to the vision endpoint.
	RequestsPerMinute int
	APIKey            string
}

// DefaultConfig returns the standard analysis tuning.
func DefaultConfig() Config {
	return Config{
		Model:             "gpt-4o",
		MaxAttempts:       4,
		BaseDelay:         2 * time.Second,
		RequestsPerMinute: 20,
	}
}

// OpenAIAnalyzer implements Analyzer over the OpenAI chat API with image
// input.
type OpenAIAnalyzer struct {
	client  openai.Client
	config  Config
	limiter *rate.Limiter
}

// NewOpenAIAnalyzer creates an analyzer. Returns an error when the API key
// is absent from both config and environment.
func NewOpenAIAnalyzer(config Config) (*OpenAIAnalyzer, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("missing API key (set OPENAI_API_KEY or provide in config)")
	}
	if config.Model == "" {
		config.Model = DefaultConfig().Model
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultConfig().BaseDelay
	}
	rpm := config.RequestsPerMinute
	if rpm <= 0 {
		rpm = DefaultConfig().RequestsPerMinute
	}

	return &OpenAIAnalyzer{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
	}, nil
}

// Model returns the model identifier used for analysis.
func (a *OpenAIAnalyzer) Model() string { return a.config.Model }

// AnalyzePage sends the page image to the vision model, retrying transient
// failures with exponential backoff. A reply that does not parse as panel
// JSON yields a ParseFailed record rather than an error.
func (a *OpenAIAnalyzer) AnalyzePage(ctx context.Context, req Request) (annotation.PageAnnotation, error) {
	if len(req.Image) == 0 {
		return annotation.PageAnnotation{}, ErrEmptyImage
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return annotation.PageAnnotation{}, err
	}

	mime := req.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(req.Image))

	var reply string
	operation := func() error {
		completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: shared.ChatModel(a.config.Model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
					openai.TextContentPart(AnalysisPrompt),
					openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL: dataURL,
					}),
				}),
			},
		})
		if err != nil {
			return err
		}
		if len(completion.Choices) == 0 {
			return fmt.Errorf("empty completion")
		}
		reply = completion.Choices[0].Message.Content
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.config.BaseDelay
	bo.Multiplier = 2
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(a.config.MaxAttempts-1)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return annotation.PageAnnotation{}, fmt.Errorf("%w: page %d: %v", ErrAnalysisFailed, req.Page, err)
	}

	page := ParseReply(req.ChapterID, req.Page, reply)
	page.Model = a.config.Model
	page.AnalyzedAt = time.Now()
	return page, nil
}

// panelReply mirrors the JSON shape requested from the model.
type panelReply struct {
	Speaker       string   `json:"speaker"`
	Characters    []string `json:"characters"`
	Dialogue      string   `json:"dialogue"`
	Expression    string   `json:"expression"`
	BodyLanguage  string   `json:"body_language"`
	SceneSummary  string   `json:"scene_summary"`
	Atmosphere    string   `json:"atmosphere"`
	NarrativeBeat string   `json:"narrative_beat"`
	Intensity     float64  `json:"intensity"`
}

// ParseReply converts a model reply into a page record. Markdown code fences
// are tolerated. An unparseable reply produces a ParseFailed record carrying
// the raw text.
func ParseReply(chapterID string, pageNum int, reply string) annotation.PageAnnotation {
	body := strings.TrimSpace(reply)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)

	var raw []panelReply
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return annotation.PageAnnotation{
			ChapterID:   chapterID,
			Page:        pageNum,
			ParseFailed: true,
			RawReply:    reply,
		}
	}

	panels := make([]annotation.PanelAnnotation, len(raw))
	for i, p := range raw {
		intensity := p.Intensity
		if intensity < 0 {
			intensity = 0
		}
		if intensity > 1 {
			intensity = 1
		}
		panels[i] = annotation.PanelAnnotation{
			ID:            annotation.PanelID(chapterID, pageNum, i),
			Page:          pageNum,
			Ordinal:       i,
			Speaker:       p.Speaker,
			Characters:    p.Characters,
			Dialogue:      p.Dialogue,
			Expression:    p.Expression,
			BodyLanguage:  p.BodyLanguage,
			SceneSummary:  p.SceneSummary,
			Atmosphere:    p.Atmosphere,
			NarrativeBeat: p.NarrativeBeat,
			Intensity:     intensity,
		}
	}

	return annotation.PageAnnotation{
		ChapterID: chapterID,
		Page:      pageNum,
		Panels:    panels,
	}
}
