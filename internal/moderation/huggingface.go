package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// DefaultHuggingFaceURL is the hosted toxic-bert inference endpoint.
const DefaultHuggingFaceURL = "https://api-inference.huggingface.co/models/unitary/toxic-bert"

// HuggingFaceConfig configures the HuggingFace inference adapter.
type HuggingFaceConfig struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
	RetryMax   int
	Logger     *zap.Logger
}

// HuggingFaceScorer calls a HuggingFace text-classification model and
// normalizes its label list into Scores.
type HuggingFaceScorer struct {
	url    string
	apiKey string
	client *http.Client
}

type huggingFaceLabel struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// NewHuggingFaceScorer builds the adapter. An empty API key is accepted; Score
// then reports ErrScorerUnconfigured.
func NewHuggingFaceScorer(cfg HuggingFaceConfig) *HuggingFaceScorer {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		url = DefaultHuggingFaceURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = newRetryingClient(cfg.RetryMax, cfg.Logger)
	}
	return &HuggingFaceScorer{
		url:    url,
		apiKey: strings.TrimSpace(cfg.APIKey),
		client: client,
	}
}

// Score implements Scorer.
func (s *HuggingFaceScorer) Score(ctx context.Context, text string) (Scores, error) {
	if s.apiKey == "" {
		return nil, ErrScorerUnconfigured
	}

	payload, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "safeyak-moderation/"+versioninfo.Short())

	start := time.Now()
	defer func() {
		scorerDuration.Observe(time.Since(start).Seconds())
	}()

	res, err := s.client.Do(req)
	if err != nil {
		scorerCount.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("huggingface request failed: %w", err)
	}
	defer res.Body.Close()

	scorerCount.WithLabelValues(fmt.Sprint(res.StatusCode)).Inc()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("huggingface request failed statusCode=%d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read huggingface response: %w", err)
	}
	return parseHuggingFaceScores(body)
}

// parseHuggingFaceScores accepts both the nested [[{label,score}]] shape and a
// flat [{label,score}] list.
func parseHuggingFaceScores(body []byte) (Scores, error) {
	var nested [][]huggingFaceLabel
	if err := json.Unmarshal(body, &nested); err == nil {
		scores := Scores{}
		for _, group := range nested {
			addLabels(scores, group)
		}
		return scores, nil
	}
	var flat []huggingFaceLabel
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("failed to parse huggingface response: %w", err)
	}
	scores := Scores{}
	addLabels(scores, flat)
	return scores, nil
}

func addLabels(scores Scores, labels []huggingFaceLabel) {
	for _, label := range labels {
		name := strings.ToLower(strings.TrimSpace(label.Label))
		if name == "" {
			continue
		}
		if existing, ok := scores[name]; !ok || label.Score > existing {
			scores[name] = label.Score
		}
	}
}

// retryLogger re-levels retryablehttp output; intermediate failures are warnings.
type retryLogger struct {
	inner *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.inner.Warnw(msg, keysAndValues...)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.inner.Warnw(msg, keysAndValues...)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.inner.Infow(msg, keysAndValues...)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.inner.Debugw(msg, keysAndValues...)
}

func newRetryingClient(retryMax int, logger *zap.Logger) *http.Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retryMax <= 0 {
		retryMax = 2
	}
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retryMax
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(retryLogger{inner: logger.Sugar()})
	return retryClient.StandardClient()
}
