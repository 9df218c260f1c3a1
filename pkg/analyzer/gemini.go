package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/reelhub/review-api/internal/models"
	"github.com/reelhub/review-api/pkg/config"
)

const prompt = `You are reviewing a short-form creator video submitted for a brand campaign.
Watch the attached video and answer with a single JSON object of the form:
{"summary": string, "scores": {"overall": int, "audio": int, "visual": int, "editing": int, "storytelling": int},
 "todoItems": [string], "insights": [string]}
Scores are integers from 0 to 100. todoItems are concrete edits the creator should make.
insights are observations about what works. Answer with JSON only.`

const (
	defaultModel    = "gemini-2.0-flash"
	defaultMIMEType = "video/mp4"
	// inlineLimit keeps inline media under the 20MB request cap of the API.
	inlineLimit      = 18 << 20
	filePollInterval = 2 * time.Second
)

// ErrEmptyResponse is returned when the model produced no usable text.
var ErrEmptyResponse = errors.New("analyzer: empty response")

// Gemini downloads submission media and sends it to Google Gemini for
// structured review. Small files travel inline, larger ones through the File API.
type Gemini struct {
	client     *genai.Client
	model      *genai.GenerativeModel
	limiter    *rate.Limiter
	httpClient *http.Client
	mimeType   string
}

// NewGemini creates a Gemini backed analyzer.
func NewGemini(ctx context.Context, cfg config.AnalysisConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("analyzer: GEMINI_API_KEY is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("genai client init failed: %w", err)
	}
	name := cfg.Model
	if name == "" {
		name = defaultModel
	}
	model := client.GenerativeModel(name)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.2)
	return &Gemini{
		client:     client,
		model:      model,
		limiter:    NewLimiter(cfg.RequestsPerMinute),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		mimeType:   defaultMIMEType,
	}, nil
}

// NewLimiter returns a token bucket allowing rpm requests per minute.
// A non-positive rpm disables limiting.
func NewLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Analyze submits the media at mediaURL and decodes the structured answer.
func (g *Gemini) Analyze(ctx context.Context, mediaURL string) (*models.AnalysisPayload, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("analyzer rate limiter: %w", err)
	}
	media, err := fetchMedia(ctx, g.httpClient, mediaURL, g.mimeType)
	if err != nil {
		return nil, err
	}
	defer media.Close()

	part, cleanup, err := g.mediaPart(ctx, media)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	resp, err := g.model.GenerateContent(ctx, part, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrEmptyResponse
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return ParsePayload(text.String())
}

// mediaPart turns the downloaded media into a request part. Media above
// inlineLimit is uploaded and removed again by the returned cleanup.
func (g *Gemini) mediaPart(ctx context.Context, media *mediaSource) (genai.Part, func(), error) {
	head, inline, err := readHead(media.body, inlineLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("read media: %w", err)
	}
	if inline {
		return genai.Blob{MIMEType: media.mimeType, Data: head}, func() {}, nil
	}

	body := io.MultiReader(bytes.NewReader(head), media.body)
	file, err := g.client.UploadFile(ctx, "", body, &genai.UploadFileOptions{MIMEType: media.mimeType})
	if err != nil {
		return nil, nil, fmt.Errorf("upload media: %w", err)
	}
	cleanup := func() { _ = g.client.DeleteFile(context.Background(), file.Name) }
	for file.State == genai.FileStateProcessing {
		select {
		case <-ctx.Done():
			cleanup()
			return nil, nil, ctx.Err()
		case <-time.After(filePollInterval):
		}
		if file, err = g.client.GetFile(ctx, file.Name); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("poll uploaded media: %w", err)
		}
	}
	if file.State != genai.FileStateActive {
		cleanup()
		return nil, nil, fmt.Errorf("uploaded media %s is not usable (state %v)", file.Name, file.State)
	}
	return genai.FileData{MIMEType: file.MIMEType, URI: file.URI}, cleanup, nil
}

type mediaSource struct {
	body     io.ReadCloser
	mimeType string
}

func (m *mediaSource) Close() error {
	return m.body.Close()
}

// fetchMedia opens the media behind a presigned URL. The response content
// type wins when it names a video, fallback otherwise.
func fetchMedia(ctx context.Context, client *http.Client, mediaURL, fallback string) (*mediaSource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build media request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download media: unexpected status %d", resp.StatusCode)
	}
	mimeType := fallback
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "video/") {
		mimeType = strings.TrimSpace(strings.Split(ct, ";")[0])
	}
	return &mediaSource{body: resp.Body, mimeType: mimeType}, nil
}

// readHead reads up to limit+1 bytes and reports whether r ended within limit.
func readHead(r io.Reader, limit int64) ([]byte, bool, error) {
	head, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	return head, int64(len(head)) <= limit, nil
}

// ParsePayload decodes a model answer, tolerating markdown code fences.
func ParsePayload(raw string) (*models.AnalysisPayload, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	if text == "" {
		return nil, ErrEmptyResponse
	}
	var payload models.AnalysisPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("decode analysis response: %w", err)
	}
	payload.Scores = clampScores(payload.Scores)
	if payload.TodoItems == nil {
		payload.TodoItems = []string{}
	}
	if payload.Insights == nil {
		payload.Insights = []string{}
	}
	return &payload, nil
}

// IsRateLimited reports whether err is a quota signal from the API, either
// an HTTP 429 or a gRPC RESOURCE_EXHAUSTED status.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return true
	}
	var grpcErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &grpcErr) && grpcErr.GRPCStatus().Code() == codes.ResourceExhausted {
		return true
	}
	return false
}

func clampScores(s models.AnalysisScores) models.AnalysisScores {
	return models.AnalysisScores{
		Overall:      clamp(s.Overall),
		Audio:        clamp(s.Audio),
		Visual:       clamp(s.Visual),
		Editing:      clamp(s.Editing),
		Storytelling: clamp(s.Storytelling),
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
