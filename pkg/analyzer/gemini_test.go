package analyzer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/reelhub/review-api/pkg/config"
)

func TestParsePayloadStripsFences(t *testing.T) {
	raw := "```json\n{\"summary\":\"tight edit\",\"scores\":{\"overall\":120,\"audio\":70,\"visual\":-5,\"editing\":80,\"storytelling\":75},\"todoItems\":[\"fix audio\"]}\n```"
	payload, err := ParsePayload(raw)
	require.NoError(t, err)
	assert.Equal(t, "tight edit", payload.Summary)
	assert.Equal(t, 100, payload.Scores.Overall)
	assert.Equal(t, 0, payload.Scores.Visual)
	assert.Equal(t, []string{"fix audio"}, payload.TodoItems)
	assert.NotNil(t, payload.Insights)
}

func TestParsePayloadRejectsGarbage(t *testing.T) {
	_, err := ParsePayload("not json")
	require.Error(t, err)
	_, err = ParsePayload("  ")
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(&googleapi.Error{Code: 429}))
	assert.True(t, IsRateLimited(fmt.Errorf("gemini generation error: %w", &googleapi.Error{Code: 429})))
	assert.True(t, IsRateLimited(status.Error(codes.ResourceExhausted, "quota")))
	assert.False(t, IsRateLimited(&googleapi.Error{Code: 500}))
	assert.False(t, IsRateLimited(status.Error(codes.Unavailable, "down")))
	assert.False(t, IsRateLimited(nil))
}

func TestNewLimiterUnlimitedWhenUnset(t *testing.T) {
	limiter := NewLimiter(0)
	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Wait(context.Background()))
	}
	require.InDelta(t, 1.0, float64(NewLimiter(60).Limit()), 0.0001)
}

func TestNewGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), config.AnalysisConfig{})
	require.Error(t, err)
}

func TestReadHeadSplitsInlineAndUpload(t *testing.T) {
	head, inline, err := readHead(strings.NewReader("0123456789"), 10)
	require.NoError(t, err)
	assert.True(t, inline)
	assert.Equal(t, "0123456789", string(head))

	src := strings.NewReader("0123456789abc")
	head, inline, err = readHead(src, 10)
	require.NoError(t, err)
	assert.False(t, inline)
	assert.Len(t, head, 11)
	rest, err := io.ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abc", string(head)+string(rest))
}

func TestFetchMediaUsesVideoContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cut.mov":
			w.Header().Set("Content-Type", "video/quicktime; charset=binary")
			_, _ = w.Write([]byte("frames"))
		case "/blob":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write([]byte("frames"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	media, err := fetchMedia(context.Background(), srv.Client(), srv.URL+"/cut.mov", defaultMIMEType)
	require.NoError(t, err)
	assert.Equal(t, "video/quicktime", media.mimeType)
	body, err := io.ReadAll(media.body)
	require.NoError(t, err)
	assert.Equal(t, "frames", string(body))
	require.NoError(t, media.Close())

	media, err = fetchMedia(context.Background(), srv.Client(), srv.URL+"/blob", defaultMIMEType)
	require.NoError(t, err)
	assert.Equal(t, defaultMIMEType, media.mimeType)
	require.NoError(t, media.Close())

	_, err = fetchMedia(context.Background(), srv.Client(), srv.URL+"/expired", defaultMIMEType)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}
