package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-translator/internal/geometry"
	"pdf-translator/internal/layout"
)

type stubEngine struct {
	text     string
	err      error
	received image.Image
}

func (s *stubEngine) Recognize(ctx context.Context, img image.Image) (string, error) {
	s.received = img
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

func textRegion(x1, y1, x2, y2 float64) layout.Region {
	return layout.Region{
		ID:     1,
		Type:   layout.RegionText,
		Pixels: geometry.PixelRect{X1: x1, Y1: y1, X2: x2, Y2: y2},
	}
}

func TestExtractReturnsCleanedText(t *testing.T) {
	engine := &stubEngine{text: "  Hello\nWorld \f "}
	e := NewExtractor(engine)

	page := image.NewRGBA(image.Rect(0, 0, 1000, 1000))
	text, err := e.Extract(context.Background(), page, textRegion(100, 100, 500, 300))

	require.NoError(t, err)
	assert.Equal(t, "Hello World", text)
}

func TestExtractPropagatesEngineError(t *testing.T) {
	engine := &stubEngine{err: errors.New("engine crashed")}
	e := NewExtractor(engine)

	page := image.NewRGBA(image.Rect(0, 0, 1000, 1000))
	_, err := e.Extract(context.Background(), page, textRegion(100, 100, 500, 300))
	assert.Error(t, err)
}

func TestExtractCropsWithMargin(t *testing.T) {
	engine := &stubEngine{text: "x"}
	e := NewExtractor(engine)

	page := image.NewRGBA(image.Rect(0, 0, 1000, 1000))
	_, err := e.Extract(context.Background(), page, textRegion(100, 100, 500, 300))
	require.NoError(t, err)

	bounds := engine.received.Bounds()
	// 400px wide region + 1.5% margin each side = 412px; 200px tall -> 206px.
	assert.Equal(t, 412, bounds.Dx())
	assert.Equal(t, 206, bounds.Dy())
}

func TestExtractClampsCropToImageBounds(t *testing.T) {
	engine := &stubEngine{text: "x"}
	e := NewExtractor(engine)

	page := image.NewRGBA(image.Rect(0, 0, 400, 400))
	_, err := e.Extract(context.Background(), page, textRegion(0, 0, 400, 400))
	require.NoError(t, err)

	bounds := engine.received.Bounds()
	assert.LessOrEqual(t, bounds.Dx(), 400)
	assert.LessOrEqual(t, bounds.Dy(), 400)
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Hello", "Hello"},
		{"newlines collapse", "Hello\nWorld", "Hello World"},
		{"form feed and tabs", "a\fb\tc", "a b c"},
		{"leading and trailing space", "  padded  ", "padded"},
		{"empty", "", ""},
		{"only whitespace", " \n\t ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}

func TestHTTPEngineRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ocr", r.URL.Path)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"text": "recognized text"}`))
	}))
	defer srv.Close()

	engine := NewHTTPEngine(srv.URL)
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	img.Set(5, 5, color.Black)

	text, err := engine.Recognize(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "recognized text", text)
}

func TestHTTPEngineServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	engine := NewHTTPEngine(srv.URL)
	_, err := engine.Recognize(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
	assert.Error(t, err)
}

func TestHTTPEngineMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	engine := NewHTTPEngine(srv.URL)
	_, err := engine.Recognize(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
	assert.Error(t, err)
}
