package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mgpai22/subtools/internal/mkv"
	"github.com/mgpai22/subtools/internal/subtitle"
	"github.com/mgpai22/subtools/internal/timing"
)

type stubRecognizer struct {
	texts []string
	err   error
	calls int
	last  []byte
}

func (s *stubRecognizer) Recognize(ctx context.Context, data []byte) (string, error) {
	s.calls++
	s.last = data
	if s.err != nil {
		return "", s.err
	}
	if len(s.texts) == 0 {
		return "", nil
	}
	text := s.texts[0]
	s.texts = s.texts[1:]
	return text, nil
}

// textImage is a transparent 10x10 bitmap with an opaque white 3x3 block
// at (2,3).
func textImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for y := 3; y < 6; y++ {
		for x := 2; x < 5; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	// dark outline pixel stays background
	img.SetNRGBA(1, 3, color.NRGBA{A: 255})
	return img
}

func TestPrepare(t *testing.T) {
	gray := Prepare(textImage(), DefaultPrepareOptions)
	if gray == nil {
		t.Fatal("expected an image")
	}
	if got := gray.Bounds(); got != image.Rect(0, 0, 13, 13) {
		t.Fatalf("bounds = %v, want 13x13", got)
	}

	tests := []struct {
		x, y int
		want uint8
	}{
		{0, 0, 0xff},
		{4, 5, 0xff},
		{5, 5, 0},
		{7, 7, 0},
		{8, 8, 0xff},
		{12, 12, 0xff},
	}
	for _, tt := range tests {
		if got := gray.GrayAt(tt.x, tt.y).Y; got != tt.want {
			t.Errorf("pixel (%d,%d) = %#x, want %#x", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestPrepareEmpty(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	// translucent white is below the alpha threshold
	img.SetNRGBA(1, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 50})
	if gray := Prepare(img, DefaultPrepareOptions); gray != nil {
		t.Errorf("expected nil, got %v", gray.Bounds())
	}

	_, ok, err := EncodePNG(img, DefaultPrepareOptions)
	if err != nil || ok {
		t.Errorf("EncodePNG = ok %v, err %v; want no image", ok, err)
	}
}

func TestEncodePNG(t *testing.T) {
	data, ok, err := EncodePNG(textImage(), DefaultPrepareOptions)
	if err != nil || !ok {
		t.Fatalf("EncodePNG = ok %v, err %v", ok, err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if img.Bounds().Dx() != 13 {
		t.Errorf("width = %d, want 13", img.Bounds().Dx())
	}
}

func TestLuminance(t *testing.T) {
	tests := []struct {
		r, g, b uint8
		want    float64
	}{
		{0, 0, 0, 0},
		{255, 255, 255, 1},
		{255, 0, 0, 0.2126},
		{0, 255, 0, 0.7152},
		{0, 0, 255, 0.0722},
	}
	for _, tt := range tests {
		if got := Luminance(tt.r, tt.g, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Luminance(%d,%d,%d) = %v, want %v", tt.r, tt.g, tt.b, got, tt.want)
		}
	}
	// mid gray is darker than half in linear light
	if got := Luminance(128, 128, 128); got > 0.25 || got < 0.2 {
		t.Errorf("Luminance(128) = %v", got)
	}
}

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Hello", "Hello"},
		{"trimmed", "  Hello\n", "Hello"},
		{"fenced", "```\nHello\nthere\n```", "Hello\nthere"},
		{"fenced with lang", "```text\nHello\n```", "Hello"},
		{"crlf", "one\r\ntwo", "one\ntwo"},
		{"blank lines", "one\n\n\ntwo", "one\ntwo"},
		{"no text", "NO_TEXT", ""},
		{"no text padded", " NO_TEXT\n", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanResponse(tt.in); got != tt.want {
				t.Errorf("cleanResponse(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(Options{Language: "French", Prompt: "keep names"})
	for _, want := range []string{"French subtitle", "NO_TEXT", "Additional instructions: keep names"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(BuildPrompt(Options{}), "Additional instructions") {
		t.Error("empty Prompt should add no instructions")
	}
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    Provider
		wantErr bool
	}{
		{"gemini", ProviderGemini, false},
		{"OpenAI", ProviderOpenAI, false},
		{" anthropic ", ProviderAnthropic, false},
		{"tesseract", "", true},
	}
	for _, tt := range tests {
		got, err := ParseProvider(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseProvider(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseProvider(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if ProviderOpenAI.APIKeyEnv() != "OPENAI_API_KEY" {
		t.Errorf("APIKeyEnv = %q", ProviderOpenAI.APIKeyEnv())
	}
}

func TestFactoryRequiresKey(t *testing.T) {
	for _, p := range []Provider{ProviderGemini, ProviderOpenAI, ProviderAnthropic} {
		if _, err := Factory(context.Background(), p, "", Options{}); err == nil {
			t.Errorf("%s: expected error without API key", p)
		}
	}
	if _, err := Factory(context.Background(), "tesseract", "key", Options{}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func span(start, end time.Duration) timing.Span {
	return timing.Span{Start: start, End: end}
}

func TestPipeline(t *testing.T) {
	dir := t.TempDir()
	rec := &stubRecognizer{texts: []string{"Hello", "", "Bye"}}
	h := &Handlers{Recognizer: rec}

	handler, path, err := h.NewImageHandler(mkv.Track{Number: 3}, filepath.Join(dir, "movie.3"), false)
	if err != nil {
		t.Fatalf("NewImageHandler: %v", err)
	}
	if path != filepath.Join(dir, "movie.3.srt") {
		t.Errorf("path = %s", path)
	}

	blank := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	steps := []struct {
		span timing.Span
		img  image.Image
	}{
		{span(1*time.Second, 2*time.Second), textImage()},
		{span(3*time.Second, 4*time.Second), blank},
		{span(5*time.Second, 6*time.Second), textImage()},
		{span(7*time.Second, 8*time.Second), textImage()},
	}
	for i, s := range steps {
		if err := handler.HandleImage(s.span, s.img); err != nil {
			t.Fatalf("image %d: %v", i, err)
		}
	}
	if err := handler.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if rec.calls != 3 {
		t.Errorf("recognizer called %d times, want 3", rec.calls)
	}
	if !bytes.HasPrefix(rec.last, []byte("\x89PNG")) {
		t.Error("recognizer did not receive a PNG")
	}
	if got := handler.(*Pipeline).Cues(); got != 2 {
		t.Errorf("Cues = %d, want 2", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "\ufeff1\n00:00:01,000 --> 00:00:02,000\nHello\n\n" +
		"2\n00:00:07,000 --> 00:00:08,000\nBye\n\n"
	if string(data) != want {
		t.Errorf("output = %q, want %q", data, want)
	}
}

func TestPipelineRecognizerError(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("quota exceeded")
	h := &Handlers{Recognizer: &stubRecognizer{err: boom}}

	p, err := h.Create(filepath.Join(dir, "out.srt"), false)
	if err != nil {
		t.Fatal(err)
	}
	err = p.HandleImage(span(0, time.Second), textImage())
	if !errors.Is(err, boom) {
		t.Errorf("expected recognizer error, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestPipelineKeepsExistingOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.srt")
	if err := os.WriteFile(path, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	h := &Handlers{Recognizer: &stubRecognizer{}}

	if _, err := h.Create(path, false); !errors.Is(err, subtitle.ErrOutputExists) {
		t.Errorf("expected ErrOutputExists, got %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "old" {
		t.Errorf("existing file changed: %q", data)
	}
}

func TestGeminiRecognizerIntegration(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set")
	}

	ctx := context.Background()
	rec, err := NewGeminiRecognizer(ctx, apiKey, Options{})
	if err != nil {
		t.Fatalf("failed to create recognizer: %v", err)
	}

	data, _, err := EncodePNG(textImage(), DefaultPrepareOptions)
	if err != nil {
		t.Fatal(err)
	}
	// a lone square has no text; any answer without an error is fine
	if _, err := rec.Recognize(ctx, data); err != nil {
		t.Fatalf("Recognize: %v", err)
	}
}
