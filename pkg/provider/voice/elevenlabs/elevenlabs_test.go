package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"testing"
	"time"

	"github.com/technolifts/presence/pkg/provider/voice"
)

// ---- WebSocket message construction ----

func TestBuildWSMessage_WithVoiceSettings(t *testing.T) {
	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	data, err := buildWSMessage("Hello there", vs)
	if err != nil {
		t.Fatalf("buildWSMessage: %v", err)
	}

	var msg textMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Text != "Hello there" {
		t.Errorf("expected text 'Hello there', got %q", msg.Text)
	}
	if msg.VoiceSettings == nil {
		t.Fatal("expected non-nil voice settings")
	}
	if msg.VoiceSettings.Stability != 0.5 {
		t.Errorf("expected stability 0.5, got %f", msg.VoiceSettings.Stability)
	}
	if msg.VoiceSettings.SimilarityBoost != 0.75 {
		t.Errorf("expected similarity_boost 0.75, got %f", msg.VoiceSettings.SimilarityBoost)
	}
}

func TestBuildWSMessage_FlushCommand(t *testing.T) {
	// ElevenLabs flush = {"text":""} with no other fields.
	data, err := buildWSMessage("", nil)
	if err != nil {
		t.Fatalf("buildWSMessage: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal flush: %v", err)
	}
	textVal, ok := raw["text"]
	if !ok {
		t.Fatal("expected 'text' field in flush message")
	}
	if string(textVal) != `""` {
		t.Errorf("expected empty string for text, got %s", textVal)
	}
	if _, exists := raw["voice_settings"]; exists {
		t.Error("flush message should not contain voice_settings")
	}
}

// ---- URL construction ----

func TestBuildURLForVoice(t *testing.T) {
	url := buildURLForVoice("voice-abc123", "eleven_monolingual_v1")
	if !strings.Contains(url, "voice-abc123") {
		t.Errorf("URL should contain voice ID, got: %s", url)
	}
	if !strings.Contains(url, "eleven_monolingual_v1") {
		t.Errorf("URL should contain model ID, got: %s", url)
	}
	if !strings.HasPrefix(url, "wss://") {
		t.Errorf("URL should be a WebSocket URL, got: %s", url)
	}
}

func TestBuildSynthesizeURL(t *testing.T) {
	url := buildSynthesizeURL("voice-abc123", "mp3_44100_128")
	if !strings.Contains(url, "/text-to-speech/voice-abc123") {
		t.Errorf("URL should contain the voice path, got: %s", url)
	}
	if !strings.Contains(url, "output_format=mp3_44100_128") {
		t.Errorf("URL should carry the output format, got: %s", url)
	}
	if !strings.HasPrefix(url, "https://") {
		t.Errorf("URL should be an HTTPS URL, got: %s", url)
	}
}

// ---- Voice list response parsing ----

func TestParseVoicesResponse_Success(t *testing.T) {
	raw := []byte(`{
		"voices": [
			{
				"voice_id": "abc123",
				"name": "Rachel",
				"category": "premade",
				"preview_url": "https://example.com/rachel.mp3",
				"labels": {"gender": "female", "accent": "american"}
			},
			{
				"voice_id": "def456",
				"name": "Morgan Twin",
				"category": "cloned",
				"description": "Cloned voice: Morgan",
				"labels": {"gender": "male"}
			}
		]
	}`)

	profiles, err := parseVoicesResponse(raw)
	if err != nil {
		t.Fatalf("parseVoicesResponse: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}

	rachel := profiles[0]
	if rachel.ID != "abc123" {
		t.Errorf("expected ID 'abc123', got %q", rachel.ID)
	}
	if rachel.Name != "Rachel" {
		t.Errorf("expected Name 'Rachel', got %q", rachel.Name)
	}
	if rachel.Category != "premade" {
		t.Errorf("expected Category 'premade', got %q", rachel.Category)
	}
	if rachel.PreviewURL != "https://example.com/rachel.mp3" {
		t.Errorf("expected preview URL, got %q", rachel.PreviewURL)
	}
	if rachel.Labels["gender"] != "female" {
		t.Errorf("expected gender 'female', got %q", rachel.Labels["gender"])
	}

	cloned := profiles[1]
	if cloned.Category != "cloned" {
		t.Errorf("expected Category 'cloned', got %q", cloned.Category)
	}
	if cloned.Description != "Cloned voice: Morgan" {
		t.Errorf("expected clone description, got %q", cloned.Description)
	}
}

func TestParseVoicesResponse_Empty(t *testing.T) {
	raw := []byte(`{"voices":[]}`)
	profiles, err := parseVoicesResponse(raw)
	if err != nil {
		t.Fatalf("parseVoicesResponse: %v", err)
	}
	if len(profiles) != 0 {
		t.Errorf("expected 0 profiles, got %d", len(profiles))
	}
}

func TestParseVoicesResponse_InvalidJSON(t *testing.T) {
	_, err := parseVoicesResponse([]byte(`{invalid`))
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

// ---- Transcript response parsing ----

func TestParseTranscriptResponse_Success(t *testing.T) {
	raw := []byte(`{
		"language_code": "en",
		"language_probability": 0.98,
		"text": "Hello world",
		"words": [
			{"text": "Hello", "type": "word", "start": 0.0, "end": 0.5},
			{"text": " ", "type": "spacing", "start": 0.5, "end": 0.5},
			{"text": "world", "type": "word", "start": 0.5, "end": 1.25}
		]
	}`)

	tr, err := parseTranscriptResponse(raw)
	if err != nil {
		t.Fatalf("parseTranscriptResponse: %v", err)
	}
	if tr.Text != "Hello world" {
		t.Errorf("expected text 'Hello world', got %q", tr.Text)
	}
	if tr.Language != "en" {
		t.Errorf("expected language 'en', got %q", tr.Language)
	}
	if tr.Confidence != 0.98 {
		t.Errorf("expected confidence 0.98, got %f", tr.Confidence)
	}

	// The spacing entry must be dropped; only real words carry timing.
	if len(tr.Words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(tr.Words))
	}
	if tr.Words[0].Word != "Hello" {
		t.Errorf("expected first word 'Hello', got %q", tr.Words[0].Word)
	}
	if tr.Words[0].End != 500*time.Millisecond {
		t.Errorf("expected first word end 500ms, got %v", tr.Words[0].End)
	}
	if tr.Words[1].Start != 500*time.Millisecond {
		t.Errorf("expected second word start 500ms, got %v", tr.Words[1].Start)
	}
	if tr.Words[1].End != 1250*time.Millisecond {
		t.Errorf("expected second word end 1250ms, got %v", tr.Words[1].End)
	}
}

func TestParseTranscriptResponse_NoWords(t *testing.T) {
	raw := []byte(`{"language_code":"en","language_probability":1,"text":"Silence"}`)
	tr, err := parseTranscriptResponse(raw)
	if err != nil {
		t.Fatalf("parseTranscriptResponse: %v", err)
	}
	if tr.Text != "Silence" {
		t.Errorf("expected text 'Silence', got %q", tr.Text)
	}
	if len(tr.Words) != 0 {
		t.Errorf("expected no words, got %d", len(tr.Words))
	}
}

func TestParseTranscriptResponse_InvalidJSON(t *testing.T) {
	_, err := parseTranscriptResponse([]byte(`not json`))
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

// ---- Clone form construction ----

func TestBuildCloneForm(t *testing.T) {
	samples := [][]byte{[]byte("first sample"), []byte("second sample")}
	body, contentType, err := buildCloneForm("Morgan", "Cloned voice: Morgan", samples)
	if err != nil {
		t.Fatalf("buildCloneForm: %v", err)
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		t.Fatalf("parse content type: %v", err)
	}
	if mediaType != "multipart/form-data" {
		t.Fatalf("expected multipart/form-data, got %q", mediaType)
	}

	form, err := multipart.NewReader(bytes.NewReader(body), params["boundary"]).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("read form: %v", err)
	}
	defer form.RemoveAll()

	if got := form.Value["name"]; len(got) != 1 || got[0] != "Morgan" {
		t.Errorf("expected name field 'Morgan', got %v", got)
	}
	if got := form.Value["description"]; len(got) != 1 || got[0] != "Cloned voice: Morgan" {
		t.Errorf("expected description field, got %v", got)
	}

	files := form.File["files"]
	if len(files) != 2 {
		t.Fatalf("expected 2 file parts, got %d", len(files))
	}
	if files[0].Filename != "sample_00.wav" {
		t.Errorf("expected filename 'sample_00.wav', got %q", files[0].Filename)
	}
	f, err := files[1].Open()
	if err != nil {
		t.Fatalf("open file part: %v", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read file part: %v", err)
	}
	if string(content) != "second sample" {
		t.Errorf("expected file content 'second sample', got %q", content)
	}
}

func TestBuildCloneForm_NoDescription(t *testing.T) {
	body, contentType, err := buildCloneForm("Morgan", "", [][]byte{[]byte("x")})
	if err != nil {
		t.Fatalf("buildCloneForm: %v", err)
	}

	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		t.Fatalf("parse content type: %v", err)
	}
	form, err := multipart.NewReader(bytes.NewReader(body), params["boundary"]).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("read form: %v", err)
	}
	defer form.RemoveAll()

	if _, ok := form.Value["description"]; ok {
		t.Error("expected no description field when description is empty")
	}
}

// ---- CloneVoice guards ----

func TestCloneVoice_EmptyName(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.CloneVoice(context.Background(), "", "", [][]byte{[]byte("x")}); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestCloneVoice_NoSamples(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.CloneVoice(context.Background(), "Morgan", "", nil); err == nil {
		t.Error("expected error for nil samples")
	}
}

func TestCloneVoice_UploadTooLarge(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// One sample just over the cap; the guard fires before any network I/O.
	oversized := [][]byte{make([]byte, maxCloneBytes+1)}
	_, err = p.CloneVoice(context.Background(), "Morgan", "", oversized)
	if !errors.Is(err, voice.ErrUploadTooLarge) {
		t.Errorf("expected ErrUploadTooLarge, got %v", err)
	}
}

func TestTotalSize(t *testing.T) {
	if got := totalSize(nil); got != 0 {
		t.Errorf("expected 0 for nil samples, got %d", got)
	}
	if got := totalSize([][]byte{make([]byte, 3), make([]byte, 7)}); got != 10 {
		t.Errorf("expected 10, got %d", got)
	}
}

// ---- Request guards ----

func TestSynthesize_EmptyText(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "", "voice-abc123"); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), nil, "answer.wav"); err == nil {
		t.Error("expected error for empty audio")
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("expected model %q, got %q", defaultModel, p.model)
	}
	if p.outputFormat != defaultOutputFmt {
		t.Errorf("expected outputFormat %q, got %q", defaultOutputFmt, p.outputFormat)
	}
	if p.defaultVoice != DefaultVoiceID {
		t.Errorf("expected default voice %q, got %q", DefaultVoiceID, p.defaultVoice)
	}
	if p.httpClient.Timeout != defaultTimeout {
		t.Errorf("expected timeout %v, got %v", defaultTimeout, p.httpClient.Timeout)
	}
}

func TestNew_WithOptions(t *testing.T) {
	p, err := New("key",
		WithModel("eleven_multilingual_v2"),
		WithOutputFormat("pcm_24000"),
		WithDefaultVoice("voice-xyz"),
		WithTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "eleven_multilingual_v2" {
		t.Errorf("expected model 'eleven_multilingual_v2', got %q", p.model)
	}
	if p.outputFormat != "pcm_24000" {
		t.Errorf("expected outputFormat 'pcm_24000', got %q", p.outputFormat)
	}
	if p.defaultVoice != "voice-xyz" {
		t.Errorf("expected default voice 'voice-xyz', got %q", p.defaultVoice)
	}
	if p.httpClient.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", p.httpClient.Timeout)
	}
}
