// Package elevenlabs provides an ElevenLabs-backed voice provider using the
// ElevenLabs REST and streaming WebSocket APIs. It implements the
// voice.Provider interface.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/coder/websocket"
	"github.com/technolifts/presence/pkg/provider/voice"
	"github.com/technolifts/presence/pkg/types"
)

const (
	restEndpoint  = "https://api.elevenlabs.io/v1"
	wsEndpointFmt = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s"

	defaultModel     = "eleven_monolingual_v1"
	defaultOutputFmt = "mp3_44100_128"
	transcribeModel  = "scribe_v1"
	defaultTimeout   = 30 * time.Second

	// maxCloneBytes caps the combined size of voice-clone samples per upload.
	// The ElevenLabs API rejects uploads at roughly 11 MB, so stay under it.
	maxCloneBytes int = 10.5 * (1 << 20)
)

// DefaultVoiceID is the catalogue voice used when no voice is configured and
// the caller does not name one ("Rachel", a stock ElevenLabs voice).
const DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_monolingual_v1").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format for synthesis
// (e.g., "mp3_44100_128", "pcm_16000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithDefaultVoice sets the voice used when a caller passes an empty voiceID.
func WithDefaultVoice(voiceID string) Option {
	return func(p *Provider) {
		p.defaultVoice = voiceID
	}
}

// WithTimeout overrides the per-request timeout for REST calls. It does not
// bound streaming synthesis, which runs until its text channel closes.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements voice.Provider backed by the ElevenLabs API.
//
// It is safe for concurrent use; synthesis, transcription, and catalogue calls
// may run in parallel.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	defaultVoice string
	httpClient   *http.Client
}

var _ voice.Provider = (*Provider)(nil)

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		defaultVoice: DefaultVoiceID,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- Synthesize ----

// ttsRequest is the JSON body for POST /v1/text-to-speech/{voice_id}.
type ttsRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// Synthesize converts text to speech in a single request and returns the full
// encoded audio blob in the provider's configured output format.
func (p *Provider) Synthesize(ctx context.Context, text string, voiceID string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}
	if voiceID == "" {
		voiceID = p.defaultVoice
	}

	payload := ttsRequest{
		Text:    text,
		ModelID: p.model,
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, buildSynthesizeURL(voiceID, p.outputFormat), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create synthesis request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: synthesis HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: synthesis: unexpected status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read synthesis response: %w", err)
	}
	return audio, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded audio chunk
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"` // error or info
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

// SynthesizeStream opens a WebSocket to ElevenLabs, pipes text fragments from
// the text channel, and returns a channel emitting encoded audio chunks.
//
// The returned audio channel is closed when synthesis is complete or ctx is
// cancelled.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voiceID string) (<-chan []byte, error) {
	if voiceID == "" {
		voiceID = p.defaultVoice
	}

	wsURL := buildURLForVoice(voiceID, p.model)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	// Send the initial BOI message to authenticate and configure the stream.
	boi := boiMessage{
		Text: " ", // ElevenLabs requires a non-empty first text value
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
		XiAPIKey:     p.apiKey,
		OutputFormat: p.outputFormat,
	}
	boiBytes, _ := json.Marshal(boi)
	if err := conn.Write(ctx, websocket.MessageText, boiBytes); err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send BOI")
		return nil, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}

	audioCh := make(chan []byte, 256)

	go func() {
		defer close(audioCh)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		// Start reader goroutine.
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				_, msg, err := conn.Read(ctx)
				if err != nil {
					return
				}
				var resp audioResponse
				if err := json.Unmarshal(msg, &resp); err != nil {
					continue
				}
				if resp.Audio == "" {
					continue
				}
				chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
				if err != nil {
					continue
				}
				select {
				case audioCh <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}()

		// Write text fragments to ElevenLabs.
		vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
		for {
			select {
			case sentence, ok := <-text:
				if !ok {
					// Text channel closed; send the flush command.
					flush := textMessage{Text: ""}
					flushBytes, _ := json.Marshal(flush)
					_ = conn.Write(ctx, websocket.MessageText, flushBytes)
					// Wait for the reader to finish draining audio.
					<-readDone
					return
				}
				if sentence == "" {
					continue
				}
				payload := textMessage{Text: sentence, VoiceSettings: vs}
				// Only send voice settings on the first chunk; subsequent chunks can omit them.
				vs = nil
				msgBytes, _ := json.Marshal(payload)
				if err := conn.Write(ctx, websocket.MessageText, msgBytes); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioCh, nil
}

// ---- Transcribe ----

// scribeWord is a single recognised token from the speech-to-text response.
type scribeWord struct {
	Text  string  `json:"text"`
	Type  string  `json:"type"` // "word", "spacing", or "audio_event"
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// scribeResponse is the response from POST /v1/speech-to-text.
type scribeResponse struct {
	LanguageCode        string       `json:"language_code"`
	LanguageProbability float64      `json:"language_probability"`
	Text                string       `json:"text"`
	Words               []scribeWord `json:"words"`
}

// Transcribe sends a recorded audio blob to POST /v1/speech-to-text and returns
// the recognised transcript. filename hints the container format; an empty
// filename is sent as "audio.wav".
func (p *Provider) Transcribe(ctx context.Context, audio []byte, filename string) (*types.Transcript, error) {
	if len(audio) == 0 {
		return nil, errors.New("elevenlabs: audio must not be empty")
	}
	if filename == "" {
		filename = "audio.wav"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model_id", transcribeModel); err != nil {
		return nil, fmt.Errorf("elevenlabs: write model_id field: %w", err)
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, fmt.Errorf("elevenlabs: write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("elevenlabs: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, restEndpoint+"/speech-to-text", &body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create transcription request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: transcription HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: transcription: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read transcription response: %w", err)
	}
	return parseTranscriptResponse(data)
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices. The per-voice
// fields match types.VoiceProfile's JSON tags, so voices decode directly.
type voicesResponse struct {
	Voices []types.VoiceProfile `json:"voices"`
}

// ListVoices returns all voices available from ElevenLabs for the configured
// API key, including cloned voices.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, restEndpoint+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read voices response: %w", err)
	}
	return parseVoicesResponse(data)
}

// ---- CloneVoice ----

// cloneResponse is the response from POST /v1/voices/add.
type cloneResponse struct {
	VoiceID string `json:"voice_id"`
}

// CloneVoice creates a new voice in the ElevenLabs catalogue by uploading the
// supplied audio samples to POST /v1/voices/add. Each element of samples must
// be a complete encoded audio file (WAV or MP3).
//
// Uploads whose combined size exceeds the API limit fail fast with
// voice.ErrUploadTooLarge before any bytes are transferred.
func (p *Provider) CloneVoice(ctx context.Context, name, description string, samples [][]byte) (*types.VoiceProfile, error) {
	if name == "" {
		return nil, errors.New("elevenlabs: name must not be empty")
	}
	if len(samples) == 0 {
		return nil, errors.New("elevenlabs: CloneVoice requires at least one audio sample")
	}
	if total := totalSize(samples); total > maxCloneBytes {
		return nil, fmt.Errorf("elevenlabs: clone samples total %d bytes, limit is %d: %w", total, maxCloneBytes, voice.ErrUploadTooLarge)
	}

	body, contentType, err := buildCloneForm(name, description, samples)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, restEndpoint+"/voices/add", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create clone request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: clone HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: clone: unexpected status %d", resp.StatusCode)
	}

	var cr cloneResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("elevenlabs: decode clone response: %w", err)
	}
	if cr.VoiceID == "" {
		return nil, errors.New("elevenlabs: clone response missing voice_id")
	}

	return &types.VoiceProfile{
		ID:          cr.VoiceID,
		Name:        name,
		Category:    "cloned",
		Description: description,
	}, nil
}

// ---- helpers ----

// buildSynthesizeURL constructs the one-shot synthesis URL for a voice and
// output format.
func buildSynthesizeURL(voiceID, outputFormat string) string {
	return fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", restEndpoint, voiceID, outputFormat)
}

// buildURLForVoice constructs the WebSocket URL for a given voice and model.
func buildURLForVoice(voiceID, model string) string {
	return fmt.Sprintf(wsEndpointFmt, voiceID, model)
}

// buildWSMessage constructs the JSON text payload for a single text fragment.
// Used by tests to verify the payload shape without opening a real connection.
func buildWSMessage(text string, vs *voiceSettings) ([]byte, error) {
	return json.Marshal(textMessage{Text: text, VoiceSettings: vs})
}

// buildCloneForm assembles the multipart body for POST /v1/voices/add. Used by
// tests to verify the form shape without opening a real connection.
func buildCloneForm(name, description string, samples [][]byte) ([]byte, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("name", name); err != nil {
		return nil, "", fmt.Errorf("elevenlabs: write name field: %w", err)
	}
	if description != "" {
		if err := mw.WriteField("description", description); err != nil {
			return nil, "", fmt.Errorf("elevenlabs: write description field: %w", err)
		}
	}
	for i, sample := range samples {
		filename := fmt.Sprintf("sample_%02d.wav", i)
		fw, err := mw.CreateFormFile("files", filename)
		if err != nil {
			return nil, "", fmt.Errorf("elevenlabs: create form file %s: %w", filename, err)
		}
		if _, err := fw.Write(sample); err != nil {
			return nil, "", fmt.Errorf("elevenlabs: write form file %s: %w", filename, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("elevenlabs: close multipart writer: %w", err)
	}
	return body.Bytes(), mw.FormDataContentType(), nil
}

// parseVoicesResponse parses a raw JSON byte slice (matching the ElevenLabs
// /v1/voices response) into a slice of VoiceProfile values.
func parseVoicesResponse(data []byte) ([]types.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: decode voices response: %w", err)
	}
	return vr.Voices, nil
}

// parseTranscriptResponse parses a raw JSON byte slice (matching the
// ElevenLabs /v1/speech-to-text response) into a Transcript. Spacing and
// audio-event entries are dropped; only recognised words carry timing detail.
func parseTranscriptResponse(data []byte) (*types.Transcript, error) {
	var sr scribeResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, fmt.Errorf("elevenlabs: decode transcript response: %w", err)
	}
	t := &types.Transcript{
		Text:       sr.Text,
		Language:   sr.LanguageCode,
		Confidence: sr.LanguageProbability,
	}
	for _, w := range sr.Words {
		if w.Type != "" && w.Type != "word" {
			continue
		}
		t.Words = append(t.Words, types.WordDetail{
			Word:  w.Text,
			Start: time.Duration(w.Start * float64(time.Second)),
			End:   time.Duration(w.End * float64(time.Second)),
		})
	}
	return t, nil
}

// totalSize returns the combined length of all sample buffers.
func totalSize(samples [][]byte) int {
	var n int
	for _, s := range samples {
		n += len(s)
	}
	return n
}
