package server_test

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/technolifts/presence/internal/config"
	"github.com/technolifts/presence/pkg/audio"
	"github.com/technolifts/presence/pkg/types"
)

func TestTTS(t *testing.T) {
	e := newEnv(t)
	e.voice.SynthesizeResult = []byte("mp3 bytes")

	resp := e.postJSON(t, "/api/tts", map[string]string{"text": "Hello world", "voice_id": "v1"})
	wantStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type: got %q, want audio/mpeg", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename=speech.mp3` {
		t.Errorf("Content-Disposition: got %q", cd)
	}
	if body := readBody(t, resp); string(body) != "mp3 bytes" {
		t.Errorf("body: got %q", body)
	}

	if n := len(e.voice.SynthesizeCalls); n != 1 {
		t.Fatalf("Synthesize calls: got %d, want 1", n)
	}
	call := e.voice.SynthesizeCalls[0]
	if call.Text != "Hello world" || call.VoiceID != "v1" {
		t.Errorf("synthesize call: got text=%q voice=%q", call.Text, call.VoiceID)
	}
}

func TestTTS_EmptyText(t *testing.T) {
	e := newEnv(t)

	resp := e.postJSON(t, "/api/tts", map[string]string{"text": "   ", "voice_id": "v1"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
	eb := decodeBody[errBody](t, resp)
	if eb.Error != "text is required" {
		t.Errorf("error: got %q", eb.Error)
	}
}

func TestTTS_VoiceByName(t *testing.T) {
	e := newEnv(t)
	e.voice.ListVoicesResult = []types.VoiceProfile{
		{ID: "v9", Name: "Rachel"},
		{ID: "v10", Name: "Ada"},
	}
	e.voice.SynthesizeResult = []byte("x")

	// Lookup is case-insensitive.
	resp := e.postJSON(t, "/api/tts", map[string]string{"text": "hi", "voice_name": "rachel"})
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	if got := e.voice.SynthesizeCalls[0].VoiceID; got != "v9" {
		t.Errorf("resolved voice: got %q, want v9", got)
	}
}

func TestTTS_VoiceNameNotFound(t *testing.T) {
	e := newEnv(t)
	e.voice.ListVoicesResult = []types.VoiceProfile{{ID: "v9", Name: "Rachel"}}

	resp := e.postJSON(t, "/api/tts", map[string]string{"text": "hi", "voice_name": "Bogus"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", resp.StatusCode)
	}
	eb := decodeBody[errBody](t, resp)
	if !strings.Contains(eb.Error, `voice "Bogus" not found`) {
		t.Errorf("error: got %q", eb.Error)
	}
}

func TestTTS_DefaultVoice(t *testing.T) {
	e := newEnv(t, func(cfg *config.Config) {
		cfg.ElevenLabs.DefaultVoiceID = "stock-1"
	})
	e.voice.SynthesizeResult = []byte("x")

	resp := e.postJSON(t, "/api/tts", map[string]string{"text": "hi"})
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	if got := e.voice.SynthesizeCalls[0].VoiceID; got != "stock-1" {
		t.Errorf("voice: got %q, want stock-1", got)
	}
}

func TestTTS_NoVoice(t *testing.T) {
	e := newEnv(t)

	resp := e.postJSON(t, "/api/tts", map[string]string{"text": "hi"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
	eb := decodeBody[errBody](t, resp)
	if eb.Error != "either voice_id or voice_name must be provided" {
		t.Errorf("error: got %q", eb.Error)
	}
}

func TestTTS_ProviderError(t *testing.T) {
	e := newEnv(t)
	e.voice.SynthesizeErr = errors.New("voice service down")

	resp := e.postJSON(t, "/api/tts", map[string]string{"text": "hi", "voice_id": "v1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status: got %d, want 502", resp.StatusCode)
	}
}

func TestTTSDownload(t *testing.T) {
	e := newEnv(t)
	e.voice.SynthesizeResult = []byte("linked mp3")

	q := url.Values{"text": {"read me aloud"}, "voice_id": {"v1"}}
	resp := e.do(t, http.MethodGet, "/api/tts/download?"+q.Encode(), nil, "")
	wantStatus(t, resp, http.StatusOK)
	if body := readBody(t, resp); string(body) != "linked mp3" {
		t.Errorf("body: got %q", body)
	}
	if got := e.voice.SynthesizeCalls[0].Text; got != "read me aloud" {
		t.Errorf("text: got %q", got)
	}
}

func TestOptimizeAudio_TrimsToDuration(t *testing.T) {
	e := newEnv(t)

	// Two seconds at 22050 Hz, trimmed to one and resampled to 44100 Hz.
	clip := buildWAV(1, 22050, make([]int16, 2*22050))
	body, ct := multipartBody(t, map[string]string{"duration": "1"},
		filePart{field: "file", name: "raw.wav", data: clip})
	resp := e.do(t, http.MethodPost, "/api/optimize-audio", body, ct)
	wantStatus(t, resp, http.StatusOK)

	if got := resp.Header.Get("X-Audio-Sample-Rate"); got != "44100" {
		t.Errorf("X-Audio-Sample-Rate: got %q", got)
	}
	if got := resp.Header.Get("X-Audio-Channels"); got != "1" {
		t.Errorf("X-Audio-Channels: got %q", got)
	}
	if got := resp.Header.Get("X-Audio-Duration-Ms"); got != "1000" {
		t.Errorf("X-Audio-Duration-Ms: got %q", got)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Content-Type: got %q, want audio/wav", ct)
	}

	out := readBody(t, resp)
	samples, rate, err := audio.DecodeWAV(out)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 44100 || len(samples) != 44100 {
		t.Errorf("output: got %d samples at %d Hz, want 44100 at 44100", len(samples), rate)
	}
}

func TestOptimizeAudio_StereoDownmix(t *testing.T) {
	e := newEnv(t)

	// Three stereo frames, each averaging to 150.
	clip := buildWAV(2, 44100, []int16{100, 200, 100, 200, 100, 200})
	body, ct := multipartBody(t, nil, filePart{field: "file", name: "stereo.wav", data: clip})
	resp := e.do(t, http.MethodPost, "/api/optimize-audio", body, ct)
	wantStatus(t, resp, http.StatusOK)

	if got := resp.Header.Get("X-Audio-Channels"); got != "1" {
		t.Errorf("X-Audio-Channels: got %q", got)
	}
	out := readBody(t, resp)
	if want := samplesToBytes([]int16{150, 150, 150}); !bytes.Equal(out[44:], want) {
		t.Errorf("downmixed payload: got % x, want % x", out[44:], want)
	}
}

func TestOptimizeAudio_BadDuration(t *testing.T) {
	e := newEnv(t)
	clip := buildWAV(1, 44100, []int16{1})

	for _, d := range []string{"abc", "-3", "0"} {
		body, ct := multipartBody(t, map[string]string{"duration": d},
			filePart{field: "file", name: "raw.wav", data: clip})
		resp := e.do(t, http.MethodPost, "/api/optimize-audio", body, ct)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("duration %q: got %d, want 400", d, resp.StatusCode)
		}
	}
}

func TestOptimizeAudio_NotWAV(t *testing.T) {
	e := newEnv(t)

	body, ct := multipartBody(t, nil, filePart{field: "file", name: "raw.mp3", data: []byte("not a wav")})
	resp := e.do(t, http.MethodPost, "/api/optimize-audio", body, ct)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want 422", resp.StatusCode)
	}
	eb := decodeBody[errBody](t, resp)
	if eb.Error == "" {
		t.Error("error body is empty")
	}
}

func TestOptimizeAudio_MissingFile(t *testing.T) {
	e := newEnv(t)

	body, ct := multipartBody(t, map[string]string{"duration": "1"})
	resp := e.do(t, http.MethodPost, "/api/optimize-audio", body, ct)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
}
