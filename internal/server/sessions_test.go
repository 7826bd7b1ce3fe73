package server_test

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/technolifts/presence/internal/config"
	"github.com/technolifts/presence/pkg/audio"
	"github.com/technolifts/presence/pkg/types"
)

// sessionResponse mirrors the session envelope returned by the API.
type sessionResponse struct {
	SessionID    string   `json:"session_id"`
	PersonaName  string   `json:"persona_name"`
	Questions    []string `json:"questions"`
	Answered     int      `json:"answered"`
	Total        int      `json:"total"`
	Done         bool     `json:"done"`
	NextQuestion string   `json:"next_question"`
}

// createSession starts a session through the API and returns its envelope.
func createSession(t *testing.T, e *env, personaName string) sessionResponse {
	t.Helper()
	resp := e.postJSON(t, "/api/sessions", map[string]string{"persona_name": personaName})
	wantStatus(t, resp, http.StatusCreated)
	return decodeBody[sessionResponse](t, resp)
}

// postAnswer uploads one answer recording for the given question index.
func postAnswer(t *testing.T, e *env, sessionID, index string, wav []byte, extra map[string]string) *http.Response {
	t.Helper()
	fields := map[string]string{"question_index": index}
	for k, v := range extra {
		fields[k] = v
	}
	body, ct := multipartBody(t, fields, filePart{field: "file", name: "answer.wav", data: wav})
	return e.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/answers", body, ct)
}

func TestCreateSession(t *testing.T) {
	e := newEnv(t)

	sess := createSession(t, e, "Ada")
	if sess.SessionID == "" {
		t.Fatal("session_id is empty")
	}
	if sess.PersonaName != "Ada" {
		t.Errorf("persona_name: got %q, want %q", sess.PersonaName, "Ada")
	}
	if len(sess.Questions) != len(testQuestions) {
		t.Fatalf("questions: got %d, want %d", len(sess.Questions), len(testQuestions))
	}
	if sess.Answered != 0 || sess.Total != 2 || sess.Done {
		t.Errorf("progress: got answered=%d total=%d done=%v", sess.Answered, sess.Total, sess.Done)
	}
	if sess.NextQuestion != testQuestions[0] {
		t.Errorf("next_question: got %q, want %q", sess.NextQuestion, testQuestions[0])
	}
}

func TestCreateSession_EmptyBody(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/api/sessions", nil, "application/json")
	wantStatus(t, resp, http.StatusCreated)
	sess := decodeBody[sessionResponse](t, resp)
	if sess.PersonaName != "" {
		t.Errorf("persona_name: got %q, want empty", sess.PersonaName)
	}
}

func TestSessionProgress_NotFound(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/api/sessions/no-such-id", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", resp.StatusCode)
	}
	body := decodeBody[errBody](t, resp)
	if body.Error != "session not found" {
		t.Errorf("error: got %q", body.Error)
	}
}

func TestAnswerFlow(t *testing.T) {
	e := newEnv(t)
	sess := createSession(t, e, "")

	wav := buildWAV(1, 44100, []int16{1, 2, 3, 4})

	resp := postAnswer(t, e, sess.SessionID, "0", wav, nil)
	wantStatus(t, resp, http.StatusOK)
	got := decodeBody[sessionResponse](t, resp)
	if got.Answered != 1 || got.Done {
		t.Fatalf("after first answer: answered=%d done=%v", got.Answered, got.Done)
	}
	if got.NextQuestion != testQuestions[1] {
		t.Errorf("next_question: got %q, want %q", got.NextQuestion, testQuestions[1])
	}

	resp = postAnswer(t, e, sess.SessionID, "1", wav, nil)
	wantStatus(t, resp, http.StatusOK)
	got = decodeBody[sessionResponse](t, resp)
	if got.Answered != 2 || !got.Done {
		t.Fatalf("after second answer: answered=%d done=%v", got.Answered, got.Done)
	}
	if got.NextQuestion != "" {
		t.Errorf("next_question after completion: got %q, want empty", got.NextQuestion)
	}
}

func TestAnswer_OutOfOrder(t *testing.T) {
	e := newEnv(t)
	sess := createSession(t, e, "")

	wav := buildWAV(1, 44100, []int16{1, 2})
	resp := postAnswer(t, e, sess.SessionID, "1", wav, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status: got %d, want 409", resp.StatusCode)
	}
	body := decodeBody[errBody](t, resp)
	if !strings.Contains(body.Error, "out of order") {
		t.Errorf("error: got %q, want it to mention out of order", body.Error)
	}
}

func TestAnswer_BadIndex(t *testing.T) {
	e := newEnv(t)
	sess := createSession(t, e, "")
	wav := buildWAV(1, 44100, []int16{1, 2})

	resp := postAnswer(t, e, sess.SessionID, "two", wav, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("non-numeric index: got %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postAnswer(t, e, sess.SessionID, "7", wav, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("out-of-range index: got %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAnswer_MissingFile(t *testing.T) {
	e := newEnv(t)
	sess := createSession(t, e, "")

	body, ct := multipartBody(t, map[string]string{"question_index": "0"})
	resp := e.do(t, http.MethodPost, "/api/sessions/"+sess.SessionID+"/answers", body, ct)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
	eb := decodeBody[errBody](t, resp)
	if eb.Error != "file part is required" {
		t.Errorf("error: got %q", eb.Error)
	}
}

func TestAnswer_Transcribed(t *testing.T) {
	e := newEnv(t)
	e.voice.TranscribeResult = &types.Transcript{Text: "my name is Ada", Language: "en"}
	sess := createSession(t, e, "")

	wav := buildWAV(1, 44100, []int16{5, 6, 7})
	resp := postAnswer(t, e, sess.SessionID, "0", wav, map[string]string{"transcribe": "true"})
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	if n := len(e.voice.TranscribeCalls); n != 1 {
		t.Fatalf("Transcribe calls: got %d, want 1", n)
	}
	call := e.voice.TranscribeCalls[0]
	if call.Filename != "answer.wav" {
		t.Errorf("filename hint: got %q, want %q", call.Filename, "answer.wav")
	}
	if !bytes.Equal(call.Audio, wav) {
		t.Error("transcribed audio does not match the upload")
	}

	stored, err := e.sessions.Get(sess.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	answers := stored.Answers()
	if len(answers) != 1 || answers[0].Transcript != "my name is Ada" {
		t.Errorf("stored transcript: got %+v", answers)
	}
}

func TestAnswer_TranscribeFailure(t *testing.T) {
	e := newEnv(t)
	e.voice.TranscribeErr = errors.New("stt offline")
	sess := createSession(t, e, "")

	wav := buildWAV(1, 44100, []int16{5, 6})
	resp := postAnswer(t, e, sess.SessionID, "0", wav, map[string]string{"transcribe": "true"})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status: got %d, want 502", resp.StatusCode)
	}
	resp.Body.Close()

	// The failed upload must not count as an answer.
	stored, err := e.sessions.Get(sess.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p := stored.Progress(); p.Answered != 0 {
		t.Errorf("answered after failed transcription: got %d, want 0", p.Answered)
	}
}

func TestAnswer_ReRecord(t *testing.T) {
	e := newEnv(t)
	sess := createSession(t, e, "")

	first := buildWAV(1, 44100, []int16{1, 1})
	second := buildWAV(1, 44100, []int16{2, 2})

	resp := postAnswer(t, e, sess.SessionID, "0", first, nil)
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = postAnswer(t, e, sess.SessionID, "0", second, nil)
	wantStatus(t, resp, http.StatusOK)
	got := decodeBody[sessionResponse](t, resp)
	if got.Answered != 1 {
		t.Fatalf("answered after re-record: got %d, want 1", got.Answered)
	}

	stored, err := e.sessions.Get(sess.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if answers := stored.Answers(); !bytes.Equal(answers[0].Audio, second) {
		t.Error("re-recorded answer did not replace the stored blob")
	}
}

func TestCombine(t *testing.T) {
	e := newEnv(t)
	sess := createSession(t, e, "")

	p0 := []int16{100, 200, 300}
	p1 := []int16{-100, -200}
	resp := postAnswer(t, e, sess.SessionID, "0", buildWAV(1, 44100, p0), nil)
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	resp = postAnswer(t, e, sess.SessionID, "1", buildWAV(1, 44100, p1), nil)
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = e.do(t, http.MethodPost, "/api/sessions/"+sess.SessionID+"/combine", nil, "")
	wantStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Content-Type: got %q, want audio/wav", ct)
	}
	combined := readBody(t, resp)

	want := append(append([]int16{}, p0...), p1...)
	if got := combined[44:]; !bytes.Equal(got, samplesToBytes(want)) {
		t.Errorf("combined payload mismatch: got %d bytes", len(got))
	}
	if _, rate, err := audio.DecodeWAV(combined); err != nil || rate != 44100 {
		t.Errorf("decode combined output: rate=%d err=%v", rate, err)
	}
}

func TestCombine_NoAnswers(t *testing.T) {
	e := newEnv(t)
	sess := createSession(t, e, "")

	resp := e.do(t, http.MethodPost, "/api/sessions/"+sess.SessionID+"/combine", nil, "")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want 422", resp.StatusCode)
	}
	body := decodeBody[errBody](t, resp)
	if body.Error != "no recorded answers to combine" {
		t.Errorf("error: got %q", body.Error)
	}
}

func TestCombine_RateMismatch(t *testing.T) {
	e := newEnv(t)
	sess := createSession(t, e, "")

	resp := postAnswer(t, e, sess.SessionID, "0", buildWAV(1, 44100, []int16{1, 2}), nil)
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	resp = postAnswer(t, e, sess.SessionID, "1", buildWAV(1, 22050, []int16{3, 4}), nil)
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = e.do(t, http.MethodPost, "/api/sessions/"+sess.SessionID+"/combine", nil, "")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want 422", resp.StatusCode)
	}
	body := decodeBody[errBody](t, resp)
	if !strings.Contains(body.Error, "segment 1") {
		t.Errorf("error: got %q, want it to name segment 1", body.Error)
	}
}

func TestCombine_ResampleOnMismatch(t *testing.T) {
	e := newEnv(t, func(cfg *config.Config) {
		cfg.Audio.ResampleOnMismatch = true
	})
	sess := createSession(t, e, "")

	p0 := []int16{10, 20, 30, 40}
	p1 := []int16{50, 60}
	resp := postAnswer(t, e, sess.SessionID, "0", buildWAV(1, 44100, p0), nil)
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	resp = postAnswer(t, e, sess.SessionID, "1", buildWAV(1, 22050, p1), nil)
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = e.do(t, http.MethodPost, "/api/sessions/"+sess.SessionID+"/combine", nil, "")
	wantStatus(t, resp, http.StatusOK)
	combined := readBody(t, resp)

	samples, rate, err := audio.DecodeWAV(combined)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 44100 {
		t.Errorf("rate: got %d, want 44100", rate)
	}
	// The 22050 Hz answer doubles in length at 44100 Hz.
	if want := len(p0) + 2*len(p1); len(samples) != want {
		t.Errorf("combined samples: got %d, want %d", len(samples), want)
	}
}

func TestDeleteSession(t *testing.T) {
	e := newEnv(t)
	sess := createSession(t, e, "")

	resp := e.do(t, http.MethodDelete, "/api/sessions/"+sess.SessionID, nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: got %d, want 204", resp.StatusCode)
	}

	resp = e.do(t, http.MethodGet, "/api/sessions/"+sess.SessionID, nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("progress after delete: got %d, want 404", resp.StatusCode)
	}

	resp = e.do(t, http.MethodDelete, "/api/sessions/"+sess.SessionID, nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete: got %d, want 404", resp.StatusCode)
	}
}
