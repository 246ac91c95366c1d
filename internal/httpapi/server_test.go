package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ahmedesmail07/ai-agent-platform/internal/apperr"
	"github.com/ahmedesmail07/ai-agent-platform/internal/chat"
	"github.com/ahmedesmail07/ai-agent-platform/internal/config"
	"github.com/ahmedesmail07/ai-agent-platform/internal/gateway"
	"github.com/ahmedesmail07/ai-agent-platform/internal/observability"
	"github.com/ahmedesmail07/ai-agent-platform/internal/protocol"
	"github.com/ahmedesmail07/ai-agent-platform/internal/store"
	"github.com/ahmedesmail07/ai-agent-platform/internal/voicechat"
)

// metricsSeq keeps per-test metric namespaces unique so repeated
// registration in the default registry does not collide.
var metricsSeq atomic.Int64

func newTestServer(t *testing.T) (*httptest.Server, *store.Store, *gateway.Mock) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	gw := gateway.NewMock()
	chatSvc := chat.NewService(st, gw, chat.Defaults{})
	voiceSvc := voicechat.NewService(st, chatSvc, gw, filepath.Join(dir, "audio"), "alloy")
	metrics := observability.NewMetrics(fmt.Sprintf("test%d", metricsSeq.Add(1)))

	srv := New(config.Config{AllowAnyOrigin: true}, st, chatSvc, voiceSvc, metrics)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, st, gw
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func createAgent(t *testing.T, ts *httptest.Server) store.Agent {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/agents", map[string]any{
		"name":       "Support Bot",
		"agent_type": "chatbot",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create agent status = %d", resp.StatusCode)
	}
	return decodeBody[store.Agent](t, resp)
}

func createSession(t *testing.T, ts *httptest.Server, agentID uint) store.ChatSession {
	t.Helper()
	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/agents/%d/sessions", ts.URL, agentID), nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}
	return decodeBody[store.ChatSession](t, resp)
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody[map[string]string](t, resp)
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestAgentLifecycle(t *testing.T) {
	ts, _, _ := newTestServer(t)
	agent := createAgent(t, ts)
	if agent.ID == 0 || !agent.IsActive {
		t.Fatalf("created agent = %+v", agent)
	}

	resp := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/agents/%d", ts.URL, agent.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get agent status = %d", resp.StatusCode)
	}
	got := decodeBody[store.Agent](t, resp)
	if got.Name != "Support Bot" {
		t.Fatalf("agent name = %q", got.Name)
	}

	resp = doJSON(t, http.MethodPut, fmt.Sprintf("%s/api/v1/agents/%d", ts.URL, agent.ID), map[string]any{
		"name":      "Renamed Bot",
		"is_active": false,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update agent status = %d", resp.StatusCode)
	}
	updated := decodeBody[store.Agent](t, resp)
	if updated.Name != "Renamed Bot" || updated.IsActive {
		t.Fatalf("updated agent = %+v", updated)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/agents/active", nil)
	active := decodeBody[[]store.Agent](t, resp)
	if len(active) != 0 {
		t.Fatalf("active agents = %d, want 0 after deactivation", len(active))
	}

	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/v1/agents/%d", ts.URL, agent.ID), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete agent: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/agents/%d", ts.URL, agent.ID), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted agent status = %d", resp.StatusCode)
	}
	errResp := decodeBody[errorBody](t, resp)
	if errResp.Error != "AGENT_NOT_FOUND" {
		t.Fatalf("error code = %q", errResp.Error)
	}
}

func TestHTTPRequestsCountedByRouteAndStatus(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	gw := gateway.NewMock()
	chatSvc := chat.NewService(st, gw, chat.Defaults{})
	voiceSvc := voicechat.NewService(st, chatSvc, gw, filepath.Join(dir, "audio"), "alloy")
	metrics := observability.NewMetrics(fmt.Sprintf("test%d", metricsSeq.Add(1)))
	srv := New(config.Config{AllowAnyOrigin: true}, st, chatSvc, voiceSvc, metrics)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/agents/999", nil)
	resp.Body.Close()

	if got := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/healthz", "200")); got != 1 {
		t.Fatalf("healthz 200 count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/api/v1/agents/{agentID}", "404")); got != 1 {
		t.Fatalf("agent 404 count = %v, want 1", got)
	}
}

func TestUpdateAgentBodyHandling(t *testing.T) {
	ts, _, _ := newTestServer(t)
	agent := createAgent(t, ts)
	url := fmt.Sprintf("%s/api/v1/agents/%d", ts.URL, agent.ID)

	// An empty body is a no-op update.
	req, _ := http.NewRequest(http.MethodPut, url, bytes.NewReader(nil))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT empty body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("empty body status = %d, want 200", resp.StatusCode)
	}
	unchanged := decodeBody[store.Agent](t, resp)
	if unchanged.Name != agent.Name {
		t.Fatalf("agent changed by empty-body update: %q", unchanged.Name)
	}

	// A truncated body is malformed, not empty.
	req, _ = http.NewRequest(http.MethodPut, url, strings.NewReader(`{"name":`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT truncated body: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("truncated body status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateAgentValidation(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/agents", map[string]any{"agent_type": "chatbot"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	errResp := decodeBody[errorBody](t, resp)
	if errResp.Error != "VALIDATION_ERROR" {
		t.Fatalf("error code = %q", errResp.Error)
	}
}

func TestGetAgentBadID(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/agents/abc", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateSessionUnknownAgent(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/agents/999/sessions", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	errResp := decodeBody[errorBody](t, resp)
	if errResp.Error != "AGENT_NOT_FOUND" {
		t.Fatalf("error code = %q", errResp.Error)
	}
}

func TestDeleteSession(t *testing.T) {
	ts, st, _ := newTestServer(t)
	agent := createAgent(t, ts)
	session := createSession(t, ts, agent.ID)
	doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/sessions/%d/messages", ts.URL, session.ID),
		map[string]any{"content": "Hello"}).Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/v1/sessions/%d", ts.URL, session.ID), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete session: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	if _, err := st.Session(context.Background(), session.ID); err == nil {
		t.Fatalf("session still present after delete")
	}

	resp, err = http.DefaultClient.Do(req.Clone(context.Background()))
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestSendMessageFlow(t *testing.T) {
	ts, _, gw := newTestServer(t)
	gw.Reply = "Hi there!"
	agent := createAgent(t, ts)
	session := createSession(t, ts, agent.ID)

	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/sessions/%d/messages", ts.URL, session.ID),
		map[string]any{"content": "Hello"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send message status = %d", resp.StatusCode)
	}
	reply := decodeBody[sendMessageResponse](t, resp)
	if reply.Message != "Hi there!" || reply.SessionID != session.ID {
		t.Fatalf("reply = %+v", reply)
	}

	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/sessions/%d/messages", ts.URL, session.ID), nil)
	messages := decodeBody[[]store.Message](t, resp)
	if len(messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(messages))
	}
	if messages[0].Sender != store.SenderUser || messages[1].Sender != store.SenderAgent {
		t.Fatalf("message order = %s, %s", messages[0].Sender, messages[1].Sender)
	}
}

func TestSendMessageEmptyContent(t *testing.T) {
	ts, _, gw := newTestServer(t)
	agent := createAgent(t, ts)
	session := createSession(t, ts, agent.ID)

	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/sessions/%d/messages", ts.URL, session.ID),
		map[string]any{"content": "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
	if len(gw.CompleteCalls) != 0 {
		t.Fatalf("completion ran for empty content")
	}
}

func TestSummarizeEndpoint(t *testing.T) {
	ts, _, gw := newTestServer(t)
	agent := createAgent(t, ts)
	session := createSession(t, ts, agent.ID)
	doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/sessions/%d/messages", ts.URL, session.ID),
		map[string]any{"content": "Hello"}).Body.Close()
	gw.Reply = "A short greeting exchange."

	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/sessions/%d/summarize", ts.URL, session.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summarize status = %d", resp.StatusCode)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["summary"] != "A short greeting exchange." {
		t.Fatalf("summary = %v", body["summary"])
	}
}

func voiceUpload(t *testing.T, ts *httptest.Server, sessionID uint, filename string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio_file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	url := fmt.Sprintf("%s/api/v1/sessions/%d/voice", ts.URL, sessionID)
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST voice: %v", err)
	}
	return resp
}

func TestVoiceUploadRejectsUnsupportedExtension(t *testing.T) {
	ts, _, gw := newTestServer(t)
	agent := createAgent(t, ts)
	session := createSession(t, ts, agent.ID)

	resp := voiceUpload(t, ts, session.ID, "notes.txt", []byte("plain text"))
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", resp.StatusCode)
	}
	errResp := decodeBody[errorBody](t, resp)
	if errResp.Error != "UNSUPPORTED_AUDIO_FORMAT" {
		t.Fatalf("error code = %q", errResp.Error)
	}
	if len(gw.TranscribeCalls) != 0 {
		t.Fatalf("transcription ran for rejected upload")
	}
}

func TestVoiceUploadFlow(t *testing.T) {
	ts, _, gw := newTestServer(t)
	gw.Transcription = "Hello agent"
	gw.Reply = "Hello user"
	gw.Audio = []byte("mp3-bytes")
	agent := createAgent(t, ts)
	session := createSession(t, ts, agent.ID)

	resp := voiceUpload(t, ts, session.ID, "question.mp3", []byte("fake audio"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody[voiceResponse](t, resp)
	if body.Message != "Hello user" || body.Transcription != "Hello agent" {
		t.Fatalf("body = %+v", body)
	}
	if !strings.HasPrefix(body.AudioURL, "/audio/response_") {
		t.Fatalf("audio url = %q", body.AudioURL)
	}

	audioResp, err := http.Get(ts.URL + body.AudioURL)
	if err != nil {
		t.Fatalf("GET %s: %v", body.AudioURL, err)
	}
	defer audioResp.Body.Close()
	if audioResp.StatusCode != http.StatusOK {
		t.Fatalf("audio status = %d", audioResp.StatusCode)
	}
}

func TestAudioNotFound(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/audio/missing.mp3")
	if err != nil {
		t.Fatalf("GET /audio: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func dialWS(t *testing.T, ts *httptest.Server, sessionID uint) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("%s/api/v1/ws/sessions/%d", strings.Replace(ts.URL, "http", "ws", 1), sessionID)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestChatWSStreamsDeltas(t *testing.T) {
	ts, st, gw := newTestServer(t)
	gw.Deltas = []string{"Hel", "lo ", "there"}
	agent := createAgent(t, ts)
	session := createSession(t, ts, agent.ID)

	conn := dialWS(t, ts, session.ID)
	if err := conn.WriteJSON(protocol.ChatPayload{Content: "Hi"}); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	var full strings.Builder
	for i := 0; i < len(gw.Deltas); i++ {
		var event protocol.MessageEvent
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("read delta %d: %v", i, err)
		}
		if event.Sender != store.SenderAgent {
			t.Fatalf("delta sender = %q", event.Sender)
		}
		full.WriteString(event.Content)
	}
	if full.String() != "Hello there" {
		t.Fatalf("streamed text = %q", full.String())
	}

	messages, err := st.SessionMessages(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("SessionMessages() error = %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(messages))
	}
	if messages[1].Content != "Hello there" {
		t.Fatalf("persisted agent turn = %q", messages[1].Content)
	}
}

func TestChatWSInvalidPayload(t *testing.T) {
	ts, _, gw := newTestServer(t)
	agent := createAgent(t, ts)
	session := createSession(t, ts, agent.ID)

	conn := dialWS(t, ts, session.ID)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"content":""}`)); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	var event protocol.ErrorEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read error event: %v", err)
	}
	if event.Code != "INVALID_PAYLOAD" {
		t.Fatalf("error code = %q", event.Code)
	}

	// The connection survives a bad payload.
	gw.Deltas = []string{"still here"}
	if err := conn.WriteJSON(protocol.ChatPayload{Content: "ping"}); err != nil {
		t.Fatalf("write second payload: %v", err)
	}
	var delta protocol.MessageEvent
	if err := conn.ReadJSON(&delta); err != nil {
		t.Fatalf("read delta: %v", err)
	}
	if delta.Content != "still here" {
		t.Fatalf("delta = %q", delta.Content)
	}
}

func TestChatWSUnknownSessionRejectsHandshake(t *testing.T) {
	ts, _, _ := newTestServer(t)
	url := strings.Replace(ts.URL, "http", "ws", 1) + "/api/v1/ws/sessions/404"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("dial succeeded for unknown session")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("handshake response = %+v", resp)
	}
	resp.Body.Close()
}

func TestChatWSGatewayFailureClosesWithError(t *testing.T) {
	ts, _, gw := newTestServer(t)
	gw.Reply = ""
	gw.StreamErr = apperr.New(apperr.KindQuotaExceeded, "OPENAI_QUOTA_EXCEEDED", "completion service quota exceeded")
	agent := createAgent(t, ts)
	session := createSession(t, ts, agent.ID)

	conn := dialWS(t, ts, session.ID)
	if err := conn.WriteJSON(protocol.ChatPayload{Content: "Hi"}); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	var event protocol.ErrorEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read error event: %v", err)
	}
	if event.Code != "OPENAI_QUOTA_EXCEEDED" {
		t.Fatalf("error code = %q", event.Code)
	}
}
