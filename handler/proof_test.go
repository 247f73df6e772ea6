package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/higpup01-design/proofok/model"
	"github.com/higpup01-design/proofok/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const samplePDF = "%PDF-1.4\n1 0 obj << >> endobj\n%%EOF\n"

type stubSender struct {
	mu   sync.Mutex
	err  error
	sent []service.Message
}

func (s *stubSender) Send(ctx context.Context, msg service.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return s.err
}

type testServer struct {
	router   *gin.Engine
	workflow *service.Workflow
	sender   *stubSender
}

func newTestServer(t *testing.T, mode string, sender *stubSender, maxUpload int64) *testServer {
	t.Helper()
	root := t.TempDir()

	records, err := service.NewRecordStore(filepath.Join(root, "data"))
	require.NoError(t, err)
	t.Cleanup(func() { records.Close() })
	files, err := service.NewLocalFileStore(filepath.Join(root, "uploads"))
	require.NoError(t, err)
	t.Cleanup(func() { files.Close() })

	if sender == nil {
		sender = &stubSender{}
	}
	notifier, err := service.NewNotifier(sender, service.NotifierOptions{
		Mode:    mode,
		Timeout: time.Second,
		Relay:   "smtp.example.com:587",
	})
	require.NoError(t, err)
	t.Cleanup(notifier.Close)

	workflow := service.NewWorkflow(records, files, notifier, "https://proofs.example.com")
	router, err := NewRouter(NewProofHandler(workflow, maxUpload), RouterOptions{RateLimit: 1000, RateWindow: time.Minute})
	require.NoError(t, err)

	return &testServer{router: router, workflow: workflow, sender: sender}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, filename, originalName, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	if originalName != "" {
		require.NoError(t, mw.WriteField("original_name", originalName))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func formRequest(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func (s *testServer) upload(t *testing.T, name string) string {
	t.Helper()
	w := s.do(uploadRequest(t, name, "", samplePDF))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		OK    bool   `json:"ok"`
		Token string `json:"token"`
		URL   string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.OK)
	return resp.Token
}

func (s *testServer) proof(t *testing.T, token string) *model.Proof {
	t.Helper()
	proof, err := s.workflow.GetProof(context.Background(), token)
	require.NoError(t, err)
	return proof
}

func TestUpload(t *testing.T) {
	s := newTestServer(t, service.ModeOff, nil, 0)

	w := s.do(uploadRequest(t, "invoice.pdf", "Client Menu v2.pdf", samplePDF))
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	token, _ := resp["token"].(string)
	assert.True(t, service.ValidToken(token))
	assert.Equal(t, "https://proofs.example.com/proof/"+token, resp["url"])
	assert.Equal(t, true, resp["ok"])

	proof := s.proof(t, token)
	assert.Equal(t, "Client Menu v2.pdf", proof.OriginalName)
	assert.Equal(t, model.StatusPending, proof.Status)
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
}

func TestUploadRejectsBadInput(t *testing.T) {
	s := newTestServer(t, service.ModeOff, nil, 0)

	tests := []struct {
		name     string
		filename string
	}{
		{"missing file", ""},
		{"not a pdf", "invoice.docx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(uploadRequest(t, tt.filename, "", samplePDF))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"error":"Please upload a .pdf file"}`, w.Body.String())
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	s := newTestServer(t, service.ModeOff, nil, 512)

	w := s.do(uploadRequest(t, "big.pdf", "", strings.Repeat("x", 4096)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.JSONEq(t, `{"error":"File is too large"}`, w.Body.String())
}

func TestProofPage(t *testing.T) {
	s := newTestServer(t, service.ModeOff, nil, 0)
	up := s.do(uploadRequest(t, "menu.pdf", "Menu <draft>.pdf", samplePDF))
	require.Equal(t, http.StatusOK, up.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(up.Body.Bytes(), &resp))
	tok := resp["token"].(string)

	w := s.do(httptest.NewRequest(http.MethodGet, "/proof/"+tok, nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Menu &lt;draft&gt;.pdf")
	assert.NotContains(t, body, "<draft>")
	assert.Contains(t, body, "/p/"+tok+"/Menu%20%3Cdraft%3E.pdf")
	assert.Contains(t, body, `action="/respond/`+tok+`"`)
	assert.Contains(t, body, "pending")
	assert.Contains(t, body, Version)
}

func TestProofPageShowsLastDecision(t *testing.T) {
	s := newTestServer(t, service.ModeOff, nil, 0)
	tok := s.upload(t, "menu.pdf")

	w := s.do(formRequest("/api/respond/"+tok, url.Values{"decision": {"approved"}, "viewer_name": {"Alice"}}))
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(httptest.NewRequest(http.MethodGet, "/proof/"+tok, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Last decision: approved by Alice")
}

func TestProofPageNotFound(t *testing.T) {
	s := newTestServer(t, service.ModeOff, nil, 0)

	for _, token := range []string{"000000000000", "not-a-token"} {
		w := s.do(httptest.NewRequest(http.MethodGet, "/proof/"+token, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, token)
		assert.Contains(t, w.Body.String(), "This proof link was not found.")
	}
}

func TestServeFile(t *testing.T) {
	s := newTestServer(t, service.ModeOff, nil, 0)
	tok := s.upload(t, "invoice.pdf")

	w := s.do(httptest.NewRequest(http.MethodGet, "/p/"+tok+"/invoice.pdf", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename=invoice.pdf`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, samplePDF, w.Body.String())
}

func TestServeFileRange(t *testing.T) {
	s := newTestServer(t, service.ModeOff, nil, 0)
	tok := s.upload(t, "invoice.pdf")

	req := httptest.NewRequest(http.MethodGet, "/p/"+tok+"/invoice.pdf", nil)
	req.Header.Set("Range", "bytes=0-3")
	w := s.do(req)

	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "%PDF", w.Body.String())
}

func TestServeFileNotFound(t *testing.T) {
	s := newTestServer(t, service.ModeOff, nil, 0)
	tok := s.upload(t, "invoice.pdf")

	for _, path := range []string{
		"/p/" + tok + "/other.pdf",
		"/p/000000000000/invoice.pdf",
		"/p/" + tok + "/..",
	} {
		w := s.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestRespondAPI(t *testing.T) {
	s := newTestServer(t, service.ModeSync, nil, 0)
	tok := s.upload(t, "invoice.pdf")

	body := `{"decision":"Approved","comment":" ship it ","viewer_name":"Alice","viewer_email":"a@x.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/respond/"+tok, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	w := s.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	proof := s.proof(t, tok)
	assert.Equal(t, model.StatusApproved, proof.Status)
	require.Len(t, proof.Responses, 1)
	assert.Equal(t, "ship it", proof.Responses[0].Comment)
	assert.Equal(t, "Alice", proof.Responses[0].ViewerName)
	assert.Equal(t, "203.0.113.9", proof.Responses[0].IP)

	require.Len(t, s.sender.sent, 1)
	assert.Equal(t, "[Proof] invoice.pdf - APPROVED", s.sender.sent[0].Subject)
}

func TestRespondAPIRejectWithoutComment(t *testing.T) {
	s := newTestServer(t, service.ModeOff, nil, 0)
	tok := s.upload(t, "invoice.pdf")

	w := s.do(formRequest("/api/respond/"+tok, url.Values{"decision": {"rejected"}}))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StatusRejected, s.proof(t, tok).Status)
}

func TestRespondAPIErrors(t *testing.T) {
	s := newTestServer(t, service.ModeOff, nil, 0)
	tok := s.upload(t, "invoice.pdf")

	w := s.do(formRequest("/api/respond/"+tok, url.Values{"decision": {"maybe"}}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "approved")

	w = s.do(formRequest("/api/respond/000000000000", url.Values{"decision": {"approved"}}))
	assert.Equal(t, http.StatusNotFound, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/respond/"+tok, strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w = s.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// The token is checked before the body is parsed
	for _, body := range []string{"{", `{"decision":42}`} {
		req = httptest.NewRequest(http.MethodPost, "/api/respond/000000000000", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w = s.do(req)
		assert.Equal(t, http.StatusNotFound, w.Code, body)
		assert.JSONEq(t, `{"error":"Not found"}`, w.Body.String())
	}

	proof := s.proof(t, tok)
	assert.Equal(t, model.StatusPending, proof.Status)
	assert.Empty(t, proof.Responses)
}

func TestRespondAPIMailFailureWarns(t *testing.T) {
	sender := &stubSender{err: errors.New("connection refused")}
	s := newTestServer(t, service.ModeSync, sender, 0)
	tok := s.upload(t, "invoice.pdf")

	w := s.do(formRequest("/api/respond/"+tok, url.Values{"decision": {"approved"}}))

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["ok"])
	assert.Contains(t, resp["warning"], "smtp.example.com:587")
	assert.Contains(t, resp["warning"], "connection refused")
	assert.Equal(t, model.StatusApproved, s.proof(t, tok).Status)
}

func TestRespondForm(t *testing.T) {
	s := newTestServer(t, service.ModeOff, nil, 0)
	tok := s.upload(t, "invoice.pdf")

	w := s.do(formRequest("/respond/"+tok, url.Values{
		"decision":    {"rejected"},
		"comment":     {"wrong colour"},
		"viewer_name": {"Bob"},
	}))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Thank you, your decision was recorded.")
	assert.Contains(t, w.Body.String(), "/proof/"+tok)

	proof := s.proof(t, tok)
	assert.Equal(t, model.StatusRejected, proof.Status)
	require.Len(t, proof.Responses, 1)
	assert.Equal(t, "wrong colour", proof.Responses[0].Comment)
}

func TestRespondFormErrors(t *testing.T) {
	s := newTestServer(t, service.ModeOff, nil, 0)
	tok := s.upload(t, "invoice.pdf")

	tests := []struct {
		name    string
		token   string
		values  url.Values
		status  int
		message string
	}{
		{"reject without comment", tok, url.Values{"decision": {"rejected"}, "comment": {"  "}}, http.StatusBadRequest, "Please include a comment when rejecting."},
		{"invalid decision", tok, url.Values{"decision": {"later"}}, http.StatusBadRequest, "Invalid decision."},
		{"unknown token", "000000000000", url.Values{"decision": {"approved"}}, http.StatusNotFound, "This proof link was not found."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(formRequest("/respond/"+tt.token, tt.values))
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.message)
		})
	}

	proof := s.proof(t, tok)
	assert.Equal(t, model.StatusPending, proof.Status)
	assert.Empty(t, proof.Responses)
}

func TestRespondFormMailFailureWarns(t *testing.T) {
	sender := &stubSender{err: errors.New("auth failed")}
	s := newTestServer(t, service.ModeSync, sender, 0)
	tok := s.upload(t, "invoice.pdf")

	w := s.do(formRequest("/respond/"+tok, url.Values{"decision": {"approved"}}))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "auth failed")
	assert.Contains(t, w.Body.String(), "Thank you")
}

func TestIndexHealthzRoutes(t *testing.T) {
	s := newTestServer(t, service.ModeOff, nil, 0)

	w := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ProofOK is running. Version: "+Version, w.Body.String())

	w = s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var health struct {
		OK      bool   `json:"ok"`
		Version string `json:"version"`
		Time    string `json:"time"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.True(t, health.OK)
	assert.Equal(t, Version, health.Version)
	_, err := time.Parse(time.RFC3339, health.Time)
	assert.NoError(t, err)

	w = s.do(httptest.NewRequest(http.MethodGet, "/routes", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var routes struct {
		Routes []string `json:"routes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &routes))
	assert.Contains(t, routes.Routes, "POST /api/upload")
	assert.Contains(t, routes.Routes, "GET /proof/:token")
	assert.Contains(t, routes.Routes, "POST /respond/:token")
}

func newLimitedRouter(t *testing.T, proxies []string) *gin.Engine {
	t.Helper()
	root := t.TempDir()
	records, err := service.NewRecordStore(filepath.Join(root, "data"))
	require.NoError(t, err)
	t.Cleanup(func() { records.Close() })
	files, err := service.NewLocalFileStore(filepath.Join(root, "uploads"))
	require.NoError(t, err)
	t.Cleanup(func() { files.Close() })
	notifier, err := service.NewNotifier(&stubSender{}, service.NotifierOptions{Mode: service.ModeOff})
	require.NoError(t, err)

	workflow := service.NewWorkflow(records, files, notifier, "http://localhost")
	router, err := NewRouter(NewProofHandler(workflow, 0), RouterOptions{
		RateLimit:      1,
		RateWindow:     time.Minute,
		TrustedProxies: proxies,
	})
	require.NoError(t, err)
	return router
}

func postDecision(router *gin.Engine, forwardedFor string) int {
	req := formRequest("/api/respond/000000000000", url.Values{"decision": {"approved"}})
	req.RemoteAddr = "192.0.2.10:4000"
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitAppliesToPosts(t *testing.T) {
	router := newLimitedRouter(t, nil)

	assert.Equal(t, http.StatusNotFound, postDecision(router, ""))
	assert.Equal(t, http.StatusTooManyRequests, postDecision(router, ""))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	router := newLimitedRouter(t, nil)

	assert.Equal(t, http.StatusNotFound, postDecision(router, "198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, postDecision(router, "198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, postDecision(router, "198.51.100.3"))
}

func TestRateLimitHonoursTrustedProxy(t *testing.T) {
	router := newLimitedRouter(t, []string{"192.0.2.0/24"})

	assert.Equal(t, http.StatusNotFound, postDecision(router, "198.51.100.1"))
	assert.Equal(t, http.StatusNotFound, postDecision(router, "198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, postDecision(router, "198.51.100.1"))
}

func TestNewRouterRejectsBadProxy(t *testing.T) {
	_, err := NewRouter(&ProofHandler{}, RouterOptions{TrustedProxies: []string{"not-an-ip"}})
	assert.Error(t, err)
}
