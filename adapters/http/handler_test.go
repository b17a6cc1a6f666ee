package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptrelay/adapters/session"
	"promptrelay/domain"
	"promptrelay/usecase"
)

type scriptedLlm struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
}

func (s *scriptedLlm) Complete(_ context.Context, _ []domain.Message, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	var reply string
	if i < len(s.replies) {
		reply = s.replies[i]
	}
	return reply, err
}

func newTestServer(llm domain.Llm) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	e.Use(middleware.Recover())

	h := NewChatHandler(usecase.NewChatService(llm), session.NewStore(), []byte("test-secret"))
	e.GET("/", h.Index, h.SessionMiddleware)
	e.GET("/healthz", h.HealthCheck)
	e.POST("/ask", h.Ask, h.SessionMiddleware)
	return e
}

func postAsk(e *echo.Echo, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAskRejectsMissingPrompt(t *testing.T) {
	e := newTestServer(&scriptedLlm{})

	rec := postAsk(e, `{}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]string{"error": "No prompt provided"}, decodeBody(t, rec))
}

func TestAskRejectsMalformedBody(t *testing.T) {
	e := newTestServer(&scriptedLlm{})

	rec := postAsk(e, `not json`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No prompt provided", decodeBody(t, rec)["error"])
}

func TestAskFreshSessionReturnsClarifyingQuestions(t *testing.T) {
	llm := &scriptedLlm{replies: []string{"1. A? 2. B? 3. C?"}}
	e := newTestServer(llm)

	rec := postAsk(e, `{"prompt":"Build me a website"}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"response": "1. A? 2. B? 3. C?"}, decodeBody(t, rec))

	// A fresh session cookie is set on the first request.
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, sessionCookieName, cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
}

func TestAskSecondTurnRunsFullChain(t *testing.T) {
	llm := &scriptedLlm{replies: []string{
		"1. A? 2. B? 3. C?",
		"assistant answer",
		"the summary",
		"the final answer",
	}}
	e := newTestServer(llm)

	first := postAsk(e, `{"prompt":"Build me a website"}`, nil)
	require.Equal(t, http.StatusOK, first.Code)
	cookies := first.Result().Cookies()
	require.NotEmpty(t, cookies)

	second := postAsk(e, `{"prompt":"It sells cocoa"}`, cookies)

	assert.Equal(t, http.StatusOK, second.Code)
	body := decodeBody(t, second)
	assert.Equal(t, "the summary", body["summary"])
	assert.Equal(t, "the final answer", body["final_response"])
	assert.Equal(t, 4, llm.calls)
}

func TestAskWithoutCookieStartsOver(t *testing.T) {
	llm := &scriptedLlm{replies: []string{"questions", "more questions"}}
	e := newTestServer(llm)

	first := postAsk(e, `{"prompt":"hello"}`, nil)
	require.Equal(t, http.StatusOK, first.Code)

	// No cookie sent back: a new conversation begins, so the second
	// request is another clarification turn, not a finalization.
	second := postAsk(e, `{"prompt":"hello again"}`, nil)

	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "more questions", decodeBody(t, second)["response"])
}

func TestAskTamperedCookieMintsNewSession(t *testing.T) {
	llm := &scriptedLlm{replies: []string{"questions"}}
	e := newTestServer(llm)

	rec := postAsk(e, `{"prompt":"hello"}`, []*http.Cookie{
		{Name: sessionCookieName, Value: "not-a-valid-token"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.NotEqual(t, "not-a-valid-token", cookies[0].Value)
}

func TestAskConcurrentRequestsSameSession(t *testing.T) {
	// Enough replies for every request, whichever branch each one takes.
	replies := make([]string, 64)
	for i := range replies {
		replies[i] = fmt.Sprintf("reply %d", i)
	}
	llm := &scriptedLlm{replies: replies}
	e := newTestServer(llm)

	first := postAsk(e, `{"prompt":"hello"}`, nil)
	require.Equal(t, http.StatusOK, first.Code)
	cookies := first.Result().Cookies()
	require.NotEmpty(t, cookies)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			postAsk(e, `{"prompt":"again"}`, cookies)
		}()
	}
	wg.Wait()
}

func TestAskGatewayFailure(t *testing.T) {
	llm := &scriptedLlm{errs: []error{errors.New("upstream exploded")}}
	e := newTestServer(llm)

	rec := postAsk(e, `{"prompt":"hello"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]string{"error": "API call failed"}, decodeBody(t, rec))
}

func TestAskSummaryFailure(t *testing.T) {
	llm := &scriptedLlm{replies: []string{"questions", "answer", ""}}
	e := newTestServer(llm)

	first := postAsk(e, `{"prompt":"Build me a website"}`, nil)
	cookies := first.Result().Cookies()

	second := postAsk(e, `{"prompt":"details"}`, cookies)

	assert.Equal(t, http.StatusInternalServerError, second.Code)
	assert.Equal(t, "Summary generation failed", decodeBody(t, second)["error"])
}

func TestAskFinalFailure(t *testing.T) {
	llm := &scriptedLlm{replies: []string{"questions", "answer", "summary", ""}}
	e := newTestServer(llm)

	first := postAsk(e, `{"prompt":"Build me a website"}`, nil)
	cookies := first.Result().Cookies()

	second := postAsk(e, `{"prompt":"details"}`, cookies)

	assert.Equal(t, http.StatusInternalServerError, second.Code)
	assert.Equal(t, "Final response generation failed", decodeBody(t, second)["error"])
}

func TestPanicBecomesGenericError(t *testing.T) {
	e := newTestServer(&scriptedLlm{})
	e.GET("/boom", func(echo.Context) error {
		panic("something went sideways")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]string{"error": "An error occurred"}, decodeBody(t, rec))
}

func TestIndexServesChatPage(t *testing.T) {
	e := newTestServer(&scriptedLlm{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<form id=\"ask-form\"")
}

func TestHealthCheck(t *testing.T) {
	e := newTestServer(&scriptedLlm{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"status": "ok"}, decodeBody(t, rec))
}
