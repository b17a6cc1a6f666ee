package http

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"promptrelay/adapters/session"
	"promptrelay/domain"
	"promptrelay/usecase"
	"promptrelay/utils/log"
)

const (
	sessionCookieName = "session"

	// Expiry of the signed token inside the cookie. The cookie itself
	// carries no Max-Age, so the browser drops it when the session ends.
	sessionTokenExpiry = 24 * time.Hour
)

//go:embed web/index.html
var indexHTML []byte

type ChatHandler struct {
	svc       *usecase.ChatService
	sessions  *session.Store
	jwtSecret []byte
}

type askRequest struct {
	Prompt string `json:"prompt"`
}

type clarifyResponse struct {
	Response string `json:"response"`
}

type finalizeResponse struct {
	Summary       string `json:"summary"`
	FinalResponse string `json:"final_response"`
}

type sessionClaims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

func NewChatHandler(svc *usecase.ChatService, sessions *session.Store, jwtSecret []byte) *ChatHandler {
	return &ChatHandler{
		svc:       svc,
		sessions:  sessions,
		jwtSecret: jwtSecret,
	}
}

// Index serves the single chat page.
func (h *ChatHandler) Index(c echo.Context) error {
	return c.HTMLBlob(http.StatusOK, indexHTML)
}

func (h *ChatHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Ask runs one turn of the prompt chain for the caller's session.
func (h *ChatHandler) Ask(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil || req.Prompt == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "No prompt provided")
	}

	ctx := c.Request().Context()
	log.WithCtx(ctx).Info("received prompt", zap.String("prompt", req.Prompt))

	sessionID, _ := c.Get("session_id").(string)

	// The store serializes access per session, so concurrent requests
	// with the same cookie take turns instead of racing on the history.
	var result *usecase.TurnResult
	err := h.sessions.WithConversation(sessionID, func(conv *domain.Conversation) error {
		var execErr error
		result, execErr = h.svc.Execute(ctx, conv, req.Prompt)
		return execErr
	})
	switch {
	case errors.Is(err, usecase.ErrSummaryFailed):
		return echo.NewHTTPError(http.StatusInternalServerError, "Summary generation failed")
	case errors.Is(err, usecase.ErrFinalFailed):
		return echo.NewHTTPError(http.StatusInternalServerError, "Final response generation failed")
	case errors.Is(err, usecase.ErrCallFailed):
		return echo.NewHTTPError(http.StatusInternalServerError, "API call failed")
	case err != nil:
		return err
	}

	if result.Questions != "" {
		return c.JSON(http.StatusOK, clarifyResponse{Response: result.Questions})
	}
	return c.JSON(http.StatusOK, finalizeResponse{
		Summary:       result.Summary,
		FinalResponse: result.Final,
	})
}

// SessionMiddleware resolves the caller's session ID from the signed
// session cookie, minting a fresh session when the cookie is absent,
// expired, or tampered with.
func (h *ChatHandler) SessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sessionID, ok := h.sessionIDFromCookie(c)
		if !ok {
			sessionID = uuid.NewString()
			if err := h.setSessionCookie(c, sessionID); err != nil {
				return err
			}
		}

		c.Set("session_id", sessionID)
		ctx := context.WithValue(c.Request().Context(), "session_id", sessionID)
		if rid := c.Response().Header().Get(echo.HeaderXRequestID); rid != "" {
			ctx = context.WithValue(ctx, "request_id", rid)
		}
		c.SetRequest(c.Request().WithContext(ctx))

		return next(c)
	}
}

func (h *ChatHandler) sessionIDFromCookie(c echo.Context) (string, bool) {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	token, err := jwt.ParseWithClaims(cookie.Value, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || claims.SessionID == "" {
		return "", false
	}
	return claims.SessionID, true
}

func (h *ChatHandler) setSessionCookie(c echo.Context, sessionID string) error {
	claims := &sessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(sessionTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "promptrelay",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(h.jwtSecret)
	if err != nil {
		log.With(zap.Error(err)).Error("signing session cookie failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "An error occurred")
	}

	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ErrorHandler shapes every error as the {"error": ...} payload the
// client expects. Anything without an explicit message, panics from the
// Recover middleware included, comes out as the generic failure.
func ErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	message := "An error occurred"

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		}
	}

	if code >= http.StatusInternalServerError {
		log.WithCtx(c.Request().Context()).Error("request failed", zap.Error(err))
	}

	if !c.Response().Committed {
		if jsonErr := c.JSON(code, map[string]string{"error": message}); jsonErr != nil {
			log.With(zap.Error(jsonErr)).Error("writing error response failed")
		}
	}
}
