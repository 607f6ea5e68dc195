package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"weather-chat/internal/domain"
	"weather-chat/internal/observability"
)

// LambdaHandler serves the chat relay behind an AWS Lambda Function URL
// configured for response streaming.
type LambdaHandler struct {
	chat   ChatStreamer
	logger *slog.Logger
}

func NewLambdaHandler(chat ChatStreamer, logger *slog.Logger) (*LambdaHandler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat streamer must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LambdaHandler{chat: chat, logger: logger}, nil
}

func (h *LambdaHandler) Handle(ctx context.Context, req events.LambdaFunctionURLRequest) (*events.LambdaFunctionURLStreamingResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ctx = observability.WithCorrelationID(ctx, correlationID)

	method := req.RequestContext.HTTP.Method
	path := req.RawPath
	if path == "" {
		path = req.RequestContext.HTTP.Path
	}
	h.logger.InfoContext(ctx, "lambda request", "method", method, "path", path)

	switch {
	case method == http.MethodGet && path == "/health":
		return jsonResponse(http.StatusOK, correlationID, map[string]string{"status": "ok"}), nil
	case method == http.MethodPost && path == "/api/chat/stream":
		return h.streamChat(ctx, correlationID, req), nil
	}
	return jsonResponse(http.StatusNotFound, correlationID, map[string]string{"detail": "Not Found"}), nil
}

func (h *LambdaHandler) streamChat(ctx context.Context, correlationID string, req events.LambdaFunctionURLRequest) *events.LambdaFunctionURLStreamingResponse {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			h.logger.WarnContext(ctx, "decode base64 body failed", "err", err)
			return jsonResponse(http.StatusBadRequest, correlationID, map[string]string{"detail": "Could not read request body"})
		}
		body = decoded
	}

	chatReq, reqErr := decodeChatRequest(body)
	if reqErr != nil {
		h.logger.WarnContext(ctx, "chat request rejected", "status", reqErr.Status, "detail", reqErr.Detail)
		return jsonResponse(reqErr.Status, correlationID, map[string]string{"detail": reqErr.Detail})
	}

	pr, pw := io.Pipe()
	go func() {
		w := newSSEWriter(pw, nil, h.logger)
		defer func() {
			if r := recover(); r != nil {
				h.logger.ErrorContext(ctx, "unhandled panic", "panic", r)
				_ = w.Emit(domain.ErrorEvent(msgUnexpected))
				_ = w.Emit(domain.DoneEvent())
				_ = pw.CloseWithError(fmt.Errorf("handler: chat stream panicked: %v", r))
				return
			}
			_ = pw.Close()
		}()

		err := h.chat.StreamChat(ctx, chatReq.Messages, *chatReq.Settings, w.Emit)
		if err != nil {
			h.logger.WarnContext(ctx, "chat stream ended with error", "err", err)
		}
	}()

	return &events.LambdaFunctionURLStreamingResponse{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type":    "text/event-stream",
			"Cache-Control":   "no-cache",
			correlationHeader: correlationID,
		},
		Body: pr,
	}
}

func jsonResponse(status int, correlationID string, v any) *events.LambdaFunctionURLStreamingResponse {
	buf, _ := json.Marshal(v)
	return &events.LambdaFunctionURLStreamingResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: strings.NewReader(string(buf)),
	}
}

// headerValue looks a header up case-insensitively; Function URLs deliver
// lower-cased names.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
