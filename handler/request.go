package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"weather-chat/internal/domain"
)

const (
	maxMessages      = 100
	maxContentLength = 2000
	maxBodyBytes     = 2 << 20
)

type chatRequest struct {
	Messages []domain.ChatMessage `json:"messages"`
	Settings *domain.ChatSettings `json:"settings"`
}

// requestError is a rejected request, rendered as {"detail": ...}.
type requestError struct {
	Status int
	Detail string
}

func (e *requestError) Error() string {
	return fmt.Sprintf("handler: %d %s", e.Status, e.Detail)
}

func badRequest(detail string) *requestError {
	return &requestError{Status: http.StatusBadRequest, Detail: detail}
}

func unprocessable(detail string) *requestError {
	return &requestError{Status: http.StatusUnprocessableEntity, Detail: detail}
}

// decodeChatRequest parses and validates a chat stream request body. Shape
// errors are 422; content rule violations are 400.
func decodeChatRequest(body []byte) (chatRequest, *requestError) {
	var req chatRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&req); err != nil {
		return chatRequest{}, unprocessable("Invalid request body: " + err.Error())
	}
	if req.Messages == nil {
		return chatRequest{}, unprocessable("messages: field required")
	}
	for i, m := range req.Messages {
		if !m.Role.Valid() {
			return chatRequest{}, unprocessable(fmt.Sprintf("messages[%d].role: must be one of user, assistant, system, tool", i))
		}
	}

	settings := domain.ChatSettings{Units: domain.UnitsMetric}
	if req.Settings != nil {
		if req.Settings.Units != "" && !req.Settings.Units.Valid() {
			return chatRequest{}, unprocessable("settings.units: must be one of metric, imperial")
		}
		settings = req.Settings.Normalized()
	}
	req.Settings = &settings

	if err := validateMessages(req.Messages); err != nil {
		return chatRequest{}, err
	}
	return req, nil
}

func validateMessages(messages []domain.ChatMessage) *requestError {
	if len(messages) == 0 {
		return badRequest("Messages list cannot be empty")
	}
	if len(messages) > maxMessages {
		return badRequest(fmt.Sprintf("Too many messages. Maximum %d messages allowed.", maxMessages))
	}
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			return badRequest("Message content cannot be empty")
		}
		if utf8.RuneCountInString(m.Content) > maxContentLength {
			return badRequest(fmt.Sprintf("Message content too long. Maximum %d characters allowed.", maxContentLength))
		}
	}
	return nil
}
