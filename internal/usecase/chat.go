package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"weather-chat/internal/domain"
	"weather-chat/internal/llm"
	"weather-chat/internal/weather"
)

const (
	statusAnalyzing   = "Analyzing your request..."
	statusGathering   = "Gathering live weather data..."
	statusSummarizing = "Summarizing insights..."

	temperature = 0.3
)

type ModelClient interface {
	CheckCredential(ctx context.Context) error
	OpenStream(ctx context.Context, req llm.CompletionRequest) (llm.Stream, error)
}

type ToolDispatcher interface {
	Dispatch(ctx context.Context, name, arguments string, settings domain.ChatSettings) (any, error)
}

// Emitter delivers one event to the client. A non-nil error means the client
// can no longer be reached, unless it wraps ErrEventEncoding.
type Emitter func(domain.StreamEvent) error

// ErrEventEncoding is returned by an Emitter that could not encode an event
// and sent the client a generic error event in its place.
var ErrEventEncoding = errors.New("usecase: event could not be encoded")

type ChatService struct {
	model  ModelClient
	tools  ToolDispatcher
	defs   []llm.ToolDefinition
	logger *slog.Logger
	tracer trace.Tracer
	newID  func() string
}

func NewChatService(model ModelClient, tools ToolDispatcher, defs []llm.ToolDefinition, logger *slog.Logger) (*ChatService, error) {
	if model == nil {
		return nil, errors.New("usecase: model client must not be nil")
	}
	if tools == nil {
		return nil, errors.New("usecase: tool dispatcher must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		model:  model,
		tools:  tools,
		defs:   defs,
		logger: logger,
		tracer: otel.Tracer("weather-chat/internal/usecase"),
		newID:  func() string { return "call_" + uuid.NewString() },
	}, nil
}

type stage int

const (
	stageInit stage = iota
	stagePriming
	stageFirstStream
	stageDecision
	stageToolExecution
	stageSecondStream
	stageDone
)

func (s stage) String() string {
	switch s {
	case stageInit:
		return "init"
	case stagePriming:
		return "priming"
	case stageFirstStream:
		return "first_stream"
	case stageDecision:
		return "decision"
	case stageToolExecution:
		return "tool_execution"
	case stageSecondStream:
		return "second_stream"
	case stageDone:
		return "done"
	}
	return "unknown"
}

// toolCallFragment accumulates one streamed tool call.
type toolCallFragment struct {
	id        string
	name      string
	arguments string
}

// chatRun is the state of one StreamChat invocation.
type chatRun struct {
	svc      *ChatService
	ctx      context.Context
	emit     Emitter
	messages []domain.ChatMessage
	settings domain.ChatSettings

	transcript   []llm.Message
	fragments    map[int]*toolCallFragment
	finishReason string
}

// StreamChat runs one chat turn, delivering events through emit. Exactly one
// done event is emitted last on every path. The returned error reports why
// the turn ended early; the client has already been sent an error event
// unless the code is ErrorClientGone.
func (s *ChatService) StreamChat(ctx context.Context, messages []domain.ChatMessage, settings domain.ChatSettings, emit Emitter) (err error) {
	ctx, span := s.tracer.Start(ctx, "usecase.StreamChat",
		trace.WithAttributes(attribute.Int("chat.messages", len(messages))))
	defer span.End()

	defer func() {
		if emitErr := emit(domain.DoneEvent()); emitErr != nil && err == nil {
			err = newError(ErrorClientGone, "emit_done", emitErr)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "chat stream ended early")
		}
	}()

	run := &chatRun{
		svc:       s,
		ctx:       ctx,
		emit:      emit,
		messages:  messages,
		settings:  settings.Normalized(),
		fragments: make(map[int]*toolCallFragment),
	}

	current := stageInit
	for current != stageDone {
		next, stepErr := run.step(current)
		if stepErr != nil {
			s.logger.WarnContext(ctx, "chat stream ended early", "stage", current.String(), "err", stepErr)
			return stepErr
		}
		current = next
	}
	return nil
}

func (r *chatRun) step(current stage) (stage, error) {
	switch current {
	case stageInit:
		return r.checkCredential()
	case stagePriming:
		return r.prime()
	case stageFirstStream:
		return r.firstStream()
	case stageDecision:
		return r.decide(), nil
	case stageToolExecution:
		return r.executeTools()
	case stageSecondStream:
		return r.secondStream()
	}
	return stageDone, nil
}

func (r *chatRun) checkCredential() (stage, error) {
	if err := r.svc.model.CheckCredential(r.ctx); err != nil {
		r.svc.logger.ErrorContext(r.ctx, "model credential unavailable", "err", err)
		return stageDone, r.fail(ErrorMissingCredential, "missing_credential", msgMissingCredential, err)
	}
	return stagePriming, nil
}

func (r *chatRun) prime() (stage, error) {
	if err := r.send(domain.StatusEvent(statusAnalyzing)); err != nil {
		return stageDone, err
	}
	r.transcript = buildTranscript(r.messages, r.settings)
	return stageFirstStream, nil
}

func (r *chatRun) firstStream() (stage, error) {
	if err := r.streamCompletion(llm.ToolChoiceAuto, true); err != nil {
		return stageDone, err
	}
	return stageDecision, nil
}

// decide stops after a content-only answer.
func (r *chatRun) decide() stage {
	if len(r.fragments) == 0 || r.finishReason != llm.FinishReasonToolCalls {
		return stageDone
	}
	return stageToolExecution
}

func (r *chatRun) executeTools() (stage, error) {
	if err := r.send(domain.StatusEvent(statusGathering)); err != nil {
		return stageDone, err
	}

	calls := r.orderedToolCalls()
	r.transcript = append(r.transcript, llm.Message{Role: domain.RoleAssistant, ToolCalls: calls})

	for _, call := range calls {
		payload := r.runTool(call)
		if err := r.send(domain.ToolEvent(call.Name, payload)); err != nil {
			return stageDone, err
		}

		content, err := json.Marshal(payload)
		if err != nil {
			r.svc.logger.ErrorContext(r.ctx, "encode tool result failed", "tool", call.Name, "err", err)
			content, _ = json.Marshal(domain.ToolErrorPayload{Error: true, Message: msgToolUnexpected})
		}
		r.transcript = append(r.transcript, llm.Message{
			Role:       domain.RoleTool,
			ToolCallID: call.ID,
			Content:    string(content),
		})
	}
	return stageSecondStream, nil
}

func (r *chatRun) secondStream() (stage, error) {
	if err := r.send(domain.StatusEvent(statusSummarizing)); err != nil {
		return stageDone, err
	}
	if err := r.streamCompletion(llm.ToolChoiceNone, false); err != nil {
		return stageDone, err
	}
	return stageDone, nil
}

// runTool returns the tool result, or an error payload when the tool failed.
func (r *chatRun) runTool(call llm.ToolCall) any {
	result, err := r.svc.tools.Dispatch(r.ctx, call.Name, call.Arguments, r.settings)
	if err == nil {
		return result
	}

	var werr *weather.Error
	if errors.As(err, &werr) {
		r.svc.logger.WarnContext(r.ctx, "weather tool error", "tool", call.Name, "kind", werr.Kind, "err", err)
		return domain.ToolErrorPayload{Error: true, Message: werr.Message}
	}
	r.svc.logger.ErrorContext(r.ctx, "unexpected tool error", "tool", call.Name, "err", err)
	return domain.ToolErrorPayload{Error: true, Message: msgToolUnexpected}
}

// streamCompletion opens a completion over the current transcript and relays
// content deltas as token events. Tool-call deltas are accumulated only when
// accumulate is set.
func (r *chatRun) streamCompletion(choice llm.ToolChoice, accumulate bool) error {
	stream, err := r.svc.model.OpenStream(r.ctx, llm.CompletionRequest{
		Messages:    r.transcript,
		Tools:       r.svc.defs,
		ToolChoice:  choice,
		Temperature: temperature,
	})
	if err != nil {
		r.svc.logger.ErrorContext(r.ctx, "open model stream failed", "tool_choice", string(choice), "err", err)
		code, msg := classifyOpenError(err)
		return r.fail(code, "open_stream", msg, err)
	}
	defer func() { _ = stream.Close() }()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			r.svc.logger.ErrorContext(r.ctx, "read model stream failed", "err", err)
			return r.fail(ErrorStream, "read_stream", msgStream, err)
		}
		if !chunk.HasChoice {
			continue
		}
		if accumulate && chunk.FinishReason != "" {
			r.finishReason = chunk.FinishReason
		}
		if chunk.Content != "" {
			if err := r.send(domain.TokenEvent(chunk.Content)); err != nil {
				return err
			}
		}
		if accumulate {
			r.accumulate(chunk.ToolCalls)
		}
	}
}

func (r *chatRun) accumulate(deltas []llm.ToolCallDelta) {
	for _, d := range deltas {
		frag, ok := r.fragments[d.Index]
		if !ok {
			frag = &toolCallFragment{}
			r.fragments[d.Index] = frag
		}
		if d.ID != "" {
			frag.id = d.ID
		}
		if d.Name != "" {
			frag.name = d.Name
		}
		frag.arguments += d.Arguments
	}
}

// orderedToolCalls finalizes fragments in provider index order. Calls the
// provider left without an id get a generated one so tool results can be
// matched.
func (r *chatRun) orderedToolCalls() []llm.ToolCall {
	indexes := make([]int, 0, len(r.fragments))
	for i := range r.fragments {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	calls := make([]llm.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		frag := r.fragments[i]
		if frag.id == "" {
			frag.id = r.svc.newID()
		}
		calls = append(calls, llm.ToolCall{ID: frag.id, Name: frag.name, Arguments: frag.arguments})
	}
	return calls
}

func (r *chatRun) send(ev domain.StreamEvent) error {
	if err := r.emit(ev); err != nil {
		if errors.Is(err, ErrEventEncoding) {
			return newError(ErrorInternal, "encode_event", err)
		}
		return newError(ErrorClientGone, "emit", err)
	}
	return nil
}

// fail emits a user-facing error event and returns the matching Error.
func (r *chatRun) fail(code ErrorCode, reason, message string, cause error) error {
	if err := r.send(domain.ErrorEvent(message)); err != nil {
		return err
	}
	return newError(code, reason, cause)
}
