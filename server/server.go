// Package server exposes the form flow over a stateless JSON API. The client
// owns the conversation state and sends it back with every request.
package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/tbxark/formcopilot/agent"
	"github.com/tbxark/formcopilot/conversation"
	"github.com/tbxark/formcopilot/types"
	"github.com/tbxark/formcopilot/validate"
)

const (
	RequestIDHeader = "X-Request-Id"
	maxBodyBytes    = 1 << 20
)

var jsonMediaType = contenttype.NewMediaType("application/json")

type Handler struct {
	flow      *agent.FormFlow
	validator *validate.Validator
	log       *slog.Logger
	mux       *http.ServeMux
}

type Option func(*Handler)

// WithLogHandler logs through h; request attributes are added automatically.
func WithLogHandler(h slog.Handler) Option {
	return func(s *Handler) {
		s.log = slog.New(LogHandler{Handler: h})
	}
}

func WithValidator(v *validate.Validator) Option {
	return func(s *Handler) {
		s.validator = v
	}
}

func New(flow *agent.FormFlow, opts ...Option) *Handler {
	h := &Handler{
		flow:      flow,
		validator: validate.New(),
		log:       slog.New(LogHandler{Handler: slog.Default().Handler()}),
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.mux.HandleFunc("POST /api/conversations", h.handleNewConversation)
	h.mux.HandleFunc("POST /api/turns", h.handleTurn)
	h.mux.HandleFunc("POST /api/form", h.handleFormEdit)
	h.mux.HandleFunc("POST /api/form/submit", h.handleFormSubmit)
	h.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)
	ctx := withRequestData(r.Context(), &requestData{
		RequestID:  id,
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
	})
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

type conversationResponse struct {
	Reply string             `json:"reply"`
	Phase types.Phase        `json:"phase"`
	State conversation.State `json:"state"`
}

type turnRequest struct {
	State   *conversation.State `json:"state"`
	Message string              `json:"message"`
}

type turnResponse struct {
	Reply            string             `json:"reply"`
	ExtractedData    *types.Record      `json:"extractedData"`
	SubmissionStatus string             `json:"submissionStatus,omitempty"`
	Phase            types.Phase        `json:"phase"`
	State            conversation.State `json:"state"`
	Error            string             `json:"error,omitempty"`
}

type formRequest struct {
	State  *conversation.State `json:"state"`
	Record types.Record        `json:"record"`
}

type formResponse struct {
	ExtractedData *types.Record      `json:"extractedData"`
	Issues        []types.FieldInfo  `json:"issues,omitempty"`
	Phase         types.Phase        `json:"phase"`
	State         conversation.State `json:"state"`
}

type submitRequest struct {
	State *conversation.State `json:"state"`
}

type submitResponse struct {
	Reply            string             `json:"reply"`
	SubmissionStatus string             `json:"submissionStatus"`
	Phase            types.Phase        `json:"phase"`
	State            conversation.State `json:"state"`
}

type issuesResponse struct {
	Error  string            `json:"error"`
	Issues []types.FieldInfo `json:"issues"`
}

func (h *Handler) handleNewConversation(w http.ResponseWriter, r *http.Request) {
	state := h.flow.NewConversation()
	h.log.InfoContext(withConversation(r.Context(), state.ID), "conversation.start")
	writeJSON(w, http.StatusCreated, conversationResponse{
		Reply: state.Turns[0].Content,
		Phase: state.Phase,
		State: state,
	})
}

func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, http.StatusBadRequest, "message must not be empty")
		return
	}
	state, ok := h.foreignState(w, r, req.State)
	if !ok {
		return
	}
	ctx := withConversation(r.Context(), state.ID)

	resp, err := h.flow.ProcessTurn(ctx, state, req.Message)
	if err != nil {
		if errors.Is(err, agent.ErrEmptyInput) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.ErrorContext(ctx, "turn.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if msg := resp.Metadata["error"]; msg != "" {
		h.log.WarnContext(ctx, "turn.recovered", slog.String("err", msg))
	}
	h.log.InfoContext(ctx, "turn.done", slog.String("phase", string(resp.State.Phase)))
	writeJSON(w, http.StatusOK, turnResponse{
		Reply:            resp.Reply,
		ExtractedData:    resp.ExtractedData,
		SubmissionStatus: resp.SubmissionStatus,
		Phase:            resp.State.Phase,
		State:            resp.State,
		Error:            resp.Metadata["error"],
	})
}

func (h *Handler) handleFormEdit(w http.ResponseWriter, r *http.Request) {
	var req formRequest
	if !h.decode(w, r, &req) {
		return
	}
	state, ok := h.foreignState(w, r, req.State)
	if !ok {
		return
	}
	ctx := withConversation(r.Context(), state.ID)

	res, err := h.flow.ApplyFormEdit(ctx, state, req.Record)
	if err != nil {
		if errors.Is(err, agent.ErrSubmitted) {
			writeJSONError(w, http.StatusConflict, err.Error())
			return
		}
		h.log.ErrorContext(ctx, "form.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, formResponse{
		ExtractedData: res.ExtractedData,
		Issues:        res.Rejected,
		Phase:         res.State.Phase,
		State:         res.State,
	})
}

func (h *Handler) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !h.decode(w, r, &req) {
		return
	}
	state, ok := h.foreignState(w, r, req.State)
	if !ok {
		return
	}
	ctx := withConversation(r.Context(), state.ID)

	resp, err := h.flow.SubmitForm(ctx, state)
	if err != nil {
		var recErr *agent.RecordError
		switch {
		case errors.Is(err, agent.ErrSubmitted):
			writeJSONError(w, http.StatusConflict, err.Error())
		case errors.As(err, &recErr):
			writeJSON(w, http.StatusBadRequest, issuesResponse{Error: err.Error(), Issues: recErr.Issues})
		default:
			h.log.ErrorContext(ctx, "form.submit.fail", slog.String("err", err.Error()))
			writeJSONError(w, http.StatusBadGateway, "submission failed, please try again")
		}
		return
	}
	h.log.InfoContext(ctx, "form.submitted")
	writeJSON(w, http.StatusOK, submitResponse{
		Reply:            resp.Reply,
		SubmissionStatus: resp.SubmissionStatus,
		Phase:            resp.State.Phase,
		State:            resp.State,
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(r.Context(), "content_type.unsupported")
		return false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	if err := sonic.Unmarshal(body, v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		h.log.WarnContext(r.Context(), "json.decode.fail", slog.String("err", err.Error()))
		return false
	}
	return true
}

// foreignState validates a client-supplied state before it is trusted.
func (h *Handler) foreignState(w http.ResponseWriter, r *http.Request, state *conversation.State) (conversation.State, bool) {
	if state == nil {
		writeJSONError(w, http.StatusBadRequest, "state is required")
		return conversation.State{}, false
	}
	if err := state.Validate(h.validator); err != nil {
		h.log.WarnContext(r.Context(), "state.invalid", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return conversation.State{}, false
	}
	return *state, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	body, _ := sonic.Marshal(map[string]string{"error": msg})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
