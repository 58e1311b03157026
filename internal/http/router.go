package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"ai-doll-conversation-service/internal/service/conversation"
)

const (
	// multipartOverhead covers form boundaries and the child_id field.
	multipartOverhead = 1 << 20
	maxMemory         = 32 << 20

	msgInvalidToken = "Invalid authentication token."
)

// Submitter runs one conversation turn.
type Submitter interface {
	Submit(ctx context.Context, req conversation.Request) conversation.Response
}

// AuthRecorder counts rejected tokens.
type AuthRecorder interface {
	RecordAuthFailure()
}

// Deps are the handlers' collaborators. Ready, Limiter and Recorder may be nil.
type Deps struct {
	Pipeline      Submitter
	Gate          *conversation.Gate
	Ready         func() bool
	Limiter       *rate.Limiter
	Recorder      AuthRecorder
	MaxAudioBytes int64
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"message": "Welcome to the AI Interactive Smart Doll API!",
		})
	})

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if deps.Ready != nil && !deps.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Post("/auth/doll", deps.authenticate)
	r.Post("/talk", deps.talk)

	return r
}

type authRequest struct {
	AuthToken string `json:"auth_token"`
}

func (d Deps) authenticate(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Request body must be JSON with auth_token.")
		return
	}
	if err := d.Gate.Check(req.AuthToken); err != nil {
		d.recordAuthFailure()
		writeDetail(w, http.StatusUnauthorized, msgInvalidToken)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Doll authenticated successfully.",
	})
}

func (d Deps) talk(w http.ResponseWriter, r *http.Request) {
	if d.Limiter != nil && !d.Limiter.Allow() {
		writeDetail(w, http.StatusTooManyRequests, "Too many requests, slow down.")
		return
	}

	// Reject bad tokens before reading the upload.
	token := r.Header.Get("X-Auth-Token")
	if err := d.Gate.Check(token); err != nil {
		d.recordAuthFailure()
		writeDetail(w, http.StatusUnauthorized, msgInvalidToken)
		return
	}

	if d.MaxAudioBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, d.MaxAudioBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "Audio file too large.")
			return
		}
		writeDetail(w, http.StatusBadRequest, "Expected multipart form with child_id and audio_file.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("audio_file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "audio_file is required.")
		return
	}
	defer file.Close()

	clip, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Could not read audio_file.")
		return
	}

	resp := d.Pipeline.Submit(r.Context(), conversation.Request{
		AuthToken: token,
		ChildID:   r.FormValue("child_id"),
		Audio:     clip,
	})
	writeTurn(w, resp)
}

func (d Deps) recordAuthFailure() {
	if d.Recorder != nil {
		d.Recorder.RecordAuthFailure()
	}
}

// writeTurn maps a turn outcome onto the device contract: audio for success
// and for the apology, JSON detail otherwise.
func writeTurn(w http.ResponseWriter, resp conversation.Response) {
	w.Header().Set("X-Turn-Id", resp.TurnID)

	switch resp.Status {
	case conversation.StatusOK, conversation.StatusServiceUnavailable:
		code := http.StatusOK
		if resp.Status == conversation.StatusServiceUnavailable {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", resp.MimeType)
		w.Header().Set("Content-Length", strconv.Itoa(len(resp.Audio)))
		w.WriteHeader(code)
		if _, err := w.Write(resp.Audio); err != nil {
			log.Warn().Err(err).Str("turnId", resp.TurnID).Msg("Failed to stream audio")
		}
	case conversation.StatusUnauthorized:
		writeDetail(w, http.StatusUnauthorized, msgInvalidToken)
	case conversation.StatusInvalidRequest:
		writeDetail(w, http.StatusBadRequest, resp.ErrorMessage)
	case conversation.StatusTooLarge:
		writeDetail(w, http.StatusRequestEntityTooLarge, resp.ErrorMessage)
	default:
		writeDetail(w, http.StatusInternalServerError, resp.ErrorMessage)
	}
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
