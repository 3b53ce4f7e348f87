package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"letterbox/internal/metrics"
	"letterbox/internal/util"
	"letterbox/pkg/domain"
	"letterbox/services/letters/internal/app"
)

const (
	serviceName         = "letters"
	defaultMaxBodyBytes = 4 << 20
	isoMillis           = "2006-01-02T15:04:05.000Z07:00"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	TrustedProxies []string
	MaxBodyBytes   int64
}

// Server exposes HTTP endpoints for the letters service.
type Server struct {
	app          *app.App
	mux          *http.ServeMux
	trusted      *util.TrustedProxies
	maxBodyBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	s := &Server{
		app:          cfg.App,
		mux:          http.NewServeMux(),
		trusted:      trusted,
		maxBodyBytes: maxBody,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(
		util.WithRequestLog(serviceName, s.trusted,
			metrics.Instrument(serviceName, routeLabel,
				util.WithSecurityHeaders(util.WithCORS(s.mux)))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", metrics.Handler())

	// letters
	s.mux.HandleFunc("/letters", s.handleLetters)
	s.mux.HandleFunc("/letters/", s.handleLetterByID)

	// users
	s.mux.HandleFunc("/users", s.handleUsers)
	s.mux.HandleFunc("/users/", s.handleUserPostbox)
	s.mux.HandleFunc("/mailbox", s.handleMailbox)
}

// routeLabel maps a path onto its route template for metrics.
func routeLabel(r *http.Request) string {
	path := r.URL.Path
	switch path {
	case "/healthz", "/metrics", "/letters", "/users", "/mailbox":
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/letters/"); ok {
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1:
			return "/letters/{id}"
		case len(parts) == 2 && (parts[1] == "deliver" || parts[1] == "overlay"):
			return "/letters/{id}/" + parts[1]
		}
	}
	if rest, ok := strings.CutPrefix(path, "/users/"); ok {
		if parts := strings.Split(rest, "/"); len(parts) == 2 && parts[1] == "postbox" {
			return "/users/{pincode}/postbox"
		}
	}
	return "other"
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLetters(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateLetter(w, r)
	case http.MethodGet:
		s.handleListLetters(w, r)
	default:
		methodNotAllowed(w)
	}
}

type createLetterResponse struct {
	Message         string `json:"message"`
	LetterID        string `json:"letterId"`
	DeliveryTime    string `json:"deliveryTime"`
	DeliverySeconds int64  `json:"deliverySeconds"`
}

func (s *Server) handleCreateLetter(w http.ResponseWriter, r *http.Request) {
	var in app.CreateLetterInput
	if !s.decode(w, r, &in) {
		return
	}
	created, err := s.app.CreateLetter(r.Context(), in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createLetterResponse{
		Message:         "Letter sent successfully",
		LetterID:        created.Letter.ID,
		DeliveryTime:    created.Letter.DeliveryTime.UTC().Format(isoMillis),
		DeliverySeconds: created.DeliverySeconds,
	})
}

func (s *Server) handleListLetters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	letters, err := s.app.ListLetters(r.Context(), app.LetterQuery{
		ReceiverPincode: strings.TrimSpace(q.Get("receiverPincode")),
		SenderPincode:   strings.TrimSpace(q.Get("senderPincode")),
		IncludePending:  parseBool(q.Get("includePending")),
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"letters": letters})
}

// /letters/{id}, /letters/{id}/deliver or /letters/{id}/overlay
func (s *Server) handleLetterByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/letters/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		notFound(w, "not found")
		return
	}
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		letter, err := s.app.GetLetter(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"letter": letter})
		return
	}
	switch parts[1] {
	case "deliver":
		if r.Method != http.MethodPost && r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		s.handleDeliver(w, r, id)
	case "overlay":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleOverlay(w, r, id)
	default:
		notFound(w, "not found")
	}
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request, id string) {
	letter, err := s.app.Deliver(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Letter marked as delivered",
		"letter":  letter,
	})
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request, id string) {
	data, err := s.app.Overlay(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type userRequest struct {
	Pincode string `json:"pincode"`
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req userRequest
		if !s.decode(w, r, &req) {
			return
		}
		user, created, err := s.app.UpsertUser(r.Context(), req.Pincode)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		status, msg := http.StatusOK, "User already exists"
		if created {
			status, msg = http.StatusCreated, "User created successfully"
		}
		writeJSON(w, status, map[string]string{"message": msg, "userId": user.ID})
	case http.MethodGet:
		user, err := s.app.GetUser(r.Context(), strings.TrimSpace(r.URL.Query().Get("pincode")))
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	default:
		methodNotAllowed(w)
	}
}

// /users/{pincode}/postbox
func (s *Server) handleUserPostbox(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/users/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "postbox" {
		notFound(w, "not found")
		return
	}
	pincode := parts[0]
	switch r.Method {
	case http.MethodGet:
		box, err := s.app.GetPostbox(r.Context(), pincode)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"postbox": box})
	case http.MethodPut:
		var box domain.Postbox
		if !s.decode(w, r, &box) {
			return
		}
		box.Pincode = pincode
		saved, err := s.app.SavePostbox(r.Context(), box)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"postbox": saved})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleMailbox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	view, err := s.app.Mailbox(r.Context(), strings.TrimSpace(r.URL.Query().Get("pincode")))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(out); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Request body is required")
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

type notReadyResponse struct {
	errorResponse
	DeliveryTime string `json:"deliveryTime"`
	CurrentTime  string `json:"currentTime"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, newErrorResponse(w, status, msg))
}

func newErrorResponse(w http.ResponseWriter, status int, msg string) errorResponse {
	return errorResponse{
		Error:     msg,
		Code:      errorCodeForLetters(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	}
}

// writeAppError maps app errors onto responses. Unexpected errors are logged
// with the request id and answered with a generic 500.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var notReady *app.NotReadyError
	if errors.As(err, &notReady) {
		writeJSON(w, http.StatusBadRequest, notReadyResponse{
			errorResponse: newErrorResponse(w, http.StatusBadRequest, "Letter is not ready for delivery yet"),
			DeliveryTime:  notReady.DeliveryTime.UTC().Format(isoMillis),
			CurrentTime:   notReady.CurrentTime.UTC().Format(isoMillis),
		})
		return
	}
	var invalidPostbox *app.InvalidPostboxError
	switch {
	case errors.Is(err, app.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "Missing required fields: title, content, senderPincode, receiverPincode, or receiverAddress")
	case errors.Is(err, app.ErrInvalidDeliveryTime):
		writeError(w, http.StatusBadRequest, "Invalid delivery time")
	case errors.Is(err, app.ErrInvalidPincode):
		writeError(w, http.StatusBadRequest, "Invalid pincode. Must be 6 digits.")
	case errors.Is(err, app.ErrPincodeRequired):
		writeError(w, http.StatusBadRequest, "Pincode is required")
	case errors.Is(err, app.ErrPincodeFilterRequired):
		writeError(w, http.StatusBadRequest, "Either receiverPincode or senderPincode is required")
	case errors.As(err, &invalidPostbox):
		writeError(w, http.StatusBadRequest, "Invalid postbox: "+invalidPostbox.Reason)
	case errors.Is(err, app.ErrLetterNotFound):
		notFound(w, "Letter not found")
	case errors.Is(err, app.ErrUserNotFound):
		notFound(w, "User not found")
	case errors.Is(err, app.ErrOverlayNotFound):
		notFound(w, "Overlay not found")
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func errorCodeForLetters(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case strings.HasPrefix(message, "missing required fields"):
		return "LETTER_MISSING_FIELDS"
	case message == "invalid delivery time":
		return "LETTER_INVALID_DELIVERY_TIME"
	case message == "letter is not ready for delivery yet":
		return "LETTER_NOT_READY"
	case message == "letter not found":
		return "LETTER_NOT_FOUND"
	case strings.HasPrefix(message, "either receiverpincode or senderpincode"):
		return "LETTER_PINCODE_REQUIRED"
	case message == "overlay not found":
		return "OVERLAY_NOT_FOUND"
	case strings.HasPrefix(message, "invalid pincode"):
		return "USER_INVALID_PINCODE"
	case message == "pincode is required":
		return "USER_PINCODE_REQUIRED"
	case message == "user not found":
		return "USER_NOT_FOUND"
	case strings.HasPrefix(message, "invalid postbox"):
		return "POSTBOX_INVALID"
	case message == "invalid json body", message == "request body is required":
		return "SYSTEM_INVALID_REQUEST"
	case message == "request body too large":
		return "SYSTEM_BODY_TOO_LARGE"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "SYSTEM_INVALID_REQUEST"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
