package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/service"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/types"
)

type Dependencies struct {
	Logger     *log.Logger
	Addr       string
	Tracker    *service.Tracker
	Places     *service.PlaceDirectory
	AdminToken string       // empty disables key rotation
	Metrics    http.Handler // optional; served on /metrics
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	mux        *http.ServeMux
	tracker    *service.Tracker
	places     *service.PlaceDirectory
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:  d.Logger,
		mux:     mux,
		tracker: d.Tracker,
		places:  d.Places,
	}

	mux.HandleFunc("POST /v1/places/{id}/toggle", s.handleToggle)
	mux.HandleFunc("POST /v1/places/{id}/rotate_key", adminOnly(d.AdminToken, s.handleRotateKey))
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	placeID, ok := pathPlaceID(w, r)
	if !ok {
		return
	}

	req, err := decodeToggle(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_body", err.Error())
		return
	}
	req.PlaceID = placeID

	res, err := s.tracker.Toggle(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPlaceID):
			writeError(w, r, http.StatusBadRequest, "invalid_place_id", err.Error())
		case errors.Is(err, service.ErrInvalidCode):
			writeError(w, r, http.StatusBadRequest, "invalid_code", err.Error())
		case errors.Is(err, service.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "unknown_place", "no place with that id and key")
		default:
			s.logger.Printf("toggle error place=%d: %v", placeID, err)
			writeError(w, r, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	if isProtobuf(r) {
		writeProto(w, http.StatusOK, resultToStruct(res))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	placeID, ok := pathPlaceID(w, r)
	if !ok {
		return
	}

	key, err := s.places.RotateKey(r.Context(), placeID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "unknown_place", err.Error())
		default:
			s.logger.Printf("rotate_key error place=%d: %v", placeID, err)
			writeError(w, r, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	s.logger.Printf("access key rotated place=%d", placeID)
	writeJSON(w, http.StatusOK, types.RotateKeyResponse{PlaceID: placeID, Key: key})
}

func pathPlaceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_place_id", "place id must be a positive integer")
		return 0, false
	}
	return id, true
}

func decodeToggle(r *http.Request) (types.ToggleRequest, error) {
	if isProtobuf(r) {
		var msg structpb.Struct
		if err := readProto(r, &msg); err != nil {
			return types.ToggleRequest{}, errors.New("invalid protobuf body")
		}
		return toggleRequestFromStruct(&msg)
	}

	var req types.ToggleRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return types.ToggleRequest{}, errors.New("invalid JSON body")
	}
	return req, nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers in the request's encoding.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	if isProtobuf(r) {
		writeProto(w, status, errorToStruct(code, msg))
		return
	}
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}
