package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/typeroom/internal/api/apierr"
	"github.com/mcoot/typeroom/internal/api/middleware"
	"github.com/mcoot/typeroom/internal/api/request"
	"github.com/mcoot/typeroom/internal/api/response"
	"github.com/mcoot/typeroom/internal/model"
	"github.com/mcoot/typeroom/internal/services/room"
)

// maxResultBody bounds a result report body in bytes
const maxResultBody = 4096

// ResultSubmitter records a result report and tells the room about it
type ResultSubmitter interface {
	SubmitResult(ctx context.Context, code model.RoomCode, userID model.UserID, update model.ResultUpdate) (*model.Result, error)
}

// RoomHandler handles room-related endpoints
type RoomHandler struct {
	rooms     *room.Service
	submitter ResultSubmitter
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(rooms *room.Service, submitter ResultSubmitter) *RoomHandler {
	return &RoomHandler{rooms: rooms, submitter: submitter}
}

// roomCode reads and normalizes the {code} path variable
func roomCode(r *http.Request) (model.RoomCode, error) {
	code := model.NormalizeRoomCode(mux.Vars(r)["code"])
	if code == "" {
		return "", model.ErrInvalidRoomCode
	}
	return code, nil
}

// Create handles POST /api/v1/rooms
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustGetIdentity(r.Context())

	var req request.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		apierr.WriteError(w, apierr.NewInvalidRequestError("Invalid request body"))
		return
	}

	details, err := h.rooms.CreateRoom(r.Context(), identity, req.Name, req.Public())
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.Created(w, "/api/v1/rooms/"+string(details.Room.Code), response.RoomDetailsFromService(details))
}

// Get handles GET /api/v1/rooms/{code}
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	code, err := roomCode(r)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	details, err := h.rooms.GetRoom(r.Context(), code)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RoomDetailsFromService(details))
}

// Join handles POST /api/v1/rooms/{code}/join
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustGetIdentity(r.Context())
	code, err := roomCode(r)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	details, err := h.rooms.JoinRoom(r.Context(), code, identity)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RoomDetailsFromService(details))
}

// Active handles GET /api/v1/rooms/active
func (h *RoomHandler) Active(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.rooms.ListActive(r.Context())
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ActiveRoomsFromService(summaries))
}

// Results handles GET /api/v1/rooms/{code}/results
func (h *RoomHandler) Results(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustGetIdentity(r.Context())
	code, err := roomCode(r)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	results, err := h.rooms.GetResults(r.Context(), code, identity.ID)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RoomResultsFromService(results))
}

// Publish handles POST /api/v1/rooms/{code}/results/publish
func (h *RoomHandler) Publish(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustGetIdentity(r.Context())
	code, err := roomCode(r)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	if err := h.rooms.PublishResults(r.Context(), code, identity.ID); err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// Spectate handles GET /api/v1/rooms/{code}/spectate
func (h *RoomHandler) Spectate(w http.ResponseWriter, r *http.Request) {
	code, err := roomCode(r)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	view, err := h.rooms.Spectate(r.Context(), code)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.SpectatorViewFromService(view))
}

// SubmitResult handles POST /api/v1/rooms/{code}/results. Fields left out of
// the body keep their stored values.
func (h *RoomHandler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustGetIdentity(r.Context())
	code, err := roomCode(r)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxResultBody))
	if err != nil {
		apierr.WriteError(w, apierr.NewInvalidRequestError("Invalid request body"))
		return
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		apierr.WriteError(w, apierr.NewInvalidRequestError("Result body required"))
		return
	}
	var update model.ResultUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		apierr.WriteError(w, apierr.NewInvalidRequestError("Invalid request body"))
		return
	}

	if _, err := h.rooms.CheckParticipant(r.Context(), code, identity.ID); err != nil {
		apierr.WriteError(w, err)
		return
	}

	result, err := h.submitter.SubmitResult(r.Context(), code, identity.ID, update)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ResultFromModel(*result))
}
