package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Skryldev/apikit/models"
	"github.com/Skryldev/apikit/service"
)

// userListResponse is the paginated list payload: one page of items plus
// the independently counted total.
type userListResponse struct {
	Items []*models.User `json:"items"`
	Total int64          `json:"total"`
}

// GET /api/v1/users?page=&page_size=
func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 10)

	users, total, err := a.users.List(r.Context(), page, pageSize)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userListResponse{Items: users, Total: total})
}

// GET /api/v1/users/{id}
func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	user, err := a.users.Get(r.Context(), id)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// POST /api/v1/users
func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var input service.CreateUserInput
	if !decodeBody(w, r, &input) {
		return
	}
	user, err := a.users.Create(r.Context(), input)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// PATCH /api/v1/users/{id}
func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var input service.UpdateUserInput
	if !decodeBody(w, r, &input) {
		return
	}
	user, err := a.users.Update(r.Context(), id, input)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// DELETE /api/v1/users/{id}
func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.users.Delete(r.Context(), id); err != nil {
		a.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── request parsing helpers ─────────────────────────────────────────────────

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		// The route pattern constrains {id} to digits; overflow is the
		// only way here, and it cannot name an existing row.
		writeJSON(w, http.StatusNotFound, errorBody{Detail: "User not found"})
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Detail: "malformed request body",
			Fields: map[string]string{"body": err.Error()},
		})
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
