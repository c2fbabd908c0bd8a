// Package httpapi exposes the application over HTTP: routing, the request
// lifecycle middleware, resource handlers, and the error translator.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Skryldev/apikit/config"
	"github.com/Skryldev/apikit/db"
	"github.com/Skryldev/apikit/logging"
	"github.com/Skryldev/apikit/service"
)

// API bundles the handler dependencies: settings, the session manager (for
// health probes), the user service, and the process loggers.
type API struct {
	cfg   *config.Settings
	mgr   *db.SessionManager
	users *service.UserService
	logs  *logging.Loggers
}

// New constructs the API. logs may be nil, in which case all records are
// discarded (tests).
func New(cfg *config.Settings, mgr *db.SessionManager, users *service.UserService, logs *logging.Loggers) *API {
	if logs == nil {
		logs = logging.Discard()
	}
	return &API{cfg: cfg, mgr: mgr, users: users, logs: logs}
}

// Handler builds the route table and wraps it in the lifecycle middleware.
// The middleware sits outside the router (not in mux.Use) so unmatched
// paths also get a correlation id and an access record.
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	if a.cfg.Debug {
		r.Use(cors)
	}

	r.HandleFunc("/", a.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", a.handleRootHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/health/db", a.handleHealthDB).Methods(http.MethodGet)
	v1.HandleFunc("/health/ready", a.handleHealthReady).Methods(http.MethodGet)

	v1.HandleFunc("/users", a.handleListUsers).Methods(http.MethodGet)
	v1.HandleFunc("/users", a.handleCreateUser).Methods(http.MethodPost)
	v1.HandleFunc("/users/{id:[0-9]+}", a.handleGetUser).Methods(http.MethodGet)
	v1.HandleFunc("/users/{id:[0-9]+}", a.handleUpdateUser).Methods(http.MethodPatch)
	v1.HandleFunc("/users/{id:[0-9]+}", a.handleDeleteUser).Methods(http.MethodDelete)

	return a.lifecycle(r)
}
