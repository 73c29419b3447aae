package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/obsidianstack/channelmux/pkg/types"
	"github.com/obsidianstack/channelmux/server/internal/auth"
	"github.com/obsidianstack/channelmux/server/internal/hub"
)

// maxBodySize bounds request bodies on the POST endpoints.
const maxBodySize = 64 << 10

// Hub is the part of the websocket hub the API serves.
type Hub interface {
	Publish(ctx context.Context, channel, event string, data json.RawMessage) error
	Channels() []hub.ChannelInfo
	Count() int
}

// TokenIssuer signs channel authorization tokens.
type TokenIssuer interface {
	Issue(socketID, channel string) (string, error)
}

// Options configures the API handler. AuthMode, AuthHeader and AuthKey protect
// the POST endpoints; see auth.APIKey.
type Options struct {
	Hub    Hub
	Tokens TokenIssuer

	AuthMode   string
	AuthHeader string
	AuthKey    string
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	hub    Hub
	tokens TokenIssuer
	router chi.Router
}

// New creates a Handler and registers all routes.
func New(opts Options) http.Handler {
	h := &Handler{hub: opts.Hub, tokens: opts.Tokens, router: chi.NewRouter()}

	r := h.router
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/channels", h.listChannels)

		r.Group(func(r chi.Router) {
			r.Use(auth.APIKey(opts.AuthMode, opts.AuthHeader, opts.AuthKey))
			r.Post("/auth/channels", h.authorizeChannel)
			r.Post("/channels/{name}/events", h.publishEvent)
		})
	})

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Sockets:  h.hub.Count(),
		Channels: len(h.hub.Channels()),
	})
}

// listChannels returns GET /api/v1/channels, the channels with connected members.
func (h *Handler) listChannels(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, h.hub.Channels())
}

// authorizeChannel answers POST /api/v1/auth/channels with a token binding
// the socket to a protected channel. The body is JSON or a urlencoded form
// carrying socket_id and channel_name.
func (h *Handler) authorizeChannel(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		if err := r.ParseForm(); err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid form body")
			return
		}
		req.SocketID = r.PostForm.Get("socket_id")
		req.ChannelName = r.PostForm.Get("channel_name")
	} else if !decodeBody(w, r, &req) {
		return
	}

	if req.SocketID == "" || req.ChannelName == "" {
		jsonErr(w, http.StatusBadRequest, "socket_id and channel_name are required")
		return
	}
	if !types.RequiresAuth(req.ChannelName) {
		jsonErr(w, http.StatusBadRequest, "channel does not require authorization")
		return
	}

	token, err := h.tokens.Issue(req.SocketID, req.ChannelName)
	if err != nil {
		slog.Error("api: issue token failed", "channel", req.ChannelName, "err", err)
		jsonErr(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	slog.Debug("api: channel authorized", "socket_id", req.SocketID, "channel", req.ChannelName)
	jsonResp(w, http.StatusOK, AuthResponse{Auth: token})
}

// publishEvent answers POST /api/v1/channels/{name}/events by publishing the
// event to every member of the channel.
func (h *Handler) publishEvent(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "name")

	var req PublishRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Event == "" {
		jsonErr(w, http.StatusBadRequest, "event is required")
		return
	}

	if err := h.hub.Publish(r.Context(), channel, req.Event, req.Data); err != nil {
		if errors.Is(err, hub.ErrReservedEvent) {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("api: publish failed", "channel", channel, "event", req.Event, "err", err)
		jsonErr(w, http.StatusBadGateway, "publish failed")
		return
	}
	jsonResp(w, http.StatusAccepted, PublishResponse{Channel: channel, Event: req.Event})
}

// --- helpers ----------------------------------------------------------------

// decodeBody decodes a JSON request body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
