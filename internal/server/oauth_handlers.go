package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/ravitejakamalapuram/copytradepro/internal/handshake"
)

// OAuthHandlers accepts auth codes arriving from outside the polling
// loop: the broker's redirect callback landing on this service, and
// the dashboard's websocket signal channel.
type OAuthHandlers struct {
	registry     *handshake.Registry
	publicOrigin string
	log          zerolog.Logger
}

// NewOAuthHandlers creates the OAuth callback and signal handlers.
func NewOAuthHandlers(registry *handshake.Registry, publicOrigin string, log zerolog.Logger) *OAuthHandlers {
	return &OAuthHandlers{
		registry:     registry,
		publicOrigin: publicOrigin,
		log:          log.With().Str("handler", "oauth").Logger(),
	}
}

// HandleCallback receives the broker's OAuth redirect
// GET /api/broker/oauth/callback?accountId=...&code=...
func (h *OAuthHandlers) HandleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	accountID := query.Get("accountId")
	code := firstNonEmpty(query.Get("code"), query.Get("auth_code"), query.Get("request_token"))

	if accountID == "" || code == "" {
		http.Error(w, "accountId and code are required", http.StatusBadRequest)
		return
	}

	// The redirect landed on our own origin, so the origin check is
	// against ourselves
	if err := h.registry.Signal(accountID, code, h.publicOrigin); err != nil {
		if errors.Is(err, handshake.ErrHandshakeFinished) {
			http.Error(w, "no handshake in flight for this account", http.StatusNotFound)
			return
		}
		h.log.Warn().Str("account_id", accountID).Err(err).Msg("OAuth callback rejected")
		http.Error(w, "callback rejected", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// Minimal page; the opener polls handshake state and closes us
	_, _ = w.Write([]byte("<html><body>Authentication received. You can close this window.</body></html>"))
}

// signalMessage is one frame on the signal socket.
type signalMessage struct {
	AccountID string `json:"accountId"`
	AuthCode  string `json:"authCode"`
}

type signalAck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// HandleListHandshakes reports every in-flight handshake
// GET /api/handshakes
func (h *OAuthHandlers) HandleListHandshakes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"handshakes": h.registry.Active(),
	})
}

// HandleSignalSocket upgrades to a websocket on which the dashboard
// relays auth codes it captured itself (e.g. from a popup it could
// still read). Origin verification happens twice: the websocket
// accept rejects foreign origins, and every relayed code passes the
// registry's own origin check.
// GET /api/broker/oauth/signal
func (h *OAuthHandlers) HandleSignalSocket(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if h.publicOrigin == "" {
		opts.InsecureSkipVerify = true // dev mode only
	} else if host := originHost(h.publicOrigin); host != "" {
		opts.OriginPatterns = []string{host}
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.log.Warn().Err(err).Msg("Signal socket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	origin := r.Header.Get("Origin")
	h.log.Info().Str("origin", origin).Msg("Signal socket connected")

	ctx := r.Context()
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				h.log.Info().Msg("Signal socket closed")
			} else if ctx.Err() == nil {
				h.log.Debug().Err(err).Msg("Signal socket read failed")
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg signalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.writeAck(ctx, conn, signalAck{OK: false, Error: "invalid message"})
			continue
		}

		if err := h.registry.Signal(msg.AccountID, msg.AuthCode, origin); err != nil {
			h.writeAck(ctx, conn, signalAck{OK: false, Error: err.Error()})
			continue
		}
		h.writeAck(ctx, conn, signalAck{OK: true})
	}
}

func (h *OAuthHandlers) writeAck(ctx context.Context, conn *websocket.Conn, ack signalAck) {
	data, err := json.Marshal(ack)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		h.log.Debug().Err(err).Msg("Signal socket ack write failed")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// originHost extracts the host (with port) from an origin URL.
func originHost(origin string) string {
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return ""
	}
	return parsed.Host
}
