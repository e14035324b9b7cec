package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/quickfix/quickfix-api/internal/apperr"
	"github.com/quickfix/quickfix-api/internal/logger"
	"github.com/quickfix/quickfix-api/internal/models"
	"github.com/quickfix/quickfix-api/internal/request"
	"github.com/quickfix/quickfix-api/internal/services/listings"
	"go.uber.org/zap"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
	streamReadLimit  = 4096
)

// Stream frame types
const (
	StreamSnapshot = "snapshot"
	StreamError    = "error"
)

// StreamMessage is one websocket frame of the listings stream
type StreamMessage struct {
	Type      string            `json:"type"`
	Count     int               `json:"count"`
	Providers []models.Provider `json:"providers"`
	Error     string            `json:"error,omitempty"`
	Message   string            `json:"message,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
}

// StreamHandler pushes realtime snapshots of the caller's listings over a websocket
type StreamHandler struct {
	listings ListingManager
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewStreamHandler creates a stream handler. A nil checkOrigin accepts
// same-origin upgrades only.
func NewStreamHandler(manager ListingManager, checkOrigin func(*http.Request) bool, log *zap.Logger) *StreamHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &StreamHandler{
		listings: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger: log,
	}
}

// RegisterRoutes registers the stream route on a router with the /api/v1/me prefix
func (h *StreamHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/providers/stream", h.Stream).Methods(http.MethodGet)
}

func snapshotMessage(providers []models.Provider, err error) StreamMessage {
	if err != nil {
		p := apperr.Classify(err)
		return StreamMessage{Type: StreamError, Error: string(p.Kind), Message: p.Message, Retryable: p.Retryable}
	}
	if providers == nil {
		providers = []models.Provider{}
	}
	return StreamMessage{Type: StreamSnapshot, Count: len(providers), Providers: providers}
}

// Stream upgrades to a websocket and sends a snapshot now and after every
// change to the caller's listings until either side closes.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	uid := request.UID(r)
	if uid == "" {
		respondProblem(w, r, h.logger, listings.ErrNotSignedIn)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request
		h.logger.Debug("stream_upgrade_failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Only the newest snapshot matters; a slow client skips intermediate ones
	updates := make(chan StreamMessage, 1)
	push := func(m StreamMessage) {
		for {
			select {
			case updates <- m:
				return
			default:
				select {
				case <-updates:
				default:
				}
			}
		}
	}

	sub, err := h.listings.WatchMine(ctx, uid, func(providers []models.Provider, err error) {
		push(snapshotMessage(providers, err))
	})
	if err != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		_ = conn.WriteJSON(snapshotMessage(nil, err))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"))
		return
	}
	defer sub.Unsubscribe()

	h.logger.Info("listing_stream_opened", zap.String("uid", logger.SanitizeUID(uid)))
	defer h.logger.Info("listing_stream_closed", zap.String("uid", logger.SanitizeUID(uid)))

	// The client sends nothing but control frames; reading keeps pongs flowing
	// and notices when it goes away.
	go func() {
		defer cancel()
		conn.SetReadLimit(streamReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
