package chat

import (
	"net"
	"net/http"
	"strings"
	"time"

	"Messenger/logger"
	"Messenger/tools/errs"
	"Messenger/tools/ids"
	"Messenger/tools/safe"
	"Messenger/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Close codes a client treats as terminal (stop reconnecting, force
// re-login). Every other close reason is transient and the client
// auto-reconnects, then re-fetches chat list and open-chat history.
const (
	closeAuthRequired = 4401
	closeInvalidToken = 4403
)

const maxFrameBytes = 8 << 20 // voice messages ride the socket as base64

// HandleWS authenticates the handshake, pins the user to the connection
// and runs the read loop. The bearer token travels out-of-band: query
// param or Authorization header.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade error: %v", err)
		return
	}

	userID, aerr := security.Verify(security.DefaultOptions(s.cfg.JWTSecret), bearerToken(c))
	if aerr != nil {
		code := closeInvalidToken
		if errs.ErrAuthRequired.Is(aerr) {
			code = closeAuthRequired
		}
		msg := websocket.FormatCloseMessage(code, aerr.Error())
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = ws.Close()
		return
	}

	client := NewClient(ids.GenerateString(), userID, ws)
	ws.SetReadLimit(maxFrameBytes)
	safe.SafeGo(client.WritePump)

	s.onConnect(client)
	defer s.onDisconnect(client)

	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed conn=%s err=%v", client.ConnID, rerr)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[ws] read timeout conn=%s err=%v", client.ConnID, rerr)
			} else {
				logger.Infof("[ws] read err conn=%s err=%v", client.ConnID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[ws] bad frame conn=%s err=%v sample=%q", client.ConnID, perr, sample)
			continue
		}

		s.dispatch(client, frame)
	}
}

func bearerToken(c *gin.Context) string {
	if t := strings.TrimSpace(c.Query("token")); t != "" {
		return t
	}
	authz := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}
