package handlers

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/CoachSpeak/internal/application/config"
)

const turnCredentialTTL = time.Hour

type IceHandler struct {
	cfg *config.Config
}

func NewIceHandler(cfg *config.Config) *IceHandler {
	return &IceHandler{cfg: cfg}
}

// IceServers отдаёт STUN и, если настроен coturn, временные TURN креды
func (h *IceHandler) IceServers(c echo.Context) error {
	servers := []webrtc.ICEServer{h.cfg.STUNServer}

	if h.cfg.CoturnServer.Enabled() && h.cfg.TurnUDPServer != nil && h.cfg.TurnTCPServer != nil {
		username := fmt.Sprintf("%d", time.Now().Add(turnCredentialTTL).Unix())

		// HMAC-SHA1 по static-auth-secret coturn
		mac := hmac.New(sha1.New, []byte(h.cfg.CoturnServer.Secret))
		mac.Write([]byte(username))

		servers = append(servers, webrtc.ICEServer{
			URLs: []string{
				h.cfg.TurnUDPServer.URLs[0],
				h.cfg.TurnTCPServer.URLs[0],
			},
			Username:   username,
			Credential: base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		})
	}

	return c.JSON(http.StatusOK, map[string]any{"iceServers": servers})
}
