package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/template"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/voxgate/pkg/Logger"
)

// defaultNCCO connects an inbound call to the ingestion socket and passes
// the caller's number through as the handshake cli.
const defaultNCCO = `[
  {
    "action": "connect",
    "eventUrl": [{{json .EventURL}}],
    "from": {{json .LVN}},
    "endpoint": [
      {
        "type": "websocket",
        "uri": {{json .SocketURL}},
        "content-type": {{json .ContentType}},
        "headers": {
          "cli": {{json .CLI}}
        }
      }
    ]
  }
]
`

// CallParams are the values available to the call-control template.
type CallParams struct {
	Host        string
	EventURL    string
	SocketURL   string
	ContentType string
	LVN         string
	CLI         string
}

type CallConfig struct {
	Host       string
	EventURL   string
	SampleRate int
	// TemplatePath replaces the built-in template when set.
	TemplatePath string
}

// CallHandler serves the telephony provider's answer and event webhooks.
type CallHandler struct {
	cfg    CallConfig
	tmpl   *template.Template
	logger *Logger.Logger
}

func NewCallHandler(cfg CallConfig, logger *Logger.Logger) (*CallHandler, error) {
	body := defaultNCCO
	if cfg.TemplatePath != "" {
		raw, err := os.ReadFile(cfg.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("read call template: %w", err)
		}
		body = string(raw)
	}

	tmpl, err := template.New("ncco").Funcs(template.FuncMap{"json": jsonString}).Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse call template: %w", err)
	}
	return &CallHandler{cfg: cfg, tmpl: tmpl, logger: logger}, nil
}

func jsonString(v string) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func (h *CallHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/ncco", h.GetNCCO)
	router.POST("/event", h.PostEvent)
}

// GetNCCO renders the call-control document for an inbound call.
func (h *CallHandler) GetNCCO(c *gin.Context) {
	params := CallParams{
		Host:        h.cfg.Host,
		EventURL:    h.cfg.EventURL,
		SocketURL:   fmt.Sprintf("ws://%s/socket", h.cfg.Host),
		ContentType: fmt.Sprintf("audio/l16;rate=%d", h.cfg.SampleRate),
		LVN:         c.Query("to"),
		CLI:         strings.TrimLeft(c.Query("from"), "+"),
	}

	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, params); err != nil {
		h.logger.Errorf("render call template: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to render call document"})
		return
	}
	c.Data(http.StatusOK, "application/json", buf.Bytes())
}

// PostEvent logs provider call events.
func (h *CallHandler) PostEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Warnf("read event body: %v", err)
	}
	h.logger.Infof("call event: %s", body)
	c.Data(http.StatusOK, "text/plain", []byte("ok"))
}
