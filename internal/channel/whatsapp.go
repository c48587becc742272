package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"

	"difyrelay/internal/domain"
)

const (
	WhatsAppName = "whatsapp"

	defaultGraphBase   = "https://graph.facebook.com/v21.0"
	defaultWebhookPath = "/webhook/whatsapp"
	maxWebhookBody     = 1 << 20
)

// WhatsAppConfig configures the Cloud API transport. Tokens come from the
// environment, paths and endpoints from the config file.
type WhatsAppConfig struct {
	PhoneNumberID string
	AccessToken   string
	VerifyToken   string
	AppSecret     string // empty disables signature checks
	WebhookPath   string
	GraphBase     string
	Client        *http.Client
	Logger        *slog.Logger
}

// WhatsApp implements domain.Transport for the WhatsApp Business Cloud API.
// Inbound messages arrive on the webhook served by Handler.
type WhatsApp struct {
	cfg    WhatsAppConfig
	client *http.Client
	logger *slog.Logger
	mux    *http.ServeMux

	mu  sync.RWMutex
	bus domain.MessageBus
}

var _ domain.Transport = (*WhatsApp)(nil)

func NewWhatsApp(cfg WhatsAppConfig) *WhatsApp {
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = defaultWebhookPath
	}
	if cfg.GraphBase == "" {
		cfg.GraphBase = defaultGraphBase
	}
	cfg.GraphBase = strings.TrimRight(cfg.GraphBase, "/")
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	w := &WhatsApp{
		cfg:    cfg,
		client: cfg.Client,
		logger: cfg.Logger.With("channel", WhatsAppName),
		mux:    http.NewServeMux(),
	}
	w.mux.HandleFunc("GET "+cfg.WebhookPath, w.handleVerification)
	w.mux.HandleFunc("POST "+cfg.WebhookPath, w.handleIncoming)
	return w
}

func (w *WhatsApp) Name() string { return WhatsAppName }

// Start attaches the bus. Delivery is webhook driven, so it returns at once.
func (w *WhatsApp) Start(ctx context.Context, bus domain.MessageBus) error {
	w.mu.Lock()
	w.bus = bus
	w.mu.Unlock()
	w.logger.Info("whatsapp channel ready", "webhook", w.cfg.WebhookPath)
	return nil
}

func (w *WhatsApp) Stop() error { return nil }

// WebhookPath is where Handler expects to be mounted.
func (w *WhatsApp) WebhookPath() string { return w.cfg.WebhookPath }

// Handler returns the HTTP handler for the webhook (mounted on the main mux).
func (w *WhatsApp) Handler() http.Handler { return w.mux }

func (w *WhatsApp) currentBus() domain.MessageBus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.bus
}

// --- Webhook handlers ---

func (w *WhatsApp) handleVerification(rw http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && w.cfg.VerifyToken != "" && token == w.cfg.VerifyToken {
		w.logger.Info("whatsapp webhook verified")
		rw.WriteHeader(http.StatusOK)
		fmt.Fprint(rw, html.EscapeString(challenge))
		return
	}

	w.logger.Warn("whatsapp webhook verification failed", "mode", mode)
	http.Error(rw, "Forbidden", http.StatusForbidden)
}

func (w *WhatsApp) handleIncoming(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	if w.cfg.AppSecret != "" && !verifySignature(body, w.cfg.AppSecret, r.Header.Get("X-Hub-Signature-256")) {
		w.logger.Warn("whatsapp invalid signature")
		http.Error(rw, "Forbidden", http.StatusForbidden)
		return
	}

	var payload waPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		w.logger.Warn("whatsapp bad payload", "err", err)
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	bus := w.currentBus()
	if bus == nil {
		http.Error(rw, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				msg := m.toInbound()
				w.logger.Info("whatsapp message received",
					"id", msg.ID, "from", msg.SenderID, "type", msg.Type)
				bus.Publish(msg)
			}
		}
	}

	// The Graph API retries anything but 200, so always acknowledge.
	rw.WriteHeader(http.StatusOK)
}

// verifySignature checks an X-Hub-Signature-256 header against body.
func verifySignature(body []byte, secret, signature string) bool {
	hexSig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(hexSig), []byte(computed))
}

// --- Media download ---

// DownloadMedia resolves the Graph media id to a short-lived URL and
// downloads it with the access token.
func (w *WhatsApp) DownloadMedia(ctx context.Context, msg domain.InboundMessage) (*domain.MediaPayload, error) {
	if !msg.HasMedia || msg.MediaRef == "" {
		return nil, fmt.Errorf("message %s: %w", msg.ID, domain.ErrUnsupported)
	}

	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	metaBody, err := w.get(ctx, w.cfg.GraphBase+"/"+msg.MediaRef)
	if err != nil {
		return nil, fmt.Errorf("resolve media %s: %w", msg.MediaRef, err)
	}
	if err := json.Unmarshal(metaBody, &meta); err != nil {
		return nil, fmt.Errorf("decode media %s: %w", msg.MediaRef, err)
	}
	if meta.URL == "" {
		return nil, fmt.Errorf("media %s has no url", msg.MediaRef)
	}

	data, err := w.get(ctx, meta.URL)
	if err != nil {
		return nil, fmt.Errorf("download media %s: %w", msg.MediaRef, err)
	}

	mimeType := meta.MimeType
	if mimeType == "" {
		mimeType = msg.MediaMIME
	}
	return &domain.MediaPayload{Data: data, MIMEType: mimeType, Filename: msg.MediaName}, nil
}

func (w *WhatsApp) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whatsapp API %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// --- Outbound ---

// Send delivers a text reply, or uploads msg.Media and sends it as the
// matching message type. Voice replies go out as audio messages.
func (w *WhatsApp) Send(ctx context.Context, msg domain.OutboundMessage) error {
	if msg.Media == nil {
		return w.postMessage(ctx, map[string]any{
			"messaging_product": "whatsapp",
			"to":                msg.ChatID,
			"type":              "text",
			"text":              map[string]string{"body": msg.Text},
		})
	}

	id, err := w.uploadMedia(ctx, msg.Media)
	if err != nil {
		return err
	}

	kind := mediaMessageType(msg.Media.MIMEType, msg.Voice)
	object := map[string]string{"id": id}
	if kind == "document" && msg.Media.Filename != "" {
		object["filename"] = msg.Media.Filename
	}
	return w.postMessage(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                msg.ChatID,
		"type":              kind,
		kind:                object,
	})
}

func mediaMessageType(mimeType string, voice bool) string {
	if voice {
		return "audio"
	}
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	default:
		return "document"
	}
}

func (w *WhatsApp) uploadMedia(ctx context.Context, media *domain.MediaPayload) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("messaging_product", "whatsapp")
	_ = mw.WriteField("type", media.MIMEType)

	filename := media.Filename
	if filename == "" {
		filename = "file"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", media.MIMEType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create part: %w", err)
	}
	if _, err := part.Write(media.Data); err != nil {
		return "", fmt.Errorf("write part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	url := fmt.Sprintf("%s/%s/media", w.cfg.GraphBase, w.cfg.PhoneNumberID)
	respBody, err := w.post(ctx, url, mw.FormDataContentType(), buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decode upload: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("upload media: empty id")
	}
	return out.ID, nil
}

func (w *WhatsApp) postMessage(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	url := fmt.Sprintf("%s/%s/messages", w.cfg.GraphBase, w.cfg.PhoneNumberID)
	if _, err := w.post(ctx, url, "application/json", body); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (w *WhatsApp) post(ctx context.Context, url, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("whatsapp API %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// --- WhatsApp webhook payload types ---

type waPayload struct {
	Object string    `json:"object"`
	Entry  []waEntry `json:"entry"`
}

type waEntry struct {
	ID      string     `json:"id"`
	Changes []waChange `json:"changes"`
}

type waChange struct {
	Value waValue `json:"value"`
	Field string  `json:"field"`
}

type waValue struct {
	MessagingProduct string      `json:"messaging_product"`
	Messages         []waMessage `json:"messages"`
}

type waMessage struct {
	From      string   `json:"from"`
	ID        string   `json:"id"`
	Timestamp string   `json:"timestamp"`
	Type      string   `json:"type"`
	Text      *waText  `json:"text,omitempty"`
	Image     *waMedia `json:"image,omitempty"`
	Audio     *waMedia `json:"audio,omitempty"`
	Voice     *waMedia `json:"voice,omitempty"`
	Video     *waMedia `json:"video,omitempty"`
	Document  *waMedia `json:"document,omitempty"`
	Sticker   *waMedia `json:"sticker,omitempty"`
}

type waText struct {
	Body string `json:"body"`
}

type waMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

func (m waMessage) media() *waMedia {
	switch m.Type {
	case "image":
		return m.Image
	case "audio":
		return m.Audio
	case "voice":
		return m.Voice
	case "video":
		return m.Video
	case "document":
		return m.Document
	case "sticker":
		return m.Sticker
	}
	return nil
}

func (m waMessage) toInbound() domain.InboundMessage {
	msg := domain.InboundMessage{
		Channel:   WhatsAppName,
		ID:        m.ID,
		ChatID:    m.From,
		SenderID:  m.From,
		Scope:     scopeFromID(m.From),
		Type:      m.Type,
		Kind:      domain.KindUnsupported,
		Timestamp: time.Now(),
	}
	if sec, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil {
		msg.Timestamp = time.Unix(sec, 0)
	}

	if m.Type == "text" && m.Text != nil {
		msg.Kind = domain.KindText
		msg.Body = m.Text.Body
		return msg
	}
	if media := m.media(); media != nil && media.ID != "" {
		msg.Kind = domain.KindMedia
		msg.HasMedia = true
		msg.MediaRef = media.ID
		msg.MediaMIME = media.MimeType
		msg.MediaName = media.Filename
		msg.Body = media.Caption
	}
	return msg
}

// scopeFromID recognizes group and broadcast conversation ids.
func scopeFromID(id string) domain.Scope {
	switch {
	case strings.HasSuffix(id, "@g.us"):
		return domain.ScopeGroup
	case strings.HasSuffix(id, "@broadcast"):
		return domain.ScopeBroadcast
	default:
		return domain.ScopeDirect
	}
}
