package api

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/codeready-toolchain/voicerelay/ent/agent"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const apologyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response><Say>Sorry, this number is not configured. Goodbye.</Say><Hangup/></Response>`

// handleVoiceWebhook is the carrier's inbound call webhook: form-encoded
// CallSid/From/To, an optional HMAC-SHA1 signature, and a TwiML response
// that either apologizes and hangs up or connects the caller's media
// stream to the room the handoff worker is about to provision.
func (s *Server) handleVoiceWebhook(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusBadRequest, apologyTwiML)
		return
	}

	if secret := s.cfg.API.WebhookHMACSecret; secret != "" {
		if !verifyTwilioSignature(secret, requestURL(c.Request), c.Request.PostForm, c.GetHeader("X-Twilio-Signature")) {
			c.String(http.StatusForbidden, apologyTwiML)
			return
		}
	}

	callSID := c.Request.PostFormValue("CallSid")
	from := c.Request.PostFormValue("From")
	to := c.Request.PostFormValue("To")
	if callSID == "" || to == "" {
		c.String(http.StatusBadRequest, apologyTwiML)
		return
	}

	ag, err := s.db.Agent.Query().
		Where(agent.PhoneNumberEQ(to), agent.ActiveEQ(true)).
		Only(c.Request.Context())
	if err != nil || ag == nil {
		c.Header("Content-Type", "text/xml")
		c.String(http.StatusOK, apologyTwiML)
		return
	}

	callID := uuid.NewString()
	traceID := uuid.NewString()
	room := fmt.Sprintf("call-%s", callSID)

	if _, err := s.db.Call.Create().
		SetID(callID).
		SetTenantID(ag.TenantID).
		SetAgentID(ag.ID).
		SetCarrierCallSid(callSID).
		SetRoom(room).
		Save(c.Request.Context()); err != nil {
		slog.Error("webhook: create call failed", "error", err)
		c.String(http.StatusOK, apologyTwiML)
		return
	}

	if _, err := s.events.Append(c.Request.Context(), callID, "handoff_requested", map[string]any{
		"trace_id":         traceID,
		"tenant_id":        ag.TenantID,
		"agent_id":         ag.ID,
		"carrier_call_sid": callSID,
		"room":             room,
		"from":             from,
		"to":               to,
	}); err != nil {
		slog.Error("webhook: append handoff_requested failed", "error", err)
		c.String(http.StatusOK, apologyTwiML)
		return
	}

	streamURL := fmt.Sprintf("wss://%s/media-stream", c.Request.Host)
	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK,
		`<?xml version="1.0" encoding="UTF-8"?><Response><Say>Connecting you now.</Say><Connect><Stream url="%s"><Parameter name="token" value="%s"/></Stream></Connect></Response>`,
		streamURL, s.mediaStreamToken())
}

// mediaStreamToken is the static shared secret carried in the TwiML
// Parameter — distinct from the per-call join_token, which never appears
// in any event payload.
func (s *Server) mediaStreamToken() string {
	return s.cfg.API.WebhookHMACSecret
}

func requestURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, r.URL.Path)
}

// verifyTwilioSignature reproduces Twilio's request-signing scheme: HMAC-SHA1
// over the URL followed by each form key+value, keys sorted lexically.
func verifyTwilioSignature(secret, url string, form map[string][]string, signature string) bool {
	if signature == "" {
		return false
	}

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(url)
	for _, k := range keys {
		for _, v := range form[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(b.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
