package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"biscuit-backend/checkout"
	"biscuit-backend/payment"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/rs/zerolog"
)

// WebhookHandler receives provider notifications. Providers retry on
// non-2xx, so only malformed payloads are rejected; unknown orders are
// acknowledged with an error payload.
type WebhookHandler struct {
	Checkout *checkout.Service
	Logger   zerolog.Logger
}

// Callback returns the endpoint for one provider.
func (h *WebhookHandler) Callback(provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := readPayload(c)
		if err != nil {
			h.Logger.Warn().Err(err).Str("provider", provider).Msg("unreadable callback body")
			c.JSON(http.StatusBadRequest, &payment.CallbackResult{Status: payment.CallbackError, Message: "invalid payload"})
			return
		}

		res, err := h.Checkout.HandleCallback(c.Request.Context(), provider, payload)
		var verr *payment.ValidationError
		switch {
		case err == nil:
			c.JSON(http.StatusOK, res)
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, res)
		case errors.Is(err, payment.ErrUnknownReference), errors.Is(err, payment.ErrOrderNotFound):
			c.JSON(http.StatusOK, res)
		case errors.Is(err, payment.ErrUnsupportedMethod):
			c.JSON(http.StatusNotFound, res)
		default:
			h.Logger.Error().Err(err).Str("provider", provider).Msg("callback processing failed")
			if res == nil {
				res = &payment.CallbackResult{Status: payment.CallbackError, Message: "internal error"}
			}
			c.JSON(http.StatusInternalServerError, res)
		}
	}
}

// readPayload flattens a JSON object or a form post into string fields.
// Nested JSON values are kept as their raw encoding. Providers that send
// JSON under another content type are detected by the opening brace.
func readPayload(c *gin.Context) (payment.Payload, error) {
	raw, err := c.GetRawData()
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)

	ct := c.ContentType()
	if ct == binding.MIMEJSON || (ct != binding.MIMEPOSTForm && bytes.HasPrefix(raw, []byte("{"))) {
		return decodeJSONPayload(raw)
	}

	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, err
	}
	payload := payment.Payload{}
	for k, vs := range values {
		if len(vs) > 0 {
			payload[k] = strings.TrimSpace(vs[0])
		}
	}
	return payload, nil
}

func decodeJSONPayload(raw []byte) (payment.Payload, error) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	payload := payment.Payload{}
	for k, v := range body {
		switch val := v.(type) {
		case nil:
		case string:
			payload[k] = val
		case float64, bool:
			payload[k] = fmt.Sprint(val)
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				return nil, err
			}
			payload[k] = string(encoded)
		}
	}
	return payload, nil
}
