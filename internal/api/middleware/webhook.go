package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"

	"github.com/example/wc-matomo-tracking/internal/api/httpdto"
	"github.com/gin-gonic/gin"
)

// SignatureHeader carries base64(HMAC-SHA256(body, secret)) as sent by the shop.
const SignatureHeader = "X-WC-Webhook-Signature"

const maxWebhookBody = 1 << 20

// WebhookSignature rejects requests whose body signature does not match.
// An empty secret disables the check.
func WebhookSignature(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, httpdto.NewErrorResponse("unreadable body", "INVALID_REQUEST"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		given, err := base64.StdEncoding.DecodeString(c.GetHeader(SignatureHeader))
		if err != nil || !hmac.Equal(given, Sign(secret, body)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpdto.NewErrorResponse("invalid signature", "INVALID_SIGNATURE"))
			return
		}
		c.Next()
	}
}

// Sign returns the raw HMAC-SHA256 of body.
func Sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
