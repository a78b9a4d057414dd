package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/d-towns/matsource-sub000/pkg/logger"
)

const headerTwilioSignature = "X-Twilio-Signature"

// ComputeSignature implements Twilio's request signing: HMAC-SHA1 over the
// full URL followed by the sorted POST parameter names and values, base64
// encoded.
func ComputeSignature(authToken, fullURL string, form map[string][]string) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(fullURL))
	for _, k := range keys {
		for _, v := range form[k] {
			mac.Write([]byte(k))
			mac.Write([]byte(v))
		}
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// RequireSignature returns a gin middleware validating X-Twilio-Signature
// against the served URL. baseURL is the externally visible scheme+host
// (reverse proxies rewrite what the process itself sees).
//
// When enabled is false the middleware passes everything through; local
// tunnels make signature validation impractical in development.
func RequireSignature(authToken, baseURL string, enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}

		fullURL := baseURL + c.Request.URL.RequestURI()
		want := ComputeSignature(authToken, fullURL, c.Request.PostForm)
		got := c.GetHeader(headerTwilioSignature)

		if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
			logger.FromGin(c).Warn("twilio signature mismatch", "path", c.Request.URL.Path)
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}
