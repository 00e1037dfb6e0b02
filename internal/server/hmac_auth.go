package server

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/beacon/internal/auth"
	credentialdomain "github.com/smallbiznis/beacon/internal/credential/domain"
)

const (
	headerSignature = "X-Signature"
	headerTimestamp = "X-Timestamp"
	headerBatchSize = "X-Batch-Size"

	contextCredentialKey = "credential"
)

// HMACRequired authenticates an ingest request. The signature is recomputed
// over the exact body bytes received; any missing header, unknown or inactive
// token, or signature mismatch yields the same 401 so callers cannot tell a
// bad token from a bad signature. Freshness is checked only after the
// signature verifies.
func (s *Server) HMACRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		signature := strings.TrimSpace(c.GetHeader(headerSignature))
		timestamp := strings.TrimSpace(c.GetHeader(headerTimestamp))
		if signature == "" || timestamp == "" {
			s.denyRequest(c, "unauthorized", ErrUnauthorized)
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			s.denyRequest(c, "unauthorized", ErrUnauthorized)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

		cred, err := s.credsvc.Lookup(c.Request.Context(), parts[1])
		switch {
		case errors.Is(err, credentialdomain.ErrNotFound), errors.Is(err, credentialdomain.ErrInvalidToken):
			s.denyRequest(c, "unauthorized", ErrUnauthorized)
			return
		case err != nil:
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		if !auth.Verify(cred.Secret, timestamp, body, signature) {
			s.denyRequest(c, "unauthorized", ErrUnauthorized)
			return
		}

		if err := auth.CheckFreshness(timestamp, s.clk.Now(), s.cfg.FreshnessWindow); err != nil {
			if err == auth.ErrBadTimestamp {
				AbortWithError(c, err)
				return
			}
			s.denyRequest(c, "forbidden", err)
			return
		}

		c.Set(contextCredentialKey, cred)
		c.Next()
	}
}

func (s *Server) denyRequest(c *gin.Context, cause string, err error) {
	if s.metrics != nil {
		s.metrics.RecordDenied(cause)
	}
	AbortWithError(c, err)
}

func credentialFromContext(c *gin.Context) (*credentialdomain.Credential, bool) {
	value, ok := c.Get(contextCredentialKey)
	if !ok {
		return nil, false
	}
	cred, ok := value.(*credentialdomain.Credential)
	return cred, ok && cred != nil
}
