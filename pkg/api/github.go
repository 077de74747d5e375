package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	githubSignatureHeader = "X-Hub-Signature-256"
	githubEventHeader     = "X-GitHub-Event"
)

// githubWebhook verifies the HMAC signature over the raw body and, for push
// events on a known repository, invalidates that tenant's scenario index so
// the next event picks up the pushed scenario files.
func (s *Server) githubWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.log.Error("webhook body read failed", "error", err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	if !verifySignature(s.cfg.GithubSecret, body, c.GetHeader(githubSignatureHeader)) {
		c.String(http.StatusUnauthorized, "Unauthorized")
		return
	}

	if c.GetHeader(githubEventHeader) != "push" {
		// Pings and other event kinds are acknowledged and dropped.
		c.String(http.StatusOK, "OK")
		return
	}

	var payload struct {
		Ref        string `json:"ref"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		c.String(http.StatusBadRequest, "Bad request")
		return
	}

	tenantID, known := s.cfg.GithubRepos[payload.Repository.FullName]
	if !known {
		s.log.Warn("push from unmapped repository", "repo", payload.Repository.FullName)
		c.String(http.StatusOK, "OK")
		return
	}

	if s.scenarios != nil {
		s.scenarios.ReloadTenantScenarios(tenantID)
	}
	s.log.Info("scenarios invalidated by push",
		"repo", payload.Repository.FullName, "tenant_id", tenantID, "ref", payload.Ref)
	c.String(http.StatusOK, "OK")
}

// verifySignature checks "sha256=<hex>" against HMAC-SHA256(secret, body)
// in constant time.
func verifySignature(secret string, body []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	presented, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(presented), []byte(expected))
}
