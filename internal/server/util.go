package server

import (
	"encoding/json"
	"regexp"

	"github.com/gin-gonic/gin"
)

type errorResp struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}

// hashPattern detects bundler content hashes in filenames, e.g.
// "index-CU4W1PlC.js" or "app.3f9a8c1d.css".
var hashPattern = regexp.MustCompile(`[-.][a-zA-Z0-9_]{8,}\.[a-zA-Z0-9]+$`)

func cacheControl(p string) string {
	if hashPattern.MatchString(p) {
		return "public, max-age=31536000, immutable"
	}
	return "no-cache"
}
