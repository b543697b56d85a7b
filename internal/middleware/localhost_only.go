package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LocalhostOnly restricts access to localhost or a configured IP allowlist.
// The execute endpoints sign transactions with the server's key, so they are
// not exposed to arbitrary callers.
type LocalhostOnly struct {
	logger     *logrus.Logger
	allowedIPs []string
}

// NewLocalhostOnly creates a new LocalhostOnly middleware instance
func NewLocalhostOnly(logger *logrus.Logger, allowedIPs []string) *LocalhostOnly {
	return &LocalhostOnly{logger: logger, allowedIPs: allowedIPs}
}

// Restrict rejects requests whose client IP is neither loopback nor in the
// allowlist.
func (l *LocalhostOnly) Restrict() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		remoteIP, _, _ := net.SplitHostPort(c.Request.RemoteAddr)

		if l.isAllowed(clientIP) || isLoopback(remoteIP) {
			c.Next()
			return
		}

		l.logger.WithFields(logrus.Fields{
			"client_ip": clientIP,
			"remote_ip": remoteIP,
			"path":      c.Request.URL.Path,
			"method":    c.Request.Method,
		}).Warn("access denied, not localhost or allowlisted")

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Access restricted",
		})
	}
}

func (l *LocalhostOnly) isAllowed(ip string) bool {
	if isLoopback(ip) {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, allowed := range l.allowedIPs {
		allowed = strings.TrimSpace(allowed)
		if allowed == "" {
			continue
		}
		if strings.Contains(allowed, "/") {
			if _, cidr, err := net.ParseCIDR(allowed); err == nil && cidr.Contains(parsed) {
				return true
			}
			continue
		}
		if allowed == ip {
			return true
		}
	}
	return false
}

func isLoopback(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
