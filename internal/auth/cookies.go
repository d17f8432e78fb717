package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Cookie names carrying the credential pair.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// Cookies writes and clears the credential cookies.
type Cookies struct {
	Secure bool
	Domain string
}

// NewCookies creates a cookie writer.
func NewCookies(secure bool, domain string) Cookies {
	return Cookies{Secure: secure, Domain: domain}
}

// Set stores pair on the response. Both cookies are HttpOnly. A pair without
// a refresh token leaves the client's refresh cookie alone.
func (k Cookies) Set(c *gin.Context, pair TokenPair) {
	k.write(c, AccessCookie, pair.AccessToken, pair.AccessExpiresAt)
	if pair.RefreshToken != "" {
		k.write(c, RefreshCookie, pair.RefreshToken, pair.RefreshExpiresAt)
	}
}

// Clear expires both cookies.
func (k Cookies) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessCookie, "", -1, "/", k.Domain, k.Secure, true)
	c.SetCookie(RefreshCookie, "", -1, "/", k.Domain, k.Secure, true)
}

func (k Cookies) write(c *gin.Context, name, value string, expires time.Time) {
	maxAge := int(time.Until(expires).Seconds())
	if maxAge <= 0 {
		maxAge = 1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", k.Domain, k.Secure, true)
}

// Read returns the credential cookies of the request; missing ones are empty.
func Read(c *gin.Context) (access, refresh string) {
	access, _ = c.Cookie(AccessCookie)
	refresh, _ = c.Cookie(RefreshCookie)
	return access, refresh
}
