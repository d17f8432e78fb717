package server

import (
	"context"
	"net/http"

	"auction-house/internal/auctionerrors"
	"auction-house/internal/auth"
	"auction-house/utils"

	"github.com/gin-gonic/gin"
)

// TokenAuthenticator is the part of the token service the gateway uses.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, accessToken string) (auth.Identity, error)
	Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error)
}

// Gateway authenticates requests from their credential cookies. A request
// whose access token is missing or rejected gets exactly one silent refresh;
// if that fails too the request ends with 401 auth_expired.
type Gateway struct {
	tokens  TokenAuthenticator
	cookies auth.Cookies
}

// NewGateway creates a gateway.
func NewGateway(tokens TokenAuthenticator, cookies auth.Cookies) *Gateway {
	return &Gateway{tokens: tokens, cookies: cookies}
}

// RequireSession is the gin middleware guarding authenticated routes.
func (g *Gateway) RequireSession(c *gin.Context) {
	ctx := c.Request.Context()
	access, refresh := auth.Read(c)

	if access != "" {
		id, err := g.tokens.Authenticate(ctx, access)
		if err == nil {
			g.admit(c, id)
			return
		}
		if auctionerrors.KindOf(err) == auctionerrors.KindInternal {
			g.fail(c, err)
			return
		}
	}

	if refresh == "" {
		if access == "" {
			utils.AbortWithError(c, http.StatusUnauthorized, auctionerrors.KindUnauthorized.String(), "authentication required")
			return
		}
		g.expired(c, "access token rejected and no refresh token")
		return
	}

	pair, err := g.tokens.Refresh(ctx, refresh)
	if err != nil {
		if auctionerrors.KindOf(err) == auctionerrors.KindInternal {
			g.fail(c, err)
			return
		}
		g.expired(c, err.Error())
		return
	}

	id, err := g.tokens.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		g.fail(c, err)
		return
	}

	g.cookies.Set(c, pair)
	utils.Debug("gateway: session refreshed", map[string]any{"user_id": id.UserID, "session_id": id.SessionID})
	g.admit(c, id)
}

func (g *Gateway) admit(c *gin.Context, id auth.Identity) {
	c.Set(utils.ContextUserIDKey, id.UserID)
	c.Set(utils.ContextSessionIDKey, id.SessionID)
	c.Next()
}

func (g *Gateway) expired(c *gin.Context, reason string) {
	g.cookies.Clear(c)
	utils.AbortWithError(c, http.StatusUnauthorized, auctionerrors.KindAuthExpired.String(), "authentication expired")
	utils.Info("gateway: authentication expired", map[string]any{"path": c.Request.URL.Path, "reason": reason})
}

func (g *Gateway) fail(c *gin.Context, err error) {
	utils.AbortWithError(c, http.StatusInternalServerError, auctionerrors.KindInternal.String(), "internal server error")
	utils.Error("gateway: authentication failed", map[string]any{"path": c.Request.URL.Path, "error": err.Error()})
}
