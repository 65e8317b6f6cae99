package http

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"trivia-solo-service/internal/domain"
)

const (
	sessionName = "trivia_session"
	keyUserID   = "user_id"
	keyTier     = "tier"
)

type identityKey struct{}

// WithIdentity stores the caller in ctx.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom returns the caller stored by the gate.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(domain.Identity)
	return identity, ok
}

// IdentityGate resolves the caller from a signed cookie session. Nothing game
// related is reachable before it passes.
type IdentityGate struct {
	store *sessions.CookieStore
}

func NewIdentityGate(secret string) *IdentityGate {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &IdentityGate{store: store}
}

// Identify reads the caller from the request's session cookie.
func (g *IdentityGate) Identify(r *http.Request) (domain.Identity, bool) {
	session, err := g.store.Get(r, sessionName)
	if err != nil {
		return domain.Identity{}, false
	}
	userID, _ := session.Values[keyUserID].(string)
	tier, _ := session.Values[keyTier].(string)
	if userID == "" {
		return domain.Identity{}, false
	}
	if tier != string(domain.TierRegistered) {
		tier = string(domain.TierAnon)
	}
	return domain.Identity{UserID: userID, Tier: domain.Tier(tier)}, true
}

// Issue writes identity into the session cookie.
func (g *IdentityGate) Issue(w http.ResponseWriter, r *http.Request, identity domain.Identity) error {
	session, _ := g.store.Get(r, sessionName)
	session.Values[keyUserID] = identity.UserID
	session.Values[keyTier] = string(identity.Tier)
	return session.Save(r, w)
}

// Require rejects requests without an identity and passes the identity on in the context.
func (g *IdentityGate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := g.Identify(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: domain.ErrUnauthenticated.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// IssueAnon serves POST /api/session/anon: it keeps an existing identity or mints an anonymous one.
func (g *IdentityGate) IssueAnon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
		return
	}
	if identity, ok := g.Identify(r); ok {
		writeJSON(w, http.StatusOK, identity)
		return
	}
	identity := domain.Identity{UserID: "anon-" + uuid.NewString(), Tier: domain.TierAnon}
	if err := g.Issue(w, r, identity); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "could not start session"})
		return
	}
	writeJSON(w, http.StatusCreated, identity)
}
