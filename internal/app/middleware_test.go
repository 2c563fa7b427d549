package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/shared"
)

func actorEcho(captured *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestActorMiddlewareSetsContextActor(t *testing.T) {
	var actor string
	handler := Actor(actorEcho(&actor))

	req := httptest.NewRequest(http.MethodPost, "/contributions", nil)
	req.Header.Set(ActorHeader, "treasurer@karonga")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "treasurer@karonga", actor)
}

func TestActorMiddlewareDefaultsToSystem(t *testing.T) {
	var actor string
	handler := Actor(actorEcho(&actor))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/loans", nil))
	require.Equal(t, shared.SystemActor, actor)
}

func TestActorMiddlewareIgnoresBlankHeader(t *testing.T) {
	var actor string
	handler := Actor(actorEcho(&actor))

	req := httptest.NewRequest(http.MethodPost, "/loans", nil)
	req.Header.Set(ActorHeader, "   ")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, shared.SystemActor, actor)
}
