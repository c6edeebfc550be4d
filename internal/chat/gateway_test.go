package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"whisper/internal/auth"
	"whisper/internal/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGateway(tokens TokenVerifier) *Gateway {
	registry := NewRegistry()
	return NewGateway(tokens, NewHub(registry, zap.NewNop()), nil, nil, ClientOptions{
		SendBuffer:    16,
		MaxFrameBytes: 8192,
		RateBurst:     5,
		RateRefill:    500 * time.Millisecond,
	}, zap.NewNop())
}

func Test_Authenticate_Missing_Token(t *testing.T) {
	req := require.New(t)
	g := newTestGateway(auth.NewTokens("secret", time.Minute))

	_, err := g.Authenticate("")

	var authErr *AuthenticationError
	req.ErrorAs(err, &authErr)
	req.Equal(ReasonMissing, authErr.Reason)
}

func Test_Authenticate_Invalid_Token(t *testing.T) {
	req := require.New(t)
	other := auth.NewTokens("other-secret", time.Minute)
	g := newTestGateway(auth.NewTokens("secret", time.Minute))
	forged, err := other.GenerateToken(uuid.New())
	req.NoError(err)

	for _, token := range []string{"garbage", forged} {
		_, err := g.Authenticate(token)

		var authErr *AuthenticationError
		req.ErrorAs(err, &authErr)
		req.Equal(ReasonInvalid, authErr.Reason)
		req.ErrorIs(err, auth.ErrInvalidToken)
	}
}

func Test_Authenticate_Binds_Subject(t *testing.T) {
	req := require.New(t)
	tokens := auth.NewTokens("secret", time.Minute)
	g := newTestGateway(tokens)
	id := uuid.New()
	token, err := tokens.GenerateToken(id)
	req.NoError(err)

	got, err := g.Authenticate(token)

	req.NoError(err)
	req.Equal(id, got)
}

func Test_ServeHTTP_Refuses_Before_Upgrade(t *testing.T) {
	req := require.New(t)
	g := newTestGateway(auth.NewTokens("secret", time.Minute))

	cases := map[string]string{
		"/ws":               ReasonMissing,
		"/ws?token=garbage": ReasonInvalid,
	}
	for target, reason := range cases {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, target, nil)

		g.ServeHTTP(rec, r)

		req.Equal(http.StatusUnauthorized, rec.Code)
		var body types.ErrorResponse
		req.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
		req.Equal(reason, body.Reason)
	}
}
