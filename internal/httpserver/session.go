// internal/httpserver/session.go
//
// Session tokens and the push channel endpoint.
//   - Login issues an HS256 JWT carrying the session ID and nickname.
//   - GET /ws?token=... verifies the token against a live session, upgrades
//     the connection and subscribes it to the player's topics.

package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/hyacinthwings/mastermind/internal/apierr"
	"github.com/hyacinthwings/mastermind/internal/lobby"
	"github.com/hyacinthwings/mastermind/internal/push"
)

// signToken creates an HS256 JWT for a lobby session.
func (s *Server) signToken(sess lobby.Session) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sessionId": sess.ID,
		"nickname":  sess.Nickname,
		"iat":       now.Unix(),
		"exp":       now.Add(s.cfg.TokenTTL).Unix(),
	})
	return t.SignedString([]byte(s.cfg.JWTSecret))
}

// verifyToken returns the live session a token was issued for.
func (s *Server) verifyToken(tokenStr string) (lobby.Session, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return lobby.Session{}, errors.Join(apierr.ErrUnauthorized, err)
	}
	id, _ := claims["sessionId"].(string)
	nickname, _ := claims["nickname"].(string)
	if id == "" || nickname == "" {
		return lobby.Session{}, apierr.ErrUnauthorized
	}
	// Ensure the session is still alive
	sess, ok := s.lobby.Session(id)
	if !ok || sess.Nickname != nickname {
		return lobby.Session{}, apierr.ErrUnauthorized
	}
	return sess, nil
}

// tokenFrom extracts a token from the query string or a bearer header.
func tokenFrom(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	return ""
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	sess, err := s.verifyToken(tokenFrom(r))
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		writeError(w, err)
		return
	}
	conn, err := push.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("nickname", sess.Nickname).Msg("websocket upgrade")
		return
	}
	log.Debug().Str("nickname", sess.Nickname).Msg("push channel opened")
	s.hub.Attach(push.NewWebsocketConn(conn),
		push.TopicPlayers,
		push.InvitationsTopic(sess.Nickname),
		push.GameTopic(sess.Nickname),
	)
	log.Debug().Str("nickname", sess.Nickname).Msg("push channel closed")
}
