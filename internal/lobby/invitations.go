// internal/lobby/invitations.go
//
// Invitation lifecycle.
// Transitions:
//   - PENDING → ACCEPTED | DECLINED (recipient only)
//   - PENDING → CANCELLED (sender, expiry or logout)
// Every transition is pushed to the invitation topic of the party that did
// not cause it.

package lobby

import (
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hyacinthwings/mastermind/internal/push"
)

// Invite creates a PENDING invitation from one present player to another.
func (l *Lobby) Invite(from, to string) (Invitation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sender, ok := l.sessionByNick(from)
	if !ok {
		return Invitation{}, ErrPlayerNotFound
	}
	recipient, ok := l.sessionByNick(to)
	if !ok {
		return Invitation{}, ErrPlayerNotFound
	}
	if sameNick(sender.Nickname, recipient.Nickname) {
		return Invitation{}, ErrSelfInvite
	}
	if recipient.Status == StatusBusy || sender.Status == StatusBusy {
		return Invitation{}, ErrPlayerBusy
	}
	for _, inv := range l.invitations {
		if inv.Status == InvitationPending && sameNick(inv.From, sender.Nickname) {
			return Invitation{}, ErrAlreadyInvited
		}
	}

	inv := &Invitation{
		ID:        uuid.NewString(),
		From:      sender.Nickname,
		To:        recipient.Nickname,
		Status:    InvitationPending,
		CreatedAt: l.cfg.Now(),
	}
	l.invitations[inv.ID] = inv
	sender.LastActivity = inv.CreatedAt
	log.Info().Str("from", inv.From).Str("to", inv.To).Str("invitationId", inv.ID).Msg("lobby: invitation sent")
	l.publishInvitation(inv, inv.To)
	return *inv, nil
}

// Respond accepts or declines a PENDING invitation addressed to nickname.
func (l *Lobby) Respond(nickname, invitationID string, accept bool) (Invitation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	inv, ok := l.invitations[invitationID]
	if !ok {
		return Invitation{}, ErrInvitationNotFound
	}
	if !sameNick(inv.To, nickname) || inv.Status != InvitationPending {
		return Invitation{}, ErrInvalidTransition
	}
	if accept {
		l.resolve(inv, InvitationAccepted, "")
	} else {
		l.resolve(inv, InvitationDeclined, "")
	}
	l.touch(nickname)
	log.Info().Str("invitationId", inv.ID).Str("status", string(inv.Status)).Msg("lobby: invitation answered")
	l.publishInvitation(inv, inv.From)
	return *inv, nil
}

// Cancel withdraws a PENDING invitation. When nickname is non-empty it must
// be the sender.
func (l *Lobby) Cancel(invitationID, nickname string) (Invitation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	inv, ok := l.invitations[invitationID]
	if !ok {
		return Invitation{}, ErrInvitationNotFound
	}
	if inv.Status != InvitationPending {
		return Invitation{}, ErrInvalidTransition
	}
	if strings.TrimSpace(nickname) != "" && !sameNick(inv.From, nickname) {
		return Invitation{}, ErrInvalidTransition
	}
	l.resolve(inv, InvitationCancelled, "invitation cancelled by "+inv.From)
	l.touch(inv.From)
	log.Info().Str("invitationId", inv.ID).Msg("lobby: invitation cancelled")
	l.publishInvitation(inv, inv.To)
	return *inv, nil
}

// Invitation returns a copy of the invitation record.
func (l *Lobby) Invitation(invitationID string) (Invitation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inv, ok := l.invitations[invitationID]
	if !ok {
		return Invitation{}, ErrInvitationNotFound
	}
	return *inv, nil
}

func (l *Lobby) resolve(inv *Invitation, status InvitationStatus, msg string) {
	now := l.cfg.Now()
	inv.Status = status
	inv.Message = msg
	inv.RespondedAt = &now
}

func (l *Lobby) publishInvitation(inv *Invitation, nicknames ...string) {
	for _, n := range nicknames {
		l.pub.Publish(push.InvitationsTopic(n), push.TypeInvitation, *inv)
	}
}

// acceptedInvitation finds an ACCEPTED invitation between a and b that has
// not started a match yet.
func (l *Lobby) acceptedInvitation(a, b string) (*Invitation, bool) {
	for _, inv := range l.invitations {
		if inv.Status != InvitationAccepted || inv.matchID != "" {
			continue
		}
		if (sameNick(inv.From, a) && sameNick(inv.To, b)) || (sameNick(inv.From, b) && sameNick(inv.To, a)) {
			return inv, true
		}
	}
	return nil, false
}
