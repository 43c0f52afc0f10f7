package main

import (
	"fmt"
	"strings"

	"github.com/hyacinthwings/mastermind/internal/game"
	"github.com/hyacinthwings/mastermind/internal/lobby"
	"github.com/hyacinthwings/mastermind/internal/match"
	"github.com/hyacinthwings/mastermind/internal/matchmaking"
)

func renderAttempt(a game.Attempt) string {
	return fmt.Sprintf("%-40s exact %d  partial %d", a.Guess.String(), a.Feedback.Exact, a.Feedback.Partial)
}

func renderBoard(b *strings.Builder, title string, v *match.View) {
	fmt.Fprintf(b, "%s:\n", title)
	if len(v.History) == 0 {
		b.WriteString("  (no guesses yet)\n")
	}
	for i, a := range v.History {
		fmt.Fprintf(b, "  %2d. %s\n", i+1, renderAttempt(a))
	}
}

func renderSnapshot(s match.Snapshot) string {
	var b strings.Builder
	if s.Mode == "" {
		return "no match in progress\n"
	}
	header := fmt.Sprintf("== %s, %s", s.Mode, s.Phase)
	if s.Phase == match.PhasePlaying && s.Mode != match.ModeSolo {
		if s.Turn == match.SideUser {
			header += ", your turn"
		} else if s.OpponentName != "" {
			header += ", " + s.OpponentName + "'s turn"
		} else {
			header += ", opponent's turn"
		}
	}
	if s.Mode == match.ModeVsHuman && s.Phase == match.PhaseSetup {
		header += ", waiting for " + s.OpponentName
	}
	b.WriteString(header + " ==\n")

	if s.Self != nil {
		renderBoard(&b, "your guesses", s.Self)
	}
	if s.Opponent != nil {
		title := "computer's guesses"
		if s.OpponentName != "" {
			title = s.OpponentName + "'s guesses"
		}
		renderBoard(&b, title, s.Opponent)
	}
	if len(s.Revealed) > 0 {
		fmt.Fprintf(&b, "secret: %s\n", s.Revealed)
	}
	if s.Phase == match.PhaseFinished {
		b.WriteString(renderWinner(s) + "\n")
	}
	if s.Notice != "" {
		fmt.Fprintf(&b, "note: %s\n", s.Notice)
	}
	return b.String()
}

func renderWinner(s match.Snapshot) string {
	switch s.Winner {
	case match.WinnerUser:
		return "you win!"
	case match.WinnerOpponent:
		return "you lose."
	case match.WinnerDraw:
		return "it's a draw."
	}
	return "out of attempts."
}

func renderPlayers(ps []lobby.Player) string {
	if len(ps) == 0 {
		return "nobody else is here"
	}
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = fmt.Sprintf("%s (%s)", p.Nickname, strings.ToLower(string(p.Status)))
	}
	return "players: " + strings.Join(parts, ", ")
}

func renderEvent(ev matchmaking.Event, me string) string {
	switch ev.Kind {
	case matchmaking.EventPresence:
		return renderPlayers(ev.Players)
	case matchmaking.EventInvitation:
		inv := ev.Invitation
		switch inv.Status {
		case lobby.InvitationPending:
			return fmt.Sprintf("%s invites you (%s): accept or decline", inv.From, shortID(inv.ID))
		case lobby.InvitationAccepted:
			return fmt.Sprintf("%s accepted; choose your secret: secret <colors...>", inv.To)
		case lobby.InvitationDeclined:
			return fmt.Sprintf("%s declined your invitation", inv.To)
		case lobby.InvitationCancelled:
			if inv.Message != "" {
				return inv.Message
			}
			return fmt.Sprintf("invitation %s was cancelled", shortID(inv.ID))
		}
	case matchmaking.EventMatchReady:
		m := ev.Match
		order := "second"
		if m.MovesFirst(me) {
			order = "first"
		}
		return fmt.Sprintf("match against %s is ready; you move %s", m.Opponent(me), order)
	case matchmaking.EventMatchEnded:
		if ev.Match.Message != "" {
			return "match ended: " + ev.Match.Message
		}
		return fmt.Sprintf("match against %s ended", ev.Match.Opponent(me))
	case matchmaking.EventDisconnected:
		return "push channel closed; log in again to reconnect"
	case matchmaking.EventError:
		return "error: " + describeError(ev.Err)
	}
	return ""
}
