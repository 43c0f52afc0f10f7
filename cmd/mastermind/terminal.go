package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hyacinthwings/mastermind/internal/apiclient"
	"github.com/hyacinthwings/mastermind/internal/game"
	"github.com/hyacinthwings/mastermind/internal/lobby"
	"github.com/hyacinthwings/mastermind/internal/match"
	"github.com/hyacinthwings/mastermind/internal/matchmaking"
)

type terminal struct {
	api  *apiclient.Client
	orch *match.Orchestrator
	mm   *matchmaking.Client

	mu  sync.Mutex
	out io.Writer
}

func newTerminal(server string, slots int, out io.Writer) *terminal {
	api := apiclient.New(server, nil)
	orch := match.NewOrchestrator(api, slots)
	return &terminal{
		api:  api,
		orch: orch,
		mm:   matchmaking.New(api, matchmaking.PushDialer(api.PushURL()), orch),
		out:  out,
	}
}

// start runs both actors and the screen until ctx is done.
func (t *terminal) start(ctx context.Context) {
	go t.orch.Run(ctx)
	go t.mm.Run(ctx)
	go t.watch(ctx)
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

type command struct {
	usage string
	run   func(t *terminal, ctx context.Context, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":        {"help", (*terminal).help},
		"colors":      {"colors", (*terminal).colors},
		"solo":        {"solo", (*terminal).solo},
		"computer":    {"computer [secret colors...]", (*terminal).computer},
		"guess":       {"guess <colors...>", (*terminal).guess},
		"hint":        {"hint", (*terminal).hint},
		"reveal":      {"reveal", (*terminal).reveal},
		"retry":       {"retry", (*terminal).retry},
		"reset":       {"reset", (*terminal).reset},
		"show":        {"show", (*terminal).show},
		"login":       {"login <nickname>", (*terminal).login},
		"logout":      {"logout", (*terminal).logout},
		"check":       {"check <nickname>", (*terminal).check},
		"players":     {"players", (*terminal).players},
		"invite":      {"invite <nickname>", (*terminal).invite},
		"invitations": {"invitations", (*terminal).invitations},
		"accept":      {"accept <invitation id prefix>", respond(true)},
		"decline":     {"decline <invitation id prefix>", respond(false)},
		"cancel":      {"cancel <invitation id prefix>", (*terminal).cancel},
		"secret":      {"secret <colors...>", (*terminal).secret},
		"status":      {"status", (*terminal).status},
	}
}

var errUsage = errors.New("usage")

// exec runs one input line and reports whether the user asked to quit.
func (t *terminal) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	name := strings.ToLower(fields[0])
	if name == "quit" || name == "exit" {
		return true
	}
	cmd, ok := commands[name]
	if !ok {
		t.printf("unknown command %q, try 'help'\n", name)
		return false
	}
	if err := cmd.run(t, ctx, fields[1:]); err != nil {
		if errors.Is(err, errUsage) {
			t.printf("usage: %s\n", cmd.usage)
		} else {
			t.printf("error: %s\n", describeError(err))
		}
	}
	return false
}

func describeError(err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func (t *terminal) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if t.mm.View().SessionID != "" {
		_ = t.mm.Logout(ctx)
	}
}

// watch prints state changes from both actors.
func (t *terminal) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-t.orch.Updates():
			if pending(s) {
				continue
			}
			t.printf("%s", renderSnapshot(s))
		case ev := <-t.mm.Events():
			if msg := renderEvent(ev, t.mm.View().Nickname); msg != "" {
				t.printf("%s\n", msg)
			}
		}
	}
}

func pending(s match.Snapshot) bool {
	return (s.Self != nil && s.Self.Pending) || (s.Opponent != nil && s.Opponent.Pending)
}

// --------------------------------- play -------------------------------------

func (t *terminal) help(context.Context, []string) error {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		t.printf("  %s\n", commands[n].usage)
	}
	t.printf("  quit\n")
	return nil
}

func (t *terminal) colors(ctx context.Context, _ []string) error {
	cs, err := t.api.Colors(ctx)
	if err != nil {
		return err
	}
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = string(c)
	}
	t.printf("colors: %s\n", strings.Join(names, " "))
	return nil
}

func (t *terminal) solo(ctx context.Context, _ []string) error { return t.orch.StartSolo(ctx) }

func (t *terminal) computer(ctx context.Context, args []string) error {
	if len(args) == 0 {
		if err := t.orch.SetupVsComputer(ctx); err != nil {
			return err
		}
		t.printf("choose the secret the computer must crack: computer <colors...>\n")
		return nil
	}
	secret, err := parseCode(args)
	if err != nil {
		return err
	}
	return t.orch.StartVsComputer(ctx, secret)
}

func (t *terminal) guess(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	code, err := parseCode(args)
	if err != nil {
		return err
	}
	a, err := t.orch.Submit(ctx, code)
	if err != nil {
		return err
	}
	t.printf("%s\n", renderAttempt(a))
	return nil
}

func (t *terminal) hint(ctx context.Context, _ []string) error {
	code, err := t.orch.Hint(ctx)
	if err != nil {
		return err
	}
	if code == nil {
		t.printf("no code fits the feedback so far\n")
		return nil
	}
	t.printf("try: %s\n", code)
	return nil
}

func (t *terminal) reveal(ctx context.Context, _ []string) error {
	code, err := t.orch.Reveal(ctx)
	if err != nil {
		return err
	}
	t.printf("secret: %s\n", code)
	return nil
}

func (t *terminal) retry(ctx context.Context, _ []string) error { return t.orch.RetryOpponent(ctx) }
func (t *terminal) reset(ctx context.Context, _ []string) error { return t.orch.Reset(ctx) }

func (t *terminal) show(context.Context, []string) error {
	t.printf("%s", renderSnapshot(t.orch.Snapshot()))
	return nil
}

// --------------------------------- lobby ------------------------------------

func (t *terminal) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if err := t.mm.Login(ctx, args[0]); err != nil {
		return err
	}
	t.printf("logged in as %s\n", t.mm.View().Nickname)
	return nil
}

func (t *terminal) logout(ctx context.Context, _ []string) error { return t.mm.Logout(ctx) }

func (t *terminal) check(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	ok, err := t.api.CheckNickname(ctx, args[0])
	if err != nil {
		return err
	}
	if ok {
		t.printf("%s is available\n", args[0])
	} else {
		t.printf("%s is taken\n", args[0])
	}
	return nil
}

func (t *terminal) players(ctx context.Context, _ []string) error {
	ps, err := t.mm.Players(ctx)
	if err != nil {
		return err
	}
	t.printf("%s\n", renderPlayers(ps))
	return nil
}

func (t *terminal) invite(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	inv, err := t.mm.Invite(ctx, args[0])
	if err != nil {
		return err
	}
	t.printf("invited %s (%s)\n", inv.To, shortID(inv.ID))
	return nil
}

func (t *terminal) invitations(context.Context, []string) error {
	v := t.mm.View()
	if len(v.Invitations) == 0 {
		t.printf("no invitations\n")
	}
	for _, inv := range v.Invitations {
		t.printf("  %s %s -> %s %s\n", shortID(inv.ID), inv.From, inv.To, inv.Status)
	}
	return nil
}

func respond(accept bool) func(*terminal, context.Context, []string) error {
	return func(t *terminal, ctx context.Context, args []string) error {
		if len(args) != 1 {
			return errUsage
		}
		id, err := resolveInvitation(t.mm.View().Invitations, args[0])
		if err != nil {
			return err
		}
		inv, err := t.mm.Respond(ctx, id, accept)
		if err != nil {
			return err
		}
		if inv.Status == lobby.InvitationAccepted {
			t.printf("accepted; choose your secret: secret <colors...>\n")
		}
		return nil
	}
}

func (t *terminal) cancel(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	id, err := resolveInvitation(t.mm.View().Invitations, args[0])
	if err != nil {
		return err
	}
	_, err = t.mm.Cancel(ctx, id)
	return err
}

func (t *terminal) secret(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	code, err := parseCode(args)
	if err != nil {
		return err
	}
	m, err := t.mm.SetSecret(ctx, code)
	if err != nil {
		return err
	}
	if m.Status != lobby.MatchPlaying {
		t.printf("secret set; waiting for %s\n", m.Opponent(t.mm.View().Nickname))
	}
	return nil
}

func (t *terminal) status(ctx context.Context, _ []string) error {
	nick := t.mm.View().Nickname
	if nick == "" {
		return matchmaking.ErrNotLoggedIn
	}
	m, err := t.api.MatchStatus(ctx, nick)
	if err != nil {
		return err
	}
	t.printf("match %s: %s vs %s, %s\n", shortID(m.ID), m.Player1, m.Player2, m.Status)
	return nil
}

// parseCode reads colors given as separate words, comma lists, or both.
func parseCode(args []string) (game.Code, error) {
	var words []string
	for _, a := range args {
		for _, w := range strings.Split(a, ",") {
			if w = strings.TrimSpace(w); w != "" {
				words = append(words, w)
			}
		}
	}
	return game.ParseCode(words)
}

// resolveInvitation finds the unique invitation whose id starts with prefix.
func resolveInvitation(invs []lobby.Invitation, prefix string) (string, error) {
	var found string
	for _, inv := range invs {
		if strings.HasPrefix(inv.ID, prefix) {
			if found != "" {
				return "", fmt.Errorf("invitation id %q is ambiguous", prefix)
			}
			found = inv.ID
		}
	}
	if found == "" {
		return prefix, nil
	}
	return found, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
