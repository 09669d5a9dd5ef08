package router

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockalert/internal/runtime/supervisor"
	kit "stockalert/internal/transport"
	logx "stockalert/pkg/logx"
)

// CommandManager routes updates to commands and callbacks on a bounded
// worker pool.
type CommandManager struct {
	mu     sync.RWMutex
	byName map[string]Command
	alias  map[string]Command
	cbs    map[string]CallbackRoute // "prefix:action"
	admins []int64

	log     logx.Logger
	adapter kit.Adapter
	workers int
	jobs    chan func(context.Context)
	limit   *userLimiter
}

const (
	slowRequest   = 750 * time.Millisecond
	userRateEvery = time.Second
	userRateBurst = 5
)

func NewCommandManager(log logx.Logger, adapter kit.Adapter, admins []int64, workers int) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if workers <= 0 {
		workers = 4
	}
	return &CommandManager{
		byName:  map[string]Command{},
		alias:   map[string]Command{},
		cbs:     map[string]CallbackRoute{},
		admins:  slices.Clone(admins),
		log:     log,
		adapter: adapter,
		workers: workers,
		jobs:    make(chan func(context.Context), 256),
		limit:   newUserLimiter(userRateEvery, userRateBurst),
	}
}

// SetAdmins replaces the admin list. Safe during hot reload.
func (m *CommandManager) SetAdmins(ids []int64) {
	m.mu.Lock()
	m.admins = slices.Clone(ids)
	m.mu.Unlock()
}

// isAdmin reports whether id may run admin commands. An empty admin list
// admits everyone.
func (m *CommandManager) isAdmin(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.admins) == 0 || slices.Contains(m.admins, id)
}

// SetRegistry installs cmds and callbacks, adds /help, and pushes the
// command menu to the adapter when supported.
func (m *CommandManager) SetRegistry(ctx context.Context, cmds []Command, cbs []CallbackRoute) {
	cmds = append(cmds, Command{
		Name:        "help",
		Description: "show commands",
		Usage:       "/help [command]",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText(req.Args, m.isAdmin(req.FromID)), &kit.SendOptions{ParseMode: kit.ParseModeHTML, DisablePreview: true})
		},
	})

	byName := map[string]Command{}
	alias := map[string]Command{}
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		byName[name] = c
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				alias[a] = c
			}
		}
	}
	cb := map[string]CallbackRoute{}
	for _, r := range cbs {
		if r.Prefix == "" || r.Action == "" || r.Handle == nil {
			continue
		}
		cb[r.Prefix+":"+r.Action] = r
	}

	m.mu.Lock()
	m.byName, m.alias, m.cbs = byName, alias, cb
	m.mu.Unlock()

	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := up.UpdateMenuCommands(cctx, buildMenu(cmds)); err != nil {
			m.log.Warn("command menu update failed", logx.Err(err))
		}
	}
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(m.log.With(logx.Component("telegram.router"))),
		supervisor.WithCancelOnError(false),
	)
	for i := 0; i < m.workers; i++ {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-m.jobs:
					job(c)
				}
			}
		}, supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	m.log.Info("command dispatcher started", logx.Int("workers", m.workers))

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = sup.Stop(wctx)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(ctx, up)
		}
	}
}

func (m *CommandManager) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(ctx, up)
	case kit.UpdateCallback:
		m.routeCallback(ctx, up)
	}
}

func (m *CommandManager) enqueue(fn func(context.Context)) bool {
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

func (m *CommandManager) newRequest(up kit.Update, chatID, fromID int64, cmd string) *Request {
	rid := uuid.NewString()[:8]
	return &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: chatID},
		FromID:  fromID,
		Command: cmd,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chatID),
			logx.Int64("from_id", fromID),
			logx.String("cmd", cmd),
		),
	}
}

func (m *CommandManager) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}

	m.mu.RLock()
	cmd, found := m.byName[name]
	if !found {
		cmd, found = m.alias[name]
	}
	m.mu.RUnlock()
	if !found {
		_, _ = m.adapter.SendText(ctx, kit.ChatTarget{ChatID: msg.ChatID}, "Unknown command. Try /help", nil)
		return
	}
	if cmd.Access == AccessAdmin && !m.isAdmin(msg.FromID) {
		_, _ = m.adapter.SendText(ctx, kit.ChatTarget{ChatID: msg.ChatID}, "unauthorized", nil)
		return
	}

	req := m.newRequest(up, msg.ChatID, msg.FromID, cmd.Name)
	req.Username = msg.FromUsername
	req.Args = args
	final := m.chain(cmd.Handle, cmd.Timeout)
	if !m.enqueue(func(c context.Context) {
		if errors.Is(final(c, req), ErrThrottled) {
			_ = req.Reply(c, "Slow down, try again in a moment.", nil)
		}
	}) {
		_, _ = m.adapter.SendText(ctx, req.Chat, "busy, try again", nil)
	}
}

func (m *CommandManager) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	parts := strings.SplitN(strings.TrimSpace(cb.Data), ":", 3)
	if len(parts) < 2 {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	key := parts[0] + ":" + parts[1]
	payload := ""
	if len(parts) == 3 {
		payload = parts[2]
	}

	m.mu.RLock()
	route, ok := m.cbs[key]
	m.mu.RUnlock()
	if !ok {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "expired")
		return
	}
	if route.Access == AccessAdmin && !m.isAdmin(cb.FromID) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
		return
	}

	req := m.newRequest(up, cb.ChatID, cb.FromID, "cb:"+key)
	req.Payload = payload
	req.MessageID = cb.MessageID
	h := func(c context.Context, r *Request) error { return route.Handle(c, r, payload) }
	final := m.chain(h, route.Timeout)
	if !m.enqueue(func(c context.Context) {
		text := ""
		if errors.Is(final(c, req), ErrThrottled) {
			text = "slow down"
		}
		_ = m.adapter.AnswerCallback(c, cb.ID, text)
	}) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "busy")
	}
}

func (m *CommandManager) chain(h HandlerFunc, timeout time.Duration) HandlerFunc {
	return Chain(h, Recover(), Logged(slowRequest), Throttle(m.limit), Deadline(timeout))
}

// parseCommand splits "/cmd@bot a b" into ("cmd", [a b]).
func parseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}
