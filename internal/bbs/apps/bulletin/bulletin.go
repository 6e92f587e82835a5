// Package bulletin is a minimal builtin app (spec §4.4's example payload:
// "message boards"), satisfying domain.App end to end so AppRegistry and
// Shell have a concrete non-remote app to dispatch through while the
// RemoteLoader pipeline is exercised separately. It persists posts through
// its CapabilityFacade's unscoped storage, one post per key.
package bulletin

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/boardwalkbbs/server/internal/bbs/capability"
	"github.com/boardwalkbbs/server/internal/bbs/domain"
)

// ID is this app's fixed registry id.
const ID = "messageBoards"

// App is the builtin message-board app.
type App struct {
	caps *capability.Facade
}

// New constructs an unwired App; OnInit supplies the CapabilityFacade.
func New() *App { return &App{} }

func (a *App) ID() string { return ID }

func (a *App) Meta() domain.AppMeta {
	return domain.AppMeta{
		ID:          ID,
		Name:        "Message Boards",
		Version:     "1.0.0",
		Description: "Post and read short public messages.",
		Author:      "boardwalkbbs",
	}
}

// OnInit implements domain.OnInitApp.
func (a *App) OnInit(caps any) {
	if facade, ok := caps.(*capability.Facade); ok {
		a.caps = facade
	}
}

func (a *App) GetWelcomeScreen() string {
	return "=== MESSAGE BOARDS ===\nLIST to read posts, POST <text> to add one, B to go back."
}

func (a *App) GetHelp(screenID *string) string {
	return "Commands: LIST, POST <text>. B returns to the main menu."
}

const (
	postCountKey = "post_count"
	maxPosts     = 50
)

func (a *App) HandleCommand(screenID *string, command string, session domain.SessionView) (domain.CommandResult, error) {
	trimmed := strings.TrimSpace(command)
	upper := strings.ToUpper(trimmed)
	screen := "home"
	if screenID != nil {
		screen = *screenID
	}

	switch {
	case upper == "LIST":
		return domain.CommandResult{Screen: &screen, Response: a.renderPosts(), Refresh: false}, nil
	case upper == "POST" || strings.HasPrefix(upper, "POST "):
		text := strings.TrimSpace(trimmed[len("POST"):])
		return domain.CommandResult{Screen: &screen, Response: a.addPost(session, text), Refresh: false}, nil
	default:
		return domain.CommandResult{Screen: &screen, Response: "Unknown command. Try LIST or POST <text>.", Refresh: false}, nil
	}
}

func (a *App) addPost(session domain.SessionView, text string) string {
	if text == "" {
		return "POST requires text."
	}
	if a.caps == nil {
		return "storage unavailable"
	}
	ctx := context.Background()
	storage := a.caps.Storage()

	count := a.postCount(ctx, storage)
	if count >= maxPosts {
		return "message board is full"
	}

	author := session.Username
	if author == "" {
		author = "anonymous"
	}
	entry := domain.Map(map[string]domain.Value{
		"author": domain.String(author),
		"text":   domain.String(text),
	})
	key := "post_" + strconv.Itoa(count)
	if err := storage.Set(ctx, key, entry); err != nil {
		return "failed to save post: " + err.Error()
	}
	if err := storage.Set(ctx, postCountKey, domain.Number(float64(count+1))); err != nil {
		return "failed to save post: " + err.Error()
	}
	return "posted."
}

func (a *App) postCount(ctx context.Context, storage *capability.Scope) int {
	v, ok, err := storage.Get(ctx, postCountKey)
	if err != nil || !ok {
		return 0
	}
	n, ok := v.AsNumber()
	if !ok {
		return 0
	}
	return int(n)
}

func (a *App) renderPosts() string {
	if a.caps == nil {
		return "storage unavailable"
	}
	ctx := context.Background()
	storage := a.caps.Storage()
	count := a.postCount(ctx, storage)
	if count == 0 {
		return "No posts yet."
	}

	var b strings.Builder
	for i := 0; i < count; i++ {
		v, ok, err := storage.Get(ctx, "post_"+strconv.Itoa(i))
		if err != nil || !ok {
			continue
		}
		fields, ok := v.AsMap()
		if !ok {
			continue
		}
		author, _ := fields["author"].AsString()
		text, _ := fields["text"].AsString()
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, author, text)
	}
	return b.String()
}
