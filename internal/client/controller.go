package client

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/google/uuid"
)

type Tab string

const (
	TabCreate   Tab = "create"
	TabGallery  Tab = "gallery"
	TabSettings Tab = "settings"

	// ViewAuth is shown instead of any tab while nobody is signed in.
	ViewAuth = "auth"
)

type AuthMode string

const (
	AuthModeLogin  AuthMode = "login"
	AuthModeSignup AuthMode = "signup"
)

// Tags are the style chips offered under the prompt.
var Tags = []string{"Modern Loft", "Cyberpunk", "Cottagecore", "Art Deco", "Scandanavian"}

type Authenticator interface {
	SignInWithEmail(ctx context.Context, email, password string) error
	SignUpWithEmail(ctx context.Context, email, password string) error
	SignInWithOAuthPopup(ctx context.Context, open func(authURL string) error) error
	SignOut(ctx context.Context) error
	OnAuthStateChange(fn func(*User)) func()
	// Session identifies the signed-in session; see WithSession.
	Session() string
}

type Gallery interface {
	Subscribe(ctx context.Context, onUpdate func([]*domain.Design), onError func(error)) (func(), error)
	Append(ctx context.Context, design *domain.Design) (*domain.Design, error)
	Remove(ctx context.Context, id uuid.UUID) error
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (*domain.Design, error)
}

// State is a snapshot of everything a view renders.
type State struct {
	User          *User
	ActiveTab     Tab
	AuthMode      AuthMode
	PromptText    string
	CurrentDesign *domain.Design
	IsGenerating  bool
	LastError     string
	AuthError     string
	Gallery       []*domain.Design
	Theme         Theme
}

// View names what should be on screen: ViewAuth or the active tab.
func (s State) View() string {
	if s.User == nil {
		return ViewAuth
	}
	return string(s.ActiveTab)
}

// Controller owns the client's view state and reacts to auth and gallery events.
type Controller struct {
	auth      Authenticator
	gallery   Gallery
	generator Generator
	theme     *ThemeStore
	logger    *slog.Logger

	// ctx bounds gallery subscriptions opened from auth callbacks.
	ctx context.Context

	mu    sync.Mutex
	state State
	// epoch changes whenever the signed-in session changes; late results
	// from an older epoch are dropped.
	epoch       uint64
	unsubscribe func()
	subDead     bool
	onChange    func(State)
	stopAuth    func()
}

func NewController(ctx context.Context, auth Authenticator, gallery Gallery, generator Generator, theme *ThemeStore, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		auth:      auth,
		gallery:   gallery,
		generator: generator,
		theme:     theme,
		logger:    logger,
		ctx:       ctx,
		state: State{
			ActiveTab: TabCreate,
			AuthMode:  AuthModeLogin,
			Theme:     theme.Initial(),
		},
	}
	c.stopAuth = auth.OnAuthStateChange(c.handleAuthState)
	return c
}

// OnChange sets a function called with the new state after every change.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) View() string {
	return c.State().View()
}

// Close stops listening to auth changes and drops the gallery subscription.
func (c *Controller) Close() {
	c.stopAuth()
	c.mu.Lock()
	unsub := c.takeSubscriptionLocked()
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (c *Controller) snapshotLocked() State {
	s := c.state
	s.Gallery = append([]*domain.Design(nil), c.state.Gallery...)
	return s
}

func (c *Controller) changed() {
	c.mu.Lock()
	fn := c.onChange
	s := c.snapshotLocked()
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (c *Controller) SetTab(tab Tab) {
	switch tab {
	case TabCreate, TabGallery, TabSettings:
	default:
		return
	}

	c.mu.Lock()
	c.state.ActiveTab = tab
	needResubscribe := tab == TabGallery && c.state.User != nil && c.subDead
	c.mu.Unlock()
	c.changed()

	if needResubscribe {
		c.Resubscribe()
	}
}

func (c *Controller) SetPrompt(text string) {
	c.mu.Lock()
	c.state.PromptText = text
	c.mu.Unlock()
	c.changed()
}

// SelectTag appends tag to the prompt, or starts the prompt with it.
func (c *Controller) SelectTag(tag string) {
	c.mu.Lock()
	if c.state.PromptText == "" {
		c.state.PromptText = tag
	} else {
		c.state.PromptText += ", " + tag
	}
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) ToggleAuthMode() {
	c.mu.Lock()
	if c.state.AuthMode == AuthModeLogin {
		c.state.AuthMode = AuthModeSignup
	} else {
		c.state.AuthMode = AuthModeLogin
	}
	c.state.AuthError = ""
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) ToggleTheme() {
	theme := c.theme.Toggle()
	c.mu.Lock()
	c.state.Theme = theme
	c.mu.Unlock()
	c.changed()
}

// SubmitPrompt generates a design from the current prompt. Blank prompts and
// submits while a generation is running are ignored. The new design is shown
// first and then appended to the gallery; an append failure is only logged.
func (c *Controller) SubmitPrompt(ctx context.Context) {
	c.mu.Lock()
	if c.state.User == nil || c.state.IsGenerating || strings.TrimSpace(c.state.PromptText) == "" {
		c.mu.Unlock()
		return
	}
	prompt := c.state.PromptText
	epoch := c.epoch
	ctx = WithSession(ctx, c.auth.Session())
	c.state.IsGenerating = true
	c.state.LastError = ""
	c.state.CurrentDesign = nil
	c.mu.Unlock()
	c.changed()

	design, err := c.generator.Generate(ctx, prompt)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.Info("discarding generation result for a previous session")
		return
	}
	c.state.IsGenerating = false
	if err != nil {
		c.state.LastError = err.Error()
		c.mu.Unlock()
		c.changed()
		return
	}
	c.state.CurrentDesign = design
	c.mu.Unlock()
	c.changed()

	// ctx is pinned to the session that generated the design, so a user
	// switch from here on cannot save it into someone else's gallery.
	if _, err := c.gallery.Append(ctx, design); err != nil {
		c.logger.Error("failed to save design", slog.String("error", err.Error()))
	}
}

// SubmitCredentials signs in or signs up depending on the auth mode.
func (c *Controller) SubmitCredentials(ctx context.Context, email, password string) {
	c.mu.Lock()
	mode := c.state.AuthMode
	c.state.AuthError = ""
	c.mu.Unlock()
	c.changed()

	var err error
	if mode == AuthModeSignup {
		err = c.auth.SignUpWithEmail(ctx, email, password)
	} else {
		err = c.auth.SignInWithEmail(ctx, email, password)
	}
	if err != nil {
		c.setAuthError(authMessage(err))
	}
}

// SignInWithOAuth runs the popup flow; open shows the consent page.
func (c *Controller) SignInWithOAuth(ctx context.Context, open func(authURL string) error) {
	c.mu.Lock()
	c.state.AuthError = ""
	c.mu.Unlock()
	c.changed()

	if err := c.auth.SignInWithOAuthPopup(ctx, open); err != nil {
		c.logger.Warn("google sign-in failed", slog.String("error", err.Error()))
		c.setAuthError(domain.ErrPopupFailed.Error())
	}
}

func (c *Controller) setAuthError(msg string) {
	c.mu.Lock()
	c.state.AuthError = msg
	c.mu.Unlock()
	c.changed()
}

func authMessage(err error) string {
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		return authErr.Error()
	}
	return domain.AuthUnknown.DefaultMessage()
}

// DeleteDesign removes a design. Failures are logged and otherwise ignored.
func (c *Controller) DeleteDesign(ctx context.Context, id uuid.UUID) {
	if err := c.gallery.Remove(ctx, id); err != nil {
		c.logger.Error("failed to delete design",
			slog.String("design_id", id.String()),
			slog.String("error", err.Error()),
		)
	}
}

// SignOut tears down the gallery subscription and main-shell state before
// signing out.
func (c *Controller) SignOut(ctx context.Context) {
	c.mu.Lock()
	unsub := c.takeSubscriptionLocked()
	c.state.ActiveTab = TabCreate
	c.state.PromptText = ""
	c.state.CurrentDesign = nil
	c.state.Gallery = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	c.changed()

	if err := c.auth.SignOut(ctx); err != nil {
		c.logger.Warn("sign out failed", slog.String("error", err.Error()))
	}
}

// Resubscribe opens a new gallery subscription if the last one died.
func (c *Controller) Resubscribe() {
	c.mu.Lock()
	if c.state.User == nil || !c.subDead {
		c.mu.Unlock()
		return
	}
	unsub := c.takeSubscriptionLocked()
	epoch := c.epoch
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}

	c.subscribe(epoch)
}

func (c *Controller) handleAuthState(user *User) {
	c.mu.Lock()
	unsub := c.takeSubscriptionLocked()
	c.epoch++
	epoch := c.epoch
	if !sameUser(c.state.User, user) {
		c.resetLocked()
	}
	c.state.IsGenerating = false
	c.state.User = user
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	c.changed()

	if user != nil {
		c.subscribe(epoch)
	}
}

func sameUser(a, b *User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

func (c *Controller) resetLocked() {
	c.state.ActiveTab = TabCreate
	c.state.PromptText = ""
	c.state.CurrentDesign = nil
	c.state.IsGenerating = false
	c.state.LastError = ""
	c.state.Gallery = nil
}

func (c *Controller) takeSubscriptionLocked() func() {
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.subDead = false
	return unsub
}

func (c *Controller) subscribe(epoch uint64) {
	unsub, err := c.gallery.Subscribe(c.ctx,
		func(designs []*domain.Design) {
			c.mu.Lock()
			if c.epoch != epoch {
				c.mu.Unlock()
				return
			}
			c.state.Gallery = designs
			c.mu.Unlock()
			c.changed()
		},
		func(err error) {
			c.logger.Error("gallery subscription failed", slog.String("error", err.Error()))
			c.mu.Lock()
			if c.epoch == epoch {
				c.subDead = true
			}
			c.mu.Unlock()
		},
	)
	if err != nil {
		c.logger.Error("gallery subscribe failed", slog.String("error", err.Error()))
		c.mu.Lock()
		if c.epoch == epoch {
			c.subDead = true
		}
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		unsub()
		return
	}
	c.unsubscribe = unsub
	c.mu.Unlock()
}
