package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/dom/dreamhome-studio/internal/client"
	"github.com/dom/dreamhome-studio/internal/config"
	"github.com/dom/dreamhome-studio/internal/logger"
	"golang.org/x/term"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.SetupDefault(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configDir := cfg.ConfigDir
	if configDir == "" {
		configDir = client.DefaultConfigDir()
	}

	api := client.NewAPIClient(cfg.APIURL, nil)
	gateway := client.NewAuthGateway(api, log)
	gallery := client.NewGalleryStore(api, log)
	gallery.SessionLost = gateway.SessionLost
	theme := client.NewThemeStore(configDir, nil, log)

	controller := client.NewController(ctx, gateway, gallery, api, theme, log)
	defer controller.Close()

	r := &repl{
		ctx:        ctx,
		controller: controller,
		in:         bufio.NewScanner(os.Stdin),
		out:        os.Stdout,
	}
	controller.OnChange(r.onChange)

	gateway.Start(ctx, cfg.InitialToken)
	r.render(controller.State())

	r.run()
}

type repl struct {
	ctx        context.Context
	controller *client.Controller
	in         *bufio.Scanner
	out        io.Writer

	// busy is set while a command runs; its result is rendered afterwards.
	busy atomic.Bool
}

func (r *repl) run() {
	for {
		fmt.Fprint(r.out, r.promptLine())
		if !r.in.Scan() {
			return
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		r.busy.Store(true)
		quit := r.dispatch(strings.ToLower(cmd), strings.TrimSpace(arg))
		r.busy.Store(false)
		if quit {
			return
		}
		r.render(r.controller.State())
		if r.ctx.Err() != nil {
			return
		}
	}
}

func (r *repl) promptLine() string {
	s := r.controller.State()
	if s.User == nil {
		return fmt.Sprintf("[%s] > ", s.AuthMode)
	}
	return fmt.Sprintf("[%s %s] > ", s.User.Email, s.ActiveTab)
}

// dispatch runs one command and reports whether the REPL should exit.
func (r *repl) dispatch(cmd, arg string) bool {
	c := r.controller
	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		printHelp(r.out)
	case "login", "signup":
		if (cmd == "signup") != (c.State().AuthMode == client.AuthModeSignup) {
			c.ToggleAuthMode()
		}
		email := arg
		if email == "" {
			email = r.readLine("Email: ")
		}
		password := r.readPassword("Password: ")
		c.SubmitCredentials(r.ctx, email, password)
	case "google":
		c.SignInWithOAuth(r.ctx, func(authURL string) error {
			fmt.Fprintf(r.out, "Open this link to sign in with Google:\n  %s\nWaiting...\n", authURL)
			return nil
		})
	case "logout":
		c.SignOut(r.ctx)
	case "tab":
		c.SetTab(client.Tab(strings.ToLower(arg)))
	case "prompt":
		c.SetPrompt(arg)
	case "tag":
		tag, ok := matchTag(arg)
		if !ok {
			fmt.Fprintf(r.out, "Unknown tag. Choose one of: %s\n", strings.Join(client.Tags, ", "))
			return false
		}
		c.SelectTag(tag)
	case "generate":
		if arg != "" {
			c.SetPrompt(arg)
		}
		fmt.Fprintln(r.out, "Generating...")
		c.SubmitPrompt(r.ctx)
	case "delete":
		design, ok := findDesign(c.State(), arg)
		if !ok {
			fmt.Fprintln(r.out, "No such design.")
			return false
		}
		c.DeleteDesign(r.ctx, design.ID)
	case "save":
		id, file, _ := strings.Cut(arg, " ")
		r.save(id, strings.TrimSpace(file))
	case "theme":
		c.ToggleTheme()
	default:
		fmt.Fprintf(r.out, "Unknown command %q. Type help.\n", cmd)
	}
	return false
}

func (r *repl) readLine(label string) string {
	fmt.Fprint(r.out, label)
	if !r.in.Scan() {
		return ""
	}
	return strings.TrimSpace(r.in.Text())
}

func (r *repl) readPassword(label string) string {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return r.readLine(label)
	}
	fmt.Fprint(r.out, label)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(r.out)
	if err != nil {
		return ""
	}
	return string(pw)
}

func (r *repl) save(id, file string) {
	if file == "" {
		fmt.Fprintln(r.out, "Usage: save <id> <file>")
		return
	}
	design, ok := findDesign(r.controller.State(), id)
	if !ok {
		fmt.Fprintln(r.out, "No such design.")
		return
	}
	png, err := decodeImage(design.Image)
	if err != nil {
		fmt.Fprintf(r.out, "Could not decode image: %v\n", err)
		return
	}
	if err := os.WriteFile(file, png, 0o644); err != nil {
		fmt.Fprintf(r.out, "Could not write %s: %v\n", file, err)
		return
	}
	fmt.Fprintf(r.out, "Saved %d bytes to %s\n", len(png), file)
}

// onChange echoes gallery pushes that arrive between commands.
func (r *repl) onChange(s client.State) {
	if r.busy.Load() || s.View() != string(client.TabGallery) {
		return
	}
	fmt.Fprintln(r.out)
	renderGallery(r.out, s)
	fmt.Fprint(r.out, r.promptLine())
}

func (r *repl) render(s client.State) {
	render(r.out, s)
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, `Commands:
  login [email]         sign in with email and password
  signup [email]        create an account
  google                sign in with Google
  logout                sign out
  tab <name>            switch to create, gallery or settings
  prompt <text>         set the prompt
  tag <name>            add a style tag to the prompt
  generate [text]       generate a design from the prompt
  delete <id>           delete a design from the gallery
  save <id> <file>      write a design's PNG to a file
  theme                 toggle light and dark theme
  help                  show this help
  quit                  exit`)
}
