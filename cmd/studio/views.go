package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dom/dreamhome-studio/internal/client"
	"github.com/dom/dreamhome-studio/internal/domain"
)

const shortIDLen = 8

func render(w io.Writer, s client.State) {
	switch s.View() {
	case client.ViewAuth:
		renderAuth(w, s)
	case string(client.TabGallery):
		renderGallery(w, s)
	case string(client.TabSettings):
		renderSettings(w, s)
	default:
		renderCreate(w, s)
	}
}

func renderAuth(w io.Writer, s client.State) {
	if s.AuthMode == client.AuthModeSignup {
		fmt.Fprintln(w, "Create an account: signup <email>, or google. Type help for more.")
	} else {
		fmt.Fprintln(w, "Sign in: login <email>, or google. Type help for more.")
	}
	if s.AuthError != "" {
		fmt.Fprintf(w, "! %s\n", s.AuthError)
	}
}

func renderCreate(w io.Writer, s client.State) {
	fmt.Fprintf(w, "Prompt: %s\n", s.PromptText)
	fmt.Fprintf(w, "Tags:   %s\n", strings.Join(client.Tags, " | "))
	switch {
	case s.IsGenerating:
		fmt.Fprintln(w, "Generating...")
	case s.LastError != "":
		fmt.Fprintf(w, "! %s\n", s.LastError)
	case s.CurrentDesign != nil:
		fmt.Fprintf(w, "Generated %q (%s)\n", s.CurrentDesign.Prompt, imageSize(s.CurrentDesign.Image))
	}
}

func renderGallery(w io.Writer, s client.State) {
	if len(s.Gallery) == 0 {
		fmt.Fprintln(w, "Your gallery is empty.")
		return
	}
	for _, d := range s.Gallery {
		fmt.Fprintf(w, "%s  %s  %s\n", shortID(d), d.CreatedAt.Local().Format("2006-01-02 15:04"), d.Prompt)
	}
}

func renderSettings(w io.Writer, s client.State) {
	fmt.Fprintf(w, "Signed in as %s\n", s.User.Email)
	fmt.Fprintf(w, "Theme: %s (toggle with: theme)\n", s.Theme)
}

func shortID(d *domain.Design) string {
	id := d.ID.String()
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

// matchTag finds a tag case-insensitively.
func matchTag(name string) (string, bool) {
	for _, tag := range client.Tags {
		if strings.EqualFold(tag, strings.TrimSpace(name)) {
			return tag, true
		}
	}
	return "", false
}

// findDesign looks a design up by full id or unique id prefix.
func findDesign(s client.State, id string) (*domain.Design, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return nil, false
	}
	var found *domain.Design
	for _, d := range s.Gallery {
		if strings.HasPrefix(d.ID.String(), id) {
			if found != nil {
				return nil, false
			}
			found = d
		}
	}
	return found, found != nil
}

func decodeImage(dataURI string) ([]byte, error) {
	_, payload, ok := strings.Cut(dataURI, ";base64,")
	if !ok || !strings.HasPrefix(dataURI, "data:image/") {
		return nil, errors.New("not a base64 image data URI")
	}
	return base64.StdEncoding.DecodeString(payload)
}

func imageSize(dataURI string) string {
	_, payload, ok := strings.Cut(dataURI, ";base64,")
	if !ok {
		return "no image"
	}
	n := base64.StdEncoding.DecodedLen(len(payload))
	if n >= 1<<20 {
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	}
	return fmt.Sprintf("%d KB", n/1024)
}
