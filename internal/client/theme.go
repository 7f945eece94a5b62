package client

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"

	themeFile = "theme"
)

func (t Theme) Opposite() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// ThemeStore keeps the colour theme and persists it under the config dir.
// If the preference cannot be written the choice lives in memory only.
type ThemeStore struct {
	dir    string
	system func() Theme
	logger *slog.Logger

	mu      sync.Mutex
	current Theme
}

// NewThemeStore reads and writes dir/theme. system supplies the fallback when
// nothing has been saved; nil uses SystemTheme.
func NewThemeStore(dir string, system func() Theme, logger *slog.Logger) *ThemeStore {
	if system == nil {
		system = func() Theme { return SystemTheme(os.Getenv) }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ThemeStore{dir: dir, system: system, logger: logger}
}

// DefaultConfigDir is where the client keeps its settings when none is configured.
func DefaultConfigDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "dreamhome-studio")
}

// Initial resolves the theme at startup: saved preference first, then the
// system preference.
func (s *ThemeStore) Initial() Theme {
	theme := s.load()
	s.mu.Lock()
	s.current = theme
	s.mu.Unlock()
	return theme
}

func (s *ThemeStore) load() Theme {
	if s.dir == "" {
		return s.system()
	}
	raw, err := os.ReadFile(filepath.Join(s.dir, themeFile))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("theme preference unreadable", slog.String("error", err.Error()))
		}
		return s.system()
	}
	switch t := Theme(strings.TrimSpace(string(raw))); t {
	case ThemeLight, ThemeDark:
		return t
	default:
		return s.system()
	}
}

func (s *ThemeStore) Current() Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" {
		return ThemeLight
	}
	return s.current
}

// Set applies theme and tries to persist it. It returns the applied theme.
func (s *ThemeStore) Set(theme Theme) Theme {
	if theme != ThemeDark {
		theme = ThemeLight
	}

	s.mu.Lock()
	s.current = theme
	s.mu.Unlock()

	if err := s.save(theme); err != nil {
		s.logger.Debug("theme preference not saved", slog.String("error", err.Error()))
	}
	return theme
}

func (s *ThemeStore) Toggle() Theme {
	return s.Set(s.Current().Opposite())
}

func (s *ThemeStore) save(theme Theme) error {
	if s.dir == "" {
		return errors.New("no config dir")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, themeFile), []byte(theme), 0o644)
}

// SystemTheme guesses the terminal background from COLORFGBG ("fg;bg").
// Backgrounds 0-6 and 8 are dark; anything else, or no hint, is light.
func SystemTheme(getenv func(string) string) Theme {
	v := getenv("COLORFGBG")
	if v == "" {
		return ThemeLight
	}
	parts := strings.Split(v, ";")
	bg, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return ThemeLight
	}
	if (bg >= 0 && bg <= 6) || bg == 8 {
		return ThemeDark
	}
	return ThemeLight
}
