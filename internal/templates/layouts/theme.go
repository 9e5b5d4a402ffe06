package layouts

import (
	"fmt"
	"regexp"
	"strings"
)

var hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Theme holds the brand colors exposed to the front end as CSS variables.
type Theme struct {
	PrimaryColor   string
	SecondaryColor string
	AccentColor    string
}

func DefaultTheme() Theme {
	return Theme{
		PrimaryColor:   "#1f6f43",
		SecondaryColor: "#f4f1e8",
		AccentColor:    "#d9e021",
	}
}

func getThemeCSSVars(theme Theme) string {
	defaults := DefaultTheme()
	return fmt.Sprintf(
		":root{--theme-primary:%s;--theme-secondary:%s;--theme-accent:%s;}",
		themeColorOrDefault(theme.PrimaryColor, defaults.PrimaryColor),
		themeColorOrDefault(theme.SecondaryColor, defaults.SecondaryColor),
		themeColorOrDefault(theme.AccentColor, defaults.AccentColor),
	)
}

func themeColorOrDefault(value string, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || !hexColorPattern.MatchString(trimmed) {
		return fallback
	}
	return trimmed
}
