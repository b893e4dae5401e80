package version

import (
	"fmt"
	"log"
	"strings"

	"github.com/thushan/llamatap/theme"
)

var (
	Name        = "llamatap"
	ShortName   = "llamatap"
	Authors     = "Thushan Fernando"
	Description = "OpenAI-compatible tap proxy for your AI providers"
	Version     = "v0.0.1"
	Commit      = "none"
	Date        = "nowish"
	User        = "local"
)

const (
	GithubHomeText  = "github.com/thushan/llamatap"
	GithubHomeUri   = "https://github.com/thushan/llamatap"
	GithubLatestUri = "https://github.com/thushan/llamatap/releases/latest"
)

// UserAgent is sent upstream on every proxied request
func UserAgent() string {
	return Name + "/" + Version
}

func PrintVersionInfo(extendedInfo bool, vlog *log.Logger) {
	githubUri := theme.Hyperlink(GithubHomeUri, GithubHomeText)
	latestUri := theme.Hyperlink(GithubLatestUri, Version)

	var b strings.Builder

	b.WriteString(theme.ColourSplash(`
╔──────────────────────────────────────────────╗
│  ╦  ╦  ╔═╗╔╦╗╔═╗╔╦╗╔═╗╔═╗                     │
│  ║  ║  ╠═╣║║║╠═╣ ║ ╠═╣╠═╝                     │
│  ╩═╝╩═╝╩ ╩╩ ╩╩ ╩ ╩ ╩ ╩╩                       │` + "\n"))

	b.WriteString(theme.ColourSplash("│ "))
	b.WriteString(theme.StyleUrl(githubUri))
	b.WriteString("  ")
	b.WriteString(theme.ColourVersion(latestUri))
	b.WriteString("\n")
	b.WriteString(theme.ColourSplash("╚──────────────────────────────────────────────╝"))

	if extendedInfo {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf(" Commit: %s\n", Commit))
		b.WriteString(fmt.Sprintf("  Built: %s\n", Date))
		b.WriteString(fmt.Sprintf("  Using: %s\n", User))
	}

	vlog.Println(b.String())
}
