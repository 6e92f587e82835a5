// Package appcontract validates that a candidate App (spec §4.4) is
// admissible to the registry, applying the bound checks and the HELP probe
// before the app is ever shown to a session.
package appcontract

import (
	"regexp"

	"github.com/boardwalkbbs/server/internal/bbs/domain"
	"github.com/boardwalkbbs/server/internal/bbserr"
)

// Bounds from spec §4.4.2.
const (
	MaxIDLength          = 50
	MaxNameLength         = 100
	MaxDescriptionLength  = 500
	MaxWelcomeLength      = 10_000
	MaxResponseLength     = 10_000
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

// Validate runs the full admission pipeline for a candidate App: field
// presence/bounds, welcome/help length, and the HELP probe. Failure of any
// single check rejects the app; partial admission never happens (the
// caller gets one error or a fully admissible App, never a half-registered
// one).
func Validate(app domain.App, probeSession domain.SessionView) error {
	meta := app.Meta()

	if !idPattern.MatchString(meta.ID) {
		return bbserr.Sandbox("app id must match [A-Za-z0-9_-]{1,50}").WithDetails("id", meta.ID)
	}
	if len(meta.Name) == 0 || len(meta.Name) > MaxNameLength {
		return bbserr.Sandbox("app name out of bounds").WithDetails("name", meta.Name)
	}
	if len(meta.Description) > MaxDescriptionLength {
		return bbserr.Sandbox("app description exceeds max length")
	}

	welcome := app.GetWelcomeScreen()
	if len(welcome) > MaxWelcomeLength {
		return bbserr.Sandbox("welcome screen exceeds max length")
	}

	help := app.GetHelp(nil)
	if len(help) > MaxWelcomeLength {
		return bbserr.Sandbox("help text exceeds max length")
	}

	result, err := app.HandleCommand(nil, "HELP", probeSession)
	if err != nil {
		return bbserr.Sandbox("probe handle_command(nil, \"HELP\", ...) failed").WithDetails("cause", err.Error())
	}
	if len(result.Response) > MaxResponseLength {
		return bbserr.Sandbox("probe response exceeds max length")
	}

	return nil
}
