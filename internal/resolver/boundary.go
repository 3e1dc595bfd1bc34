package resolver

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/Veraticus/banktalk/internal/model"
)

// Last-resort text shown when rendering itself fails.
const (
	ReloadMessage    = "Something went wrong while displaying this response."
	ReloadSuggestion = "Please reload the page to continue."
)

// ReloadResolution is the render instruction used after an unexpected failure.
func ReloadResolution() model.Resolution {
	return model.Resolution{
		Component: model.ComponentError,
		Config: map[string]any{
			"message":    ReloadMessage,
			"suggestion": ReloadSuggestion,
			"showRetry":  false,
			"showReload": true,
		},
	}
}

// Boundary runs dispatch and converts a panic into ReloadResolution.
func Boundary(dispatch func() model.Resolution) (res model.Resolution) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Recovered from panic while dispatching render",
				"panic", fmt.Sprint(p),
				"stack", string(debug.Stack()))
			res = ReloadResolution()
		}
	}()
	return dispatch()
}
