package media

import (
	"errors"
	"fmt"
	"strings"
)

// ErrResolutionInProgress is returned when the same reference is already being resolved
var ErrResolutionInProgress = errors.New("media resolution already in progress for this reference")

// MediaResolutionError is returned once every step of the resolution chain has failed
type MediaResolutionError struct {
	URL      string
	Attempts []Attempt
}

func (e *MediaResolutionError) Error() string {
	var causes []string
	for _, a := range e.Attempts {
		if a.Error != "" {
			causes = append(causes, fmt.Sprintf("%s: %s", a.Step, a.Error))
		}
	}
	if len(causes) == 0 {
		return fmt.Sprintf("could not resolve media %s", e.URL)
	}
	return fmt.Sprintf("could not resolve media %s (%s)", e.URL, strings.Join(causes, "; "))
}

// ErrorKind names the failure class recorded in the tool failure journal
func (e *MediaResolutionError) ErrorKind() string {
	return "media_resolution"
}
