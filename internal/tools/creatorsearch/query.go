package creatorsearch

import (
	"fmt"
	"strings"
)

// NoMatchSentinel is the answer the smart endpoint gives when no account fits
const NoMatchSentinel = "NO_MATCH"

const smartQueryTemplate = `Identify the single creator account described below.
Reply with the exact username only, without the leading @.
If no account clearly matches, reply with %s.

Description: %s`

// FormatQuery prepares a raw query for a strategy. Only the smart strategy reformulates.
func FormatQuery(strategy Strategy, raw string) string {
	if strategy != StrategySmart {
		return raw
	}
	return fmt.Sprintf(smartQueryTemplate, NoMatchSentinel, strings.TrimSpace(raw))
}
