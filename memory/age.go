package memory

import (
	"fmt"
	"time"
)

// humanAge renders how long ago a memory was formed, the way a person
// would say it. Prompt injection uses these labels instead of timestamps;
// the model reasons better about "3 days ago" than about RFC 3339.
func humanAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		n := int(d.Minutes())
		return fmt.Sprintf("%d minute%s ago", n, plural(n))
	case d < 24*time.Hour:
		n := int(d.Hours())
		return fmt.Sprintf("%d hour%s ago", n, plural(n))
	case d < 7*24*time.Hour:
		n := int(d.Hours() / 24)
		return fmt.Sprintf("%d day%s ago", n, plural(n))
	default:
		n := int(d.Hours() / (24 * 7))
		return fmt.Sprintf("%d week%s ago", n, plural(n))
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
