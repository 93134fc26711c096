package scraper

import (
	"iter"
	"strings"

	"igharvest/pkg/models"
)

// Enumerate lazily expands the two input collections into fetch tasks.
// Duplicates within a collection collapse to one task and blank identifiers
// are skipped; the same value in both collections yields two tasks. Input
// order is kept and the two kinds are interleaved one for one so neither
// starves the other when they share the concurrency bound.
func Enumerate(shortcodes, userIDs []string) iter.Seq[models.FetchTask] {
	return func(yield func(models.FetchTask) bool) {
		nextShortcode := distinct(shortcodes)
		nextUser := distinct(userIDs)

		for {
			sc, okSC := nextShortcode()
			if okSC && !yield(models.ShortcodeTask(sc)) {
				return
			}
			uid, okUser := nextUser()
			if okUser && !yield(models.UserTask(uid)) {
				return
			}
			if !okSC && !okUser {
				return
			}
		}
	}
}

// distinct returns a pull function over the first occurrence of each value
func distinct(values []string) func() (string, bool) {
	seen := make(map[string]struct{}, len(values))
	i := 0
	return func() (string, bool) {
		for i < len(values) {
			v := strings.TrimSpace(values[i])
			i++
			if v == "" {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			return v, true
		}
		return "", false
	}
}
