// Package glob compiles */? wildcard patterns into regular expressions. The
// compiled patterns are process-global and immutable, so they are cached and
// shared without locking.
package glob

import (
	"regexp"
	"strings"

	"github.com/dgraph-io/ristretto"
)

var patterns *ristretto.Cache

func init() {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100000,
		MaxCost:     10000,
		BufferItems: 64,
	})
	if err != nil {
		panic(err)
	}
	patterns = c
}

// Compile turns a */? wildcard into an anchored, case-insensitive regexp.
// Compiled patterns are cached; a pattern not (or not yet) in the cache is
// compiled again.
func Compile(pattern string) *regexp.Regexp {
	if v, ok := patterns.Get(pattern); ok {
		return v.(*regexp.Regexp)
	}
	re := regexp.MustCompile(toRegex(pattern))
	patterns.Set(pattern, re, 1)
	return re
}

// Match reports whether s matches the wildcard pattern, case-insensitively
func Match(pattern, s string) bool {
	if !strings.ContainsAny(pattern, "*?") {
		return strings.EqualFold(pattern, s)
	}
	return Compile(pattern).MatchString(s)
}

func toRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}
