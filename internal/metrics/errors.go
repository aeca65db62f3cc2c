package metrics

import (
	"strings"
	"unicode"
)

// Labels for error types that operations commonly fail with. Keys are %T
// strings without the leading pointer star.
var errorLabels = map[string]string{
	"url.Error":                     "Request URL error",
	"pgconn.PgError":                "Postgres error",
	"pgconn.ConnectError":           "Postgres connect error",
	"proto.RedisError":              "Redis error",
	"net.OpError":                   "Network error",
	"target.StatusError":            "Unexpected status",
	"context.deadlineExceededError": "Context deadline exceeded",
	"errors.errorString":            "Operation error",
}

// FriendlyErrorName turns a %T error type such as "*pool.QueueFullError"
// into a report label such as "Queue Full Error (pool)".
func FriendlyErrorName(typeName string) string {
	name := strings.TrimPrefix(strings.TrimSpace(typeName), "*")
	if name == "" {
		return "Unknown error"
	}
	if i := strings.LastIndex(name, "/"); i != -1 {
		name = name[i+1:]
	}
	if label, ok := errorLabels[name]; ok {
		return label
	}

	pkg, typ, found := strings.Cut(name, ".")
	if !found {
		pkg, typ = "", name
	}
	if pkg == "pgconn" {
		return "Postgres error"
	}

	label := strings.Join(splitWords(typ), " ")
	if pkg == "" || pkg == "main" {
		return label
	}
	return label + " (" + pkg + ")"
}

// splitWords breaks a Go identifier at case changes, keeping acronyms such
// as "HTTP" whole and capitalizing everything else.
func splitWords(ident string) []string {
	runes := []rune(ident)
	var words []string
	start := 0
	for i := 1; i <= len(runes); i++ {
		if i < len(runes) && !wordBoundary(runes, i) {
			continue
		}
		word := string(runes[start:i])
		if strings.ToUpper(word) != word {
			word = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
		}
		words = append(words, word)
		start = i
	}
	return words
}

func wordBoundary(r []rune, i int) bool {
	prev, cur := r[i-1], r[i]
	switch {
	case unicode.IsUpper(cur) && unicode.IsLower(prev):
		return true
	case unicode.IsUpper(cur) && unicode.IsUpper(prev):
		return i+1 < len(r) && unicode.IsLower(r[i+1])
	case unicode.IsDigit(cur):
		return !unicode.IsDigit(prev)
	}
	return false
}
