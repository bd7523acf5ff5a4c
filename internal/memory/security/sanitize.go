package security

import "strings"

// sqlMetacharacters are characters that have no legitimate place inside
// free-text memory content but are classic SQL-injection/log-injection
// payloads. Bind parameters already make injection impossible; this is
// a defense-in-depth filter applied before content is logged or echoed
// into audit details.
var sqlMetacharacters = []string{";", "--", "/*", "*/", "\x00"}

// SanitizeForLog strips SQL/log-injection metacharacters from text
// headed for a log line or audit_log detail column. It never touches
// content destined for a bind parameter — that path is already safe.
func SanitizeForLog(text string) string {
	out := text
	for _, bad := range sqlMetacharacters {
		out = strings.ReplaceAll(out, bad, "")
	}
	return out
}
