package logging

import (
	"regexp"
)

// RedactedValue replaces credential-looking values in logged commands.
const RedactedValue = "[REDACTED]"

// Command lines routinely embed secrets: password flags, env-style
// assignments, auth headers. Anything matching these never reaches a log.
var secretPatterns = []*regexp.Regexp{
	// --password=x, --password x, -p x and friends
	regexp.MustCompile(`(?i)(--?pass(?:word|phrase)?(?:[= ]))\S+`),
	// KEY=value assignments with a credential-looking key
	regexp.MustCompile(`(?i)\b([A-Z0-9_]*(?:PASSWORD|SECRET|TOKEN|API_KEY|PASSPHRASE)[A-Z0-9_]*=)\S+`),
	// curl -u user:pass
	regexp.MustCompile(`(-u ?)\S+:\S+`),
	// Authorization headers
	regexp.MustCompile(`(?i)(bearer |basic )[a-zA-Z0-9+/=._-]+`),
}

// RedactCommand masks credential-looking values in a command line so it can
// be logged safely. The stored history keeps the original text; only log
// output is redacted.
func RedactCommand(command string) string {
	result := command
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllString(result, "${1}"+RedactedValue)
	}
	return result
}
