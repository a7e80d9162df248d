package types

import (
	"strconv"
	"strings"
	"unicode"
)

var secretPatterns = []string{
	"secret", "key", "token", "password", "passwd", "pwd",
	"auth", "credential", "private", "cert",
	"client_id", "oauth", "bearer", "jwt", "session", "cookie",
	"salt", "signature", "signing", "encryption", "cipher",
	"webhook", "vault",
}

var databasePatterns = []string{
	"database_url", "db_url", "dsn", "connection_string",
	"postgres_url", "mysql_url", "mongodb_url", "mongo_url", "redis_url", "amqp_url",
}

// set by the shell or the container runtime, never by the service's config
var systemEnvVars = map[string]bool{
	"path": true, "home": true, "user": true, "shell": true, "pwd": true, "lang": true,
	"term": true, "tmpdir": true, "ps1": true, "ifs": true, "editor": true, "pager": true,
	"oldpwd": true, "shlvl": true, "hostname": true, "logname": true, "uid": true, "gid": true,
}

var portVars = map[string]bool{"port": true, "http_port": true, "server_port": true, "app_port": true}

// ShouldIgnore reports whether a variable belongs to the environment of every process
func ShouldIgnore(name string) bool {
	return systemEnvVars[strings.ToLower(name)]
}

// ClassifyEnvVar guesses what a variable holds and whether its value must be kept out of logs
func ClassifyEnvVar(name, value string) (EnvType, bool) {
	nameLower := strings.ToLower(name)

	if systemEnvVars[nameLower] {
		return EnvTypeUnknown, false
	}
	if portVars[nameLower] {
		return EnvTypePort, false
	}
	if looksGenerated(value) {
		return EnvTypeGenerated, true
	}

	for _, pattern := range databasePatterns {
		if strings.Contains(nameLower, pattern) {
			return EnvTypeDatabase, true
		}
	}
	for _, pattern := range secretPatterns {
		if strings.Contains(nameLower, pattern) {
			return EnvTypeSecret, true
		}
	}

	switch {
	case strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") || strings.HasSuffix(nameLower, "_url"):
		return EnvTypeURL, false
	case value == "true" || value == "false" || strings.HasPrefix(nameLower, "enable") || strings.HasSuffix(nameLower, "_enabled"):
		return EnvTypeBoolean, false
	case isNumeric(value):
		return EnvTypeNumeric, false
	}
	return EnvTypeConfig, false
}

func looksGenerated(value string) bool {
	if len(value) < 16 {
		return false
	}

	// uuid
	if len(value) == 36 && strings.Count(value, "-") == 4 {
		return true
	}
	// jwt
	if strings.Count(value, ".") == 2 && len(value) > 50 {
		return true
	}
	return isURLSafeBase64(value) && hasHighEntropy(value) && containsMixedCase(value)
}

func isURLSafeBase64(s string) bool {
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// more than half the characters are distinct
func hasHighEntropy(value string) bool {
	seen := make(map[rune]bool)
	for _, r := range value {
		seen[r] = true
	}
	return float64(len(seen))/float64(len(value)) > 0.5
}

func containsMixedCase(value string) bool {
	hasUpper, hasLower := false, false
	for _, r := range value {
		hasUpper = hasUpper || unicode.IsUpper(r)
		hasLower = hasLower || unicode.IsLower(r)
	}
	return hasUpper && hasLower
}

func isNumeric(value string) bool {
	_, err := strconv.Atoi(value)
	return err == nil
}
