package store

import (
	"fmt"
	"net/url"
)

// BuildDSN merges the service key into the database URL as the password
// when the URL does not already carry one. Every process that connects to
// the managed database goes through this, so the server and the CLI tools
// agree on what a valid remote configuration looks like.
func BuildDSN(dbURL, serviceKey string) (string, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", fmt.Errorf("parse SUPABASE_DB_URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported database scheme %q", u.Scheme)
	}
	user := "postgres"
	if u.User != nil {
		user = u.User.Username()
		if _, hasPassword := u.User.Password(); hasPassword {
			return u.String(), nil
		}
	}
	u.User = url.UserPassword(user, serviceKey)
	return u.String(), nil
}
