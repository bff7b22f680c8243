package clusterconfig

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Users holds the user:pass table loaded from a users_file.
type Users struct {
	creds map[string]string
}

// LoadUsers parses a users_file: one "user:pass" per line, '#' comments.
func LoadUsers(path string) (*Users, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("clusterconfig: open users file: %w", err)
	}
	defer f.Close()

	creds := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, fmt.Errorf("clusterconfig: users file line %d: missing ':'", lineNo)
		}
		user := strings.TrimSpace(line[:idx])
		pass := strings.TrimSpace(line[idx+1:])
		if user == "" {
			return nil, fmt.Errorf("clusterconfig: users file line %d: empty user", lineNo)
		}
		creds[user] = pass
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("clusterconfig: read users file: %w", err)
	}
	return &Users{creds: creds}, nil
}

// Authenticate reports whether user/pass matches the loaded table.
func (u *Users) Authenticate(user, pass string) bool {
	want, ok := u.creds[user]
	return ok && want == pass
}
