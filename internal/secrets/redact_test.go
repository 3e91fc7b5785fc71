package secrets

import (
	"strings"
	"testing"
)

func TestRedactDSN(t *testing.T) {
	tests := []struct {
		name   string
		dsn    string
		hidden string
		keeps  string
	}{
		{"url", "postgres://cache:s3cret@db:5432/blog?sslmode=disable", "s3cret", "db:5432/blog"},
		{"url query password", "postgres://cache@db/blog?password=hunter2", "hunter2", "cache@db"},
		{"key value", "host=db user=cache password=s3cret dbname=blog", "s3cret", "dbname=blog"},
		{"quoted key value", "host=db password='a b c' dbname=blog", "a b c", "host=db"},
		{"no password", "postgres://cache@db/blog", "", "cache@db/blog"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RedactDSN(tt.dsn)
			if tt.hidden != "" && strings.Contains(got, tt.hidden) {
				t.Errorf("RedactDSN(%q) = %q still contains the password", tt.dsn, got)
			}
			if !strings.Contains(got, tt.keeps) {
				t.Errorf("RedactDSN(%q) = %q lost %q", tt.dsn, got, tt.keeps)
			}
		})
	}

	if RedactDSN("") != "" {
		t.Error("empty input should stay empty")
	}
}
