package postgres

import (
	"testing"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://u:p@db:6543/app", Host: "ignored"},
			want: "postgres://u:p@db:6543/app",
		},
		{
			name: "defaults port and sslmode",
			cfg:  ClientConfig{Host: "localhost", Database: "postgres", User: "postgres", Password: "pw"},
			want: "postgres://postgres:pw@localhost:5432/postgres?sslmode=disable",
		},
		{
			name: "explicit sslmode",
			cfg:  ClientConfig{Host: "db.supabase.co", Port: 5433, Database: "d", User: "u", Password: "p", SSLMode: "require"},
			want: "postgres://u:p@db.supabase.co:5433/d?sslmode=require",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMigrationFilesEmbedded(t *testing.T) {
	names, err := migrationFiles()
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	if len(names) == 0 || names[0] != "001_init.sql" {
		t.Fatalf("migrations = %v", names)
	}
}
