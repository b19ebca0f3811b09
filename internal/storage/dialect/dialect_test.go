package dialect

import (
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		dialectType DialectType
		wantName    string
		wantErr     bool
	}{
		{"sqlite", SQLite, "sqlite", false},
		{"postgres", Postgres, "postgres", false},
		{"mysql", DialectType("mysql"), "", true},
		{"unknown", DialectType("unknown"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.dialectType)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && d.Name() != tt.wantName {
				t.Errorf("Name() = %v, want %v", d.Name(), tt.wantName)
			}
		})
	}
}

func TestFromDriverName(t *testing.T) {
	tests := []struct {
		driverName string
		wantName   string
		wantDriver string
		wantErr    bool
	}{
		{"sqlite", "sqlite", "sqlite", false},
		{"SQLite3", "sqlite", "sqlite", false},
		{"postgres", "postgres", "postgres", false},
		{"postgresql", "postgres", "postgres", false},
		{"pgx", "", "", true},
		{"unknown", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.driverName, func(t *testing.T) {
			d, err := FromDriverName(tt.driverName)
			if (err != nil) != tt.wantErr {
				t.Errorf("FromDriverName() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}
			if d.Name() != tt.wantName {
				t.Errorf("Name() = %v, want %v", d.Name(), tt.wantName)
			}
			if d.DriverName() != tt.wantDriver {
				t.Errorf("DriverName() = %v, want %v", d.DriverName(), tt.wantDriver)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	sqlite, _ := New(SQLite)
	postgres, _ := New(Postgres)

	tests := []struct {
		name  string
		d     Dialect
		query string
		want  string
	}{
		{
			name:  "sqlite keeps placeholders",
			d:     sqlite,
			query: "SELECT * FROM rewrites WHERE order_id = ? AND phase = ?",
			want:  "SELECT * FROM rewrites WHERE order_id = ? AND phase = ?",
		},
		{
			name:  "postgres numbers placeholders",
			d:     postgres,
			query: "SELECT * FROM rewrites WHERE order_id = ? AND phase = ? LIMIT ?",
			want:  "SELECT * FROM rewrites WHERE order_id = $1 AND phase = $2 LIMIT $3",
		},
		{
			name:  "postgres skips quoted question marks",
			d:     postgres,
			query: "SELECT '?' AS q, id FROM rewrites WHERE id = ?",
			want:  "SELECT '?' AS q, id FROM rewrites WHERE id = $1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.Rebind(tt.query); got != tt.want {
				t.Errorf("Rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInsertIgnoreClause(t *testing.T) {
	sqlite, _ := New(SQLite)
	postgres, _ := New(Postgres)

	if got := sqlite.InsertIgnoreClause("id"); got != "ON CONFLICT(id) DO NOTHING" {
		t.Errorf("sqlite InsertIgnoreClause() = %q", got)
	}
	if got := postgres.InsertIgnoreClause("id"); got != "ON CONFLICT (id) DO NOTHING" {
		t.Errorf("postgres InsertIgnoreClause() = %q", got)
	}
}

func TestPragmaStatements(t *testing.T) {
	sqlite, _ := New(SQLite)
	postgres, _ := New(Postgres)

	if len(sqlite.PragmaStatements()) == 0 {
		t.Error("expected sqlite pragmas")
	}
	if len(postgres.PragmaStatements()) != 0 {
		t.Error("expected no postgres pragmas")
	}
}
