package ipcguard

import "testing"

func TestSanitizePath(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "docs/readme.md", "docs/readme.md", false},
		{"windows separators", `docs\sub\file.txt`, "docs/sub/file.txt", false},
		{"redundant segments", "docs//./file.txt", "docs/file.txt", false},
		{"absolute", "/etc/app/config.json", "/etc/app/config.json", false},
		{"empty", "", "", true},
		{"traversal", "../secrets.txt", "", true},
		{"embedded traversal", "docs/../../secrets.txt", "", true},
		{"windows traversal", `docs\..\..\secrets.txt`, "", true},
		{"encoded traversal", "docs/%2e%2e/secrets.txt", "", true},
		{"encoded separator", "docs%2fsecrets.txt", "", true},
		{"double dot filename ok", "docs/file..txt", "docs/file..txt", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SanitizePath(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("SanitizePath(%q) = %q, want error", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("SanitizePath(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("SanitizePath(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeSQL(t *testing.T) {
	accept := []string{
		"robert",
		"O'Brien",
		"select-ish plain text",
		"quantity > 1 or price = 2",
	}
	for _, in := range accept {
		if got, err := SanitizeSQL(in); err != nil || got != in {
			t.Errorf("SanitizeSQL(%q) = %q, %v; want unchanged, nil", in, got, err)
		}
	}

	reject := []string{
		"x'; DROP TABLE users",
		"1; delete from sessions",
		"name -- comment",
		"name /* comment */",
		"1 UNION SELECT password FROM users",
		"1 union all select secret",
		"' OR '1'='1",
		"a OR 1=1",
		`b or "admin"="admin"`,
	}
	for _, in := range reject {
		if _, err := SanitizeSQL(in); err == nil {
			t.Errorf("SanitizeSQL(%q): expected rejection", in)
		}
	}
}

func TestPathSanitizerAdapter(t *testing.T) {
	got, err := PathSanitizer("docs/file.txt")
	if err != nil || got != "docs/file.txt" {
		t.Fatalf("PathSanitizer = %v, %v", got, err)
	}
	if _, err := PathSanitizer(42); err == nil {
		t.Fatal("expected rejection of non-string argument")
	}
}

func TestSQLSanitizerAdapter(t *testing.T) {
	got, err := SQLSanitizer("robert")
	if err != nil || got != "robert" {
		t.Fatalf("SQLSanitizer = %v, %v", got, err)
	}
	if _, err := SQLSanitizer([]byte("x")); err == nil {
		t.Fatal("expected rejection of non-string argument")
	}
}
