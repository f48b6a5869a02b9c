package importer

import (
	"errors"
	"strings"
	"testing"
)

func TestCheckFile(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		size     int64
		wantErr  bool
	}{
		{"valid csv", "contacts.csv", 1024, false},
		{"valid txt", "export.txt", 1024, false},
		{"uppercase extension", "CONTACTS.CSV", 1024, false},
		{"at size limit", "contacts.csv", MaxFileSize, false},
		{"over size limit", "contacts.csv", MaxFileSize + 1, true},
		{"wrong extension", "contacts.xlsx", 1024, true},
		{"no extension", "contacts", 1024, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckFile(tt.fileName, tt.size)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckFile(%q, %d) error = %v, wantErr %v", tt.fileName, tt.size, err, tt.wantErr)
			}
			if err != nil {
				var rejected *FileRejectedError
				if !errors.As(err, &rejected) {
					t.Errorf("CheckFile() error type = %T, want *FileRejectedError", err)
				}
			}
		})
	}
}

func TestTokenize_Basic(t *testing.T) {
	data := []byte("Name,Email,Phone\nAlice,alice@example.com,555-0100\nBob,bob@example.com,555-0101\n")

	headers, rows, err := Tokenize("contacts.csv", int64(len(data)), data)
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}

	wantHeaders := []string{"name", "email", "phone"}
	if len(headers) != len(wantHeaders) {
		t.Fatalf("headers = %v, want %v", headers, wantHeaders)
	}
	for i, h := range wantHeaders {
		if headers[i] != h {
			t.Errorf("headers[%d] = %q, want %q", i, headers[i], h)
		}
	}

	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0]["name"] != "Alice" {
		t.Errorf("rows[0][name] = %q, want %q", rows[0]["name"], "Alice")
	}
	if rows[1]["email"] != "bob@example.com" {
		t.Errorf("rows[1][email] = %q, want %q", rows[1]["email"], "bob@example.com")
	}
}

func TestTokenize_DropsBlankRows(t *testing.T) {
	data := []byte("name,email\nAlice,alice@example.com\n,\n\n   ,  \nBob,bob@example.com\n")

	_, rows, err := Tokenize("contacts.csv", int64(len(data)), data)
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("rows = %d, want 2 (blank rows dropped)", len(rows))
	}
}

func TestTokenize_ShortRowPadsEmpty(t *testing.T) {
	data := []byte("name,email,phone\nAlice,alice@example.com\n")

	headers, rows, err := Tokenize("contacts.csv", int64(len(data)), data)
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	if len(headers) != 3 {
		t.Fatalf("headers = %d, want 3", len(headers))
	}
	if rows[0]["phone"] != "" {
		t.Errorf("rows[0][phone] = %q, want empty", rows[0]["phone"])
	}
}

func TestTokenize_RejectsMaliciousContent(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"formula injection", "name,amount\n=cmd|'/c calc'!A1,100\n"},
		{"piped formula", "name,amount\n=|cmd payload,100\n"},
		{"at sum formula", "name,amount\n@SUM(1+1),100\n"},
		{"hyperlink formula", "name,amount\n=HYPERLINK(evil),100\n"},
		{"script tag", "name,notes\nAlice,<script>alert(1)</script>\n"},
		{"javascript protocol", "name,notes\nAlice,javascript:alert(1)\n"},
		{"null byte", "name,notes\nAlice,a\x00b\n"},
		{"pattern in header", "=cmd|,name\nx,Alice\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Tokenize("data.csv", int64(len(tt.data)), []byte(tt.data))
			var rejected *FileRejectedError
			if !errors.As(err, &rejected) {
				t.Fatalf("Tokenize() error = %v, want *FileRejectedError", err)
			}
		})
	}
}

func TestTokenize_EmptyFile(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"zero bytes", ""},
		{"whitespace only", "  \n\n  \n"},
		{"header only", "name,email\n"},
		{"header plus blank rows", "name,email\n,\n , \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Tokenize("x.csv", int64(len(tt.data)), []byte(tt.data))
			if !errors.Is(err, ErrEmptyFile) {
				t.Errorf("Tokenize() error = %v, want ErrEmptyFile", err)
			}
		})
	}
}

func TestTokenizeLine_QuotedFields(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{
			"quoted comma",
			`"Acme, Inc.",100`,
			[]string{"Acme, Inc.", "100"},
		},
		{
			"escaped quotes inside quoted field",
			`"Acme, Inc. ""East""",100`,
			[]string{`Acme, Inc. "East"`, "100"},
		},
		{
			"unquoted fields trimmed",
			` a , b ,c`,
			[]string{"a", "b", "c"},
		},
		{
			"empty fields preserved",
			`a,,c`,
			[]string{"a", "", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenizeLine(tt.line)
			if len(got) != len(tt.want) {
				t.Fatalf("tokenizeLine(%q) = %v, want %v", tt.line, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("field[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSanitizeCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain value", "Alice", "Alice"},
		{"strips html tags", "Ali<b>ce</b>", "Alice"},
		{"strips injection chars", `Ali;c\e`, "Alice"},
		{"strips event handler", "x onclick= y", "x  y"},
		{"trims whitespace", "  Alice  ", "Alice"},
		{"empty stays empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeCell(tt.input); got != tt.want {
				t.Errorf("sanitizeCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeCell_Truncates(t *testing.T) {
	long := strings.Repeat("a", MaxCellLength+500)
	got := sanitizeCell(long)
	if len(got) != MaxCellLength {
		t.Errorf("sanitizeCell() length = %d, want %d", len(got), MaxCellLength)
	}
}

func TestSanitizeUTF8_ReplacesInvalidBytes(t *testing.T) {
	// 0xFF is never valid in UTF-8
	data := []byte{'a', 0xFF, 'b'}
	got := string(sanitizeUTF8(data))
	if got != "a�b" {
		t.Errorf("sanitizeUTF8() = %q, want %q", got, "a�b")
	}
}
