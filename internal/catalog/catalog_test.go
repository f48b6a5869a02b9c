package catalog

import "testing"

func TestParseKind(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    EntityKind
		wantErr bool
	}{
		{name: "contacts", input: "contacts", want: KindContacts},
		{name: "products", input: "products", want: KindProducts},
		{name: "invoices", input: "invoices", want: KindInvoices},
		{name: "expenses", input: "expenses", want: KindExpenses},
		{name: "unknown", input: "widgets", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "case sensitive", input: "Contacts", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKind(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseKind(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseKind(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseKind(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestKindRoundTrip(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(k.String())
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", k.String(), err)
		}
		if got != k {
			t.Errorf("round trip %v -> %q -> %v", k, k.String(), got)
		}
	}
}

func TestEveryKindHasEntry(t *testing.T) {
	for _, k := range Kinds() {
		e := Lookup(k)
		if e.Kind != k {
			t.Errorf("Lookup(%v).Kind = %v", k, e.Kind)
		}
		if len(e.Fields) == 0 {
			t.Errorf("Lookup(%v) has no fields", k)
		}
		if len(e.DuplicateKeys) == 0 {
			t.Errorf("Lookup(%v) has no duplicate keys", k)
		}
		if len(e.RequiredFields()) == 0 {
			t.Errorf("Lookup(%v) has no required fields", k)
		}
	}
}

func TestDuplicateKeysExistAsFields(t *testing.T) {
	for _, k := range Kinds() {
		e := Lookup(k)
		for _, key := range e.DuplicateKeys {
			if _, ok := e.Field(key); !ok {
				t.Errorf("%v duplicate key %q is not a catalog field", k, key)
			}
		}
	}
}

func TestRequiredFields(t *testing.T) {
	tests := []struct {
		kind EntityKind
		want []string
	}{
		{KindContacts, []string{"name"}},
		{KindProducts, []string{"name", "price"}},
		{KindInvoices, []string{"invoice_number", "customer_name", "total"}},
		{KindExpenses, []string{"date", "description", "amount"}},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			got := Lookup(tt.kind).RequiredFields()
			if len(got) != len(tt.want) {
				t.Fatalf("RequiredFields() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("RequiredFields()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
