package wise

import "testing"

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain ascii", "John Smith", "John Smith"},
		{"accents stripped", "José Martín", "Jose Martin"},
		{"punctuation removed", "O'Brien-Smith, Jr.", "OBrienSmith Jr"},
		{"collapses whitespace", "  Anna   Maria  ", "Anna Maria"},
		{"non ascii dropped", "李小龙 Bruce Lee", "Bruce Lee"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeText(tt.in); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestBankAccountValidate(t *testing.T) {
	validCAD := BankAccount{
		AccountHolderName: "Jane Doe",
		Currency:          "CAD",
		Institution:       "004",
		Transit:           "12345",
		AccountNumber:     "1234567",
		Type:              "checking",
	}
	validUS := BankAccount{
		AccountHolderName: "Jane Doe",
		Currency:          "USD",
		Transit:           "021000021",
		AccountNumber:     "123456789",
		Type:              "checking",
	}

	tests := []struct {
		name    string
		mutate  func(a BankAccount) BankAccount
		base    BankAccount
		wantErr bool
	}{
		{"valid canadian", func(a BankAccount) BankAccount { return a }, validCAD, false},
		{"valid us", func(a BankAccount) BankAccount { return a }, validUS, false},
		{"cad institution too short", func(a BankAccount) BankAccount { a.Institution = "04"; return a }, validCAD, true},
		{"cad transit not digits", func(a BankAccount) BankAccount { a.Transit = "1234a"; return a }, validCAD, true},
		{"cad account too short", func(a BankAccount) BankAccount { a.AccountNumber = "123456"; return a }, validCAD, true},
		{"cad account too long", func(a BankAccount) BankAccount { a.AccountNumber = "1234567890123"; return a }, validCAD, true},
		{"us routing wrong length", func(a BankAccount) BankAccount { a.Transit = "12345678"; return a }, validUS, true},
		{"us account too short", func(a BankAccount) BankAccount { a.AccountNumber = "123"; return a }, validUS, true},
		{"us account too long", func(a BankAccount) BankAccount { a.AccountNumber = "123456789012345678"; return a }, validUS, true},
		{"missing holder name", func(a BankAccount) BankAccount { a.AccountHolderName = ""; return a }, validUS, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mutate(tt.base).Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
