package wise

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithdrawRunsFullFlow(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/profiles":
			w.Write([]byte(`[{"id":1,"type":"personal"},{"id":2,"type":"business"}]`))
		case "/v1/accounts":
			var payload map[string]any
			json.NewDecoder(r.Body).Decode(&payload)
			if payload["profile"] != float64(2) {
				t.Errorf("recipient profile = %v, want business profile 2", payload["profile"])
			}
			if payload["type"] != "aba" {
				t.Errorf("recipient type = %v, want aba for USD", payload["type"])
			}
			w.Write([]byte(`{"id":301}`))
		case "/v1/quotes":
			var payload map[string]any
			json.NewDecoder(r.Body).Decode(&payload)
			if payload["sourceAmount"] != float64(50) {
				t.Errorf("sourceAmount = %v, want 50", payload["sourceAmount"])
			}
			if payload["type"] != "BALANCE_PAYOUT" {
				t.Errorf("quote type = %v", payload["type"])
			}
			w.Write([]byte(`{"id":"q-1"}`))
		case "/v1/transfers":
			var payload map[string]any
			json.NewDecoder(r.Body).Decode(&payload)
			if payload["customerTransactionId"] == "" {
				t.Error("missing customerTransactionId")
			}
			w.Write([]byte(`{"id":901}`))
		case "/v1/transfers/901/payments":
			http.Error(w, `{"error":"not supported"}`, http.StatusBadRequest)
		case "/v3/transfers/901/payments":
			w.Write([]byte(`{"status":"COMPLETED"}`))
		default:
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient("token", srv.URL, nil)
	result, err := client.Withdraw(context.Background(), WithdrawalInput{
		Amount:         50,
		SourceCurrency: "usd",
		Reference:      "payout #42",
		BankAccount: BankAccount{
			AccountHolderName: "Jane Doe",
			Currency:          "USD",
			Transit:           "021000021",
			AccountNumber:     "123456789",
			Type:              "checking",
		},
	})
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if result.Status != "success" {
		t.Errorf("Status = %q", result.Status)
	}
	if result.FundResult == nil || result.FundResult["status"] != "COMPLETED" {
		t.Errorf("FundResult = %v, want v3 fallback result", result.FundResult)
	}

	want := []string{
		"GET /v1/profiles",
		"POST /v1/accounts",
		"POST /v1/quotes",
		"POST /v1/transfers",
		"POST /v1/transfers/901/payments",
		"POST /v3/transfers/901/payments",
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestWithdrawFundingFailureIsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/profiles":
			w.Write([]byte(`[{"id":1,"type":"business"}]`))
		case "/v1/accounts":
			w.Write([]byte(`{"id":1}`))
		case "/v1/quotes":
			w.Write([]byte(`{"id":"q"}`))
		case "/v1/transfers":
			w.Write([]byte(`{"id":7}`))
		default:
			http.Error(w, `{"error":"funding unavailable"}`, http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	client := NewClient("token", srv.URL, nil)
	result, err := client.Withdraw(context.Background(), WithdrawalInput{
		Amount:         10,
		SourceCurrency: "USD",
		Reference:      "ref",
		BankAccount: BankAccount{
			AccountHolderName: "Jane Doe",
			Currency:          "USD",
			Transit:           "021000021",
			AccountNumber:     "1234",
			Type:              "checking",
		},
	})
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if result.FundResult != nil {
		t.Errorf("FundResult = %v, want nil after funding failure", result.FundResult)
	}
	if result.Transfer["id"] != float64(7) {
		t.Errorf("Transfer id = %v", result.Transfer["id"])
	}
}

func TestWithdrawRejectsInvalidBankDetails(t *testing.T) {
	client := NewClient("token", "http://localhost:0", nil)
	_, err := client.Withdraw(context.Background(), WithdrawalInput{
		Amount:         10,
		SourceCurrency: "USD",
		BankAccount: BankAccount{
			AccountHolderName: "Jane Doe",
			Currency:          "USD",
			Transit:           "12",
			AccountNumber:     "1234",
			Type:              "checking",
		},
	})
	if err == nil {
		t.Fatal("expected validation error before any API call")
	}
}
