package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testService(name string, srv *httptest.Server, parse func([]byte) (Result, error)) Service {
	return Service{
		Name:  name,
		URL:   func(ip string) string { return srv.URL + "/" + ip },
		Parse: parse,
	}
}

func ipapiStyleParse(body []byte) (Result, error) {
	return parseJSON(func(m map[string]any) Result {
		return Result{IP: str(m["ip"]), Country: str(m["country_name"])}
	})(body)
}

func TestLookupFirstUsableResultWins(t *testing.T) {
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ip":"1.2.3.4","country_name":"Unknown"}`))
	}))
	defer first.Close()
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ip":"1.2.3.4","country_name":"Germany"}`))
	}))
	defer second.Close()

	d := NewDetectorWithServices([]Service{
		testService("first", first, ipapiStyleParse),
		testService("second", second, ipapiStyleParse),
	}, nil)

	result, err := d.Lookup(context.Background(), "1.2.3.4")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if result.Country != "Germany" {
		t.Errorf("Country = %q, want Germany", result.Country)
	}
	if result.Source != "second" {
		t.Errorf("Source = %q, want second (Unknown country must be skipped)", result.Source)
	}
}

func TestLookupSkipsFailingProbes(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer broken.Close()
	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ip":"5.6.7.8","country_name":"Japan"}`))
	}))
	defer working.Close()

	d := NewDetectorWithServices([]Service{
		testService("broken", broken, ipapiStyleParse),
		testService("working", working, ipapiStyleParse),
	}, nil)

	result, err := d.Lookup(context.Background(), "5.6.7.8")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if result.IP != "5.6.7.8" || result.Country != "Japan" {
		t.Errorf("got %+v", result)
	}
}

func TestLookupAllProbesFail(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ip":"","country_name":""}`))
	}))
	defer broken.Close()

	d := NewDetectorWithServices([]Service{
		testService("broken", broken, ipapiStyleParse),
	}, nil)

	if _, err := d.Lookup(context.Background(), "9.9.9.9"); err == nil {
		t.Fatal("expected error when every probe fails")
	}
}

func TestDefaultServiceParsers(t *testing.T) {
	services := defaultServices()
	byName := map[string]Service{}
	for _, svc := range services {
		byName[svc.Name] = svc
	}

	tests := []struct {
		service string
		body    string
		wantIP  string
		wantCo  string
	}{
		{"ipapi.co", `{"ip":"1.1.1.1","country_name":"Australia","city":"Sydney"}`, "1.1.1.1", "Australia"},
		{"ip-api.com", `{"query":"2.2.2.2","country":"France","regionName":"IDF"}`, "2.2.2.2", "France"},
		{"ipinfo.io", `{"ip":"3.3.3.3","country":"US"}`, "3.3.3.3", "US"},
		{"ipify", `{"ip":"4.4.4.4"}`, "4.4.4.4", "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			svc, ok := byName[tt.service]
			if !ok {
				t.Fatalf("service %s not in default chain", tt.service)
			}
			result, err := svc.Parse([]byte(tt.body))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if result.IP != tt.wantIP {
				t.Errorf("IP = %q, want %q", result.IP, tt.wantIP)
			}
			if result.Country != tt.wantCo {
				t.Errorf("Country = %q, want %q", result.Country, tt.wantCo)
			}
		})
	}
}
