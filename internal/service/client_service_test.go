package service

import (
	"reflect"
	"testing"
	"time"

	"github.com/roamjet/backend/internal/geoip"
	"github.com/roamjet/backend/internal/models"
)

func TestMergeClients(t *testing.T) {
	existing := models.ProxyClient{
		ClientID:          "c1",
		DeviceType:        "mobile",
		Country:           "Germany",
		City:              "Berlin",
		Platform:          "android",
		OriginalIP:        "1.2.3.4",
		IsChromeExtension: true,
		ConnectionQuality: "good",
	}

	t.Run("empty incoming fields keep stored values", func(t *testing.T) {
		merged := mergeClients(existing, models.ProxyClient{ClientID: "c1"})
		if merged.Country != "Germany" || merged.City != "Berlin" || merged.OriginalIP != "1.2.3.4" {
			t.Errorf("merge dropped stored fields: %+v", merged)
		}
		if !merged.IsChromeExtension {
			t.Error("chrome extension flag must stay set")
		}
	})

	t.Run("incoming fields win when present", func(t *testing.T) {
		merged := mergeClients(existing, models.ProxyClient{ClientID: "c1", Country: "France", Platform: "ios"})
		if merged.Country != "France" {
			t.Errorf("Country = %q, want France", merged.Country)
		}
		if merged.Platform != "ios" {
			t.Errorf("Platform = %q, want ios", merged.Platform)
		}
	})

	t.Run("unknown country does not overwrite", func(t *testing.T) {
		merged := mergeClients(existing, models.ProxyClient{ClientID: "c1", Country: "Unknown"})
		if merged.Country != "Germany" {
			t.Errorf("Country = %q, want Germany", merged.Country)
		}
	})
}

func TestApplyDevicePolicy(t *testing.T) {
	tests := []struct {
		name string
		in   models.ProxyClient
		want string
	}{
		{"mobile stays mobile", models.ProxyClient{DeviceType: "mobile"}, "mobile"},
		{"desktop stays desktop", models.ProxyClient{DeviceType: "desktop"}, "desktop"},
		{"chrome extension forces desktop", models.ProxyClient{DeviceType: "mobile", IsChromeExtension: true}, "desktop"},
		{"invalid type becomes desktop", models.ProxyClient{DeviceType: "toaster"}, "desktop"},
		{"empty type becomes desktop", models.ProxyClient{}, "desktop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applyDevicePolicy(&tt.in)
			if tt.in.DeviceType != tt.want {
				t.Errorf("DeviceType = %q, want %q", tt.in.DeviceType, tt.want)
			}
			if tt.in.ProxyType != "socks5" {
				t.Errorf("ProxyType = %q, want socks5", tt.in.ProxyType)
			}
		})
	}
}

func TestNeedsGeoDetection(t *testing.T) {
	tests := []struct {
		name   string
		client models.ProxyClient
		want   bool
	}{
		{"missing ip", models.ProxyClient{Country: "Germany"}, true},
		{"missing country", models.ProxyClient{OriginalIP: "1.2.3.4"}, true},
		{"unknown country", models.ProxyClient{OriginalIP: "1.2.3.4", Country: "unknown"}, true},
		{"complete", models.ProxyClient{OriginalIP: "1.2.3.4", Country: "Germany"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := needsGeoDetection(tt.client); got != tt.want {
				t.Errorf("needsGeoDetection() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyGeoResult(t *testing.T) {
	lookup := &geoip.Result{IP: "5.6.7.8", Country: "Netherlands", City: "Amsterdam"}

	t.Run("fills missing fields", func(t *testing.T) {
		client := models.ProxyClient{ClientID: "c1"}
		applyGeoResult(&client, lookup)
		if client.OriginalIP != "5.6.7.8" || client.Country != "Netherlands" || client.City != "Amsterdam" {
			t.Errorf("blank fields not filled: %+v", client)
		}
	})

	t.Run("keeps supplied country and city", func(t *testing.T) {
		client := models.ProxyClient{ClientID: "c1", Country: "Germany", City: "Berlin"}
		applyGeoResult(&client, lookup)
		if client.Country != "Germany" || client.City != "Berlin" {
			t.Errorf("supplied fields were overwritten: %+v", client)
		}
		if client.OriginalIP != "5.6.7.8" {
			t.Errorf("OriginalIP = %q, want the detected ip", client.OriginalIP)
		}
	})

	t.Run("replaces unknown country", func(t *testing.T) {
		client := models.ProxyClient{ClientID: "c1", Country: "unknown"}
		applyGeoResult(&client, lookup)
		if client.Country != "Netherlands" {
			t.Errorf("Country = %q, want Netherlands", client.Country)
		}
	})
}

func TestDuplicateClientIDs(t *testing.T) {
	at := func(h int) *time.Time {
		ts := time.Date(2026, 1, 1, h, 0, 0, 0, time.UTC)
		return &ts
	}

	clients := []*models.ProxyClient{
		{ClientID: "old", OriginalIP: "1.1.1.1", LastSeen: at(1)},
		{ClientID: "newest", OriginalIP: "1.1.1.1", LastSeen: at(9)},
		{ClientID: "middle", OriginalIP: "1.1.1.1", LastSeen: at(5)},
		{ClientID: "solo", OriginalIP: "2.2.2.2", LastSeen: at(3)},
		{ClientID: "no-ip"},
	}

	got := duplicateClientIDs(clients)
	want := []string{"middle", "old"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("duplicateClientIDs() = %v, want %v", got, want)
	}
}

func TestDuplicateClientIDsFallsBackToCreatedAt(t *testing.T) {
	seen := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	clients := []*models.ProxyClient{
		{ClientID: "created-late", OriginalIP: "1.1.1.1", CreatedAt: seen.Add(time.Hour)},
		{ClientID: "seen-early", OriginalIP: "1.1.1.1", LastSeen: &seen},
	}
	got := duplicateClientIDs(clients)
	if !reflect.DeepEqual(got, []string{"seen-early"}) {
		t.Errorf("duplicateClientIDs() = %v, want [seen-early]", got)
	}
}

func TestBuildAnalytics(t *testing.T) {
	clients := []*models.ProxyClient{
		{ClientID: "a", Country: "Germany", DeviceType: "desktop", Online: true, ConnectionQuality: "good"},
		{ClientID: "b", Country: "Germany", DeviceType: "desktop", Online: false},
		{ClientID: "c", Country: "France", DeviceType: "mobile", Online: true, ConnectionQuality: "poor"},
	}

	a := buildAnalytics(clients)
	if a.TotalClients != 3 || a.OnlineCount != 2 {
		t.Errorf("totals = %d/%d, want 3/2", a.TotalClients, a.OnlineCount)
	}
	if a.ByDeviceType["desktop"] != 2 || a.ByCountry["Germany"] != 2 || a.ByQuality["good"] != 1 {
		t.Errorf("unexpected breakdowns: %+v", a)
	}
	if a.Clients[1].DisplayName != "Germany Desktop #2" {
		t.Errorf("DisplayName = %q, want Germany Desktop #2", a.Clients[1].DisplayName)
	}
	if a.Clients[2].DisplayName != "France Mobile #1" {
		t.Errorf("DisplayName = %q, want France Mobile #1", a.Clients[2].DisplayName)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		country, device string
		n               int
		want            string
	}{
		{"Germany", "desktop", 1, "Germany Desktop #1"},
		{"", "mobile", 2, "Unknown Mobile #2"},
		{"unknown", "desktop", 3, "Unknown Desktop #3"},
		{"France", "", 1, "France Device #1"},
	}
	for _, tt := range tests {
		if got := displayName(tt.country, tt.device, tt.n); got != tt.want {
			t.Errorf("displayName(%q, %q, %d) = %q, want %q", tt.country, tt.device, tt.n, got, tt.want)
		}
	}
}
