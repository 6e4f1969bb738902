package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/roamjet/backend/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDemoOrderResult(t *testing.T) {
	result := demoOrderResult("provider timeout")

	if result.Provider != "mock" || !result.IsDemo {
		t.Errorf("demo result must carry provider=mock and isDemo=true, got %+v", result)
	}
	if !strings.HasPrefix(result.ICCID, "89010") {
		t.Errorf("ICCID = %q, want 89010 prefix", result.ICCID)
	}
	wantQR := "LPA:1$" + mockEsimHost + "$" + result.ICCID
	if result.QRCode != wantQR {
		t.Errorf("QRCode = %q, want %q", result.QRCode, wantQR)
	}
	if !strings.Contains(result.Note, "provider timeout") {
		t.Errorf("Note = %q, want the failure reason included", result.Note)
	}
}

func TestMockICCID(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	got := mockICCID(now)
	if !strings.HasPrefix(got, "89010") {
		t.Fatalf("mockICCID = %q, want 89010 prefix", got)
	}
	if len(got) != len("89010")+13 {
		t.Errorf("mockICCID = %q, want millisecond timestamp suffix", got)
	}
}

func TestOrderArtifacts(t *testing.T) {
	s := &EsimService{log: testLogger()}

	t.Run("stored artifacts pass through", func(t *testing.T) {
		stored := OrderResult{ICCID: "8901000", QRCode: "LPA:1$real$8901000", Provider: "dataplans"}
		data, _ := json.Marshal(stored)
		got := s.orderArtifacts(&models.Order{ID: "o1", EsimData: string(data)})
		if got.ICCID != "8901000" || got.QRCode != "LPA:1$real$8901000" {
			t.Errorf("artifacts = %+v, want stored values", got)
		}
	})

	t.Run("missing qr string is synthesized", func(t *testing.T) {
		stored := OrderResult{ICCID: "8901000", Provider: "dataplans"}
		data, _ := json.Marshal(stored)
		got := s.orderArtifacts(&models.Order{ID: "o1", EsimData: string(data)})
		if got.QRCode != "LPA:1$"+mockEsimHost+"$8901000" {
			t.Errorf("QRCode = %q, want synthesized LPA payload", got.QRCode)
		}
	})

	t.Run("empty order data produces placeholders", func(t *testing.T) {
		got := s.orderArtifacts(&models.Order{ID: "o1"})
		if got.ICCID == "" || got.QRCode == "" || got.Provider != "dataplans" {
			t.Errorf("artifacts = %+v, want generated placeholders", got)
		}
	})
}

func TestRenderQRImageWithoutUploader(t *testing.T) {
	s := &EsimService{log: testLogger()}
	got := s.renderQRImage(context.Background(), "LPA:1$host$8901000")
	if !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Errorf("renderQRImage = %.40q, want inline data url", got)
	}
}

func TestParseExpiry(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *time.Time
	}{
		{"rfc3339", "2026-06-01T10:00:00Z", timePtr(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))},
		{"datetime", "2026-06-01 10:00:00", timePtr(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))},
		{"date only", "2026-06-01", timePtr(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))},
		{"empty", "", nil},
		{"garbage", "next tuesday", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseExpiry(tt.raw)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("parseExpiry(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			if got != nil && !got.Equal(*tt.want) {
				t.Errorf("parseExpiry(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }
