// Package geoip resolves the public IP and country of a caller by probing a
// chain of free geolocation services. No single service is reliable enough on
// its own, so the first usable answer wins.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const probeTimeout = 3 * time.Second

type Result struct {
	IP      string `json:"ip"`
	Country string `json:"country"`
	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Service describes one geolocation probe: how to build its URL for a target
// IP (empty IP means "look up the caller itself") and how to read its response.
type Service struct {
	Name  string
	URL   func(ip string) string
	Parse func(body []byte) (Result, error)
}

type Detector struct {
	services   []Service
	httpClient *http.Client
	log        *slog.Logger
}

func NewDetector(log *slog.Logger) *Detector {
	return NewDetectorWithServices(defaultServices(), log)
}

func NewDetectorWithServices(services []Service, log *slog.Logger) *Detector {
	return &Detector{
		services: services,
		httpClient: &http.Client{
			Timeout: probeTimeout,
		},
		log: log,
	}
}

// Lookup probes each service in order and returns the first result carrying a
// non-empty IP and a known country. Probe failures are skipped, not surfaced.
func (d *Detector) Lookup(ctx context.Context, ip string) (*Result, error) {
	for _, svc := range d.services {
		result, err := d.probe(ctx, svc, ip)
		if err != nil {
			if d.log != nil {
				d.log.Debug("geo probe failed", "service", svc.Name, "err", err)
			}
			continue
		}
		if result.IP == "" || result.Country == "" || result.Country == "Unknown" {
			continue
		}
		result.Source = svc.Name
		return &result, nil
	}
	return nil, fmt.Errorf("all geolocation probes failed for ip=%q", ip)
}

func (d *Detector) probe(ctx context.Context, svc Service, ip string) (Result, error) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, svc.URL(ip), nil)
	if err != nil {
		return Result{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("probe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("probe status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read probe response: %w", err)
	}

	return svc.Parse(body)
}

func defaultServices() []Service {
	return []Service{
		{
			Name: "ipapi.co",
			URL:  func(ip string) string { return "https://ipapi.co/" + ip + "/json/" },
			Parse: parseJSON(func(m map[string]any) Result {
				return Result{
					IP:      str(m["ip"]),
					Country: str(m["country_name"]),
					City:    str(m["city"]),
					Region:  str(m["region"]),
				}
			}),
		},
		{
			Name: "ip-api.com",
			URL:  func(ip string) string { return "http://ip-api.com/json/" + ip },
			Parse: parseJSON(func(m map[string]any) Result {
				return Result{
					IP:      str(m["query"]),
					Country: str(m["country"]),
					City:    str(m["city"]),
					Region:  str(m["regionName"]),
				}
			}),
		},
		{
			Name: "ipinfo.io",
			URL:  func(ip string) string { return "https://ipinfo.io/" + ip + "/json" },
			Parse: parseJSON(func(m map[string]any) Result {
				return Result{
					IP:      str(m["ip"]),
					Country: str(m["country"]),
					City:    str(m["city"]),
					Region:  str(m["region"]),
				}
			}),
		},
		{
			Name: "ipify",
			URL:  func(ip string) string { return "https://api.ipify.org?format=json" },
			Parse: parseJSON(func(m map[string]any) Result {
				// IP only; country stays Unknown so the chain continues.
				return Result{IP: str(m["ip"]), Country: "Unknown"}
			}),
		},
		{
			Name: "ipapi.co-self",
			URL:  func(ip string) string { return "https://ipapi.co/json/" },
			Parse: parseJSON(func(m map[string]any) Result {
				return Result{
					IP:      str(m["ip"]),
					Country: str(m["country_name"]),
					City:    str(m["city"]),
					Region:  str(m["region"]),
				}
			}),
		},
	}
}

func parseJSON(extract func(map[string]any) Result) func([]byte) (Result, error) {
	return func(body []byte) (Result, error) {
		var m map[string]any
		if err := json.Unmarshal(body, &m); err != nil {
			return Result{}, fmt.Errorf("decode probe response: %w", err)
		}
		return extract(m), nil
	}
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
