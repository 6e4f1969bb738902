package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/roamjet/backend/internal/apierr"
	"github.com/roamjet/backend/internal/geoip"
	"github.com/roamjet/backend/internal/models"
	"github.com/roamjet/backend/internal/repository"
)

// ClientService maintains the SOCKS5 proxy client registry.
type ClientService struct {
	log      *slog.Logger
	clients  *repository.ClientRepository
	detector *geoip.Detector
}

func NewClientService(log *slog.Logger, clients *repository.ClientRepository, detector *geoip.Detector) *ClientService {
	return &ClientService{log: log, clients: clients, detector: detector}
}

// Register upserts a proxy client. Re-registration merges with the stored
// record instead of overwriting it: fields the caller omitted keep their
// previous values.
func (s *ClientService) Register(ctx context.Context, incoming models.ProxyClient, callerIP string) (*models.ProxyClient, error) {
	if strings.TrimSpace(incoming.ClientID) == "" {
		return nil, apierr.InvalidArgument("client_id is required")
	}

	existing, err := s.clients.FindByID(ctx, incoming.ClientID)
	if err != nil {
		return nil, apierr.Internal("look up client", err)
	}

	var client models.ProxyClient
	if existing != nil {
		client = mergeClients(*existing, incoming)
	} else {
		client = incoming
	}
	applyDevicePolicy(&client)

	if needsGeoDetection(client) {
		if result, err := s.detector.Lookup(ctx, callerIP); err == nil {
			applyGeoResult(&client, result)
		} else {
			s.log.Warn("geo detection failed", "client_id", client.ClientID, "err", err)
		}
	}
	if client.Country == "" {
		client.Country = "unknown"
	}

	client.Online = true
	if err := s.clients.Save(ctx, &client); err != nil {
		return nil, apierr.Internal("save client", err)
	}
	return &client, nil
}

// mergeClients lays the incoming payload over the stored record, with empty
// incoming fields deferring to stored values.
func mergeClients(existing, incoming models.ProxyClient) models.ProxyClient {
	merged := existing
	if incoming.DeviceType != "" {
		merged.DeviceType = incoming.DeviceType
	}
	if incoming.Country != "" && !strings.EqualFold(incoming.Country, "unknown") {
		merged.Country = incoming.Country
	}
	if incoming.City != "" {
		merged.City = incoming.City
	}
	if incoming.Platform != "" {
		merged.Platform = incoming.Platform
	}
	if incoming.OriginalIP != "" {
		merged.OriginalIP = incoming.OriginalIP
	}
	if incoming.Capabilities != "" {
		merged.Capabilities = incoming.Capabilities
	}
	if incoming.DeviceFingerprint != "" {
		merged.DeviceFingerprint = incoming.DeviceFingerprint
	}
	if incoming.ConnectionQuality != "" {
		merged.ConnectionQuality = incoming.ConnectionQuality
	}
	merged.IsChromeExtension = existing.IsChromeExtension || incoming.IsChromeExtension
	return merged
}

// applyDevicePolicy normalizes the registry invariants: every client is a
// SOCKS5 proxy, and Chrome extension clients are always desktops no matter
// what the payload claims.
func applyDevicePolicy(client *models.ProxyClient) {
	client.ProxyType = "socks5"
	if client.IsChromeExtension {
		client.DeviceType = string(models.DeviceDesktop)
	}
	if client.DeviceType != string(models.DeviceMobile) && client.DeviceType != string(models.DeviceDesktop) {
		client.DeviceType = string(models.DeviceDesktop)
	}
}

func needsGeoDetection(client models.ProxyClient) bool {
	return client.OriginalIP == "" || client.Country == "" || strings.EqualFold(client.Country, "unknown")
}

// applyGeoResult fills in only the fields the caller left blank; a supplied
// country or city is never replaced by the lookup.
func applyGeoResult(client *models.ProxyClient, result *geoip.Result) {
	if client.OriginalIP == "" {
		client.OriginalIP = result.IP
	}
	if client.Country == "" || strings.EqualFold(client.Country, "unknown") {
		client.Country = result.Country
	}
	if client.City == "" {
		client.City = result.City
	}
}

func (s *ClientService) UpdateStatus(ctx context.Context, clientID string, online bool) error {
	if err := s.clients.UpdateStatus(ctx, clientID, online); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apierr.NotFound("client not found")
		}
		return apierr.Internal("update client status", err)
	}
	return nil
}

func (s *ClientService) Get(ctx context.Context, clientID string) (*models.ProxyClient, error) {
	client, err := s.clients.FindByID(ctx, clientID)
	if err != nil {
		return nil, apierr.Internal("look up client", err)
	}
	if client == nil {
		return nil, apierr.NotFound("client not found")
	}
	return client, nil
}

func (s *ClientService) List(ctx context.Context) ([]*models.ProxyClient, error) {
	clients, err := s.clients.List(ctx)
	if err != nil {
		return nil, apierr.Internal("list clients", err)
	}
	return clients, nil
}

func (s *ClientService) Delete(ctx context.Context, clientID string) error {
	if err := s.clients.Delete(ctx, clientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apierr.NotFound("client not found")
		}
		return apierr.Internal("delete client", err)
	}
	return nil
}

// CleanupDuplicates removes Chrome extension clients that share an IP with a
// more recently seen record.
func (s *ClientService) CleanupDuplicates(ctx context.Context) (int, error) {
	clients, err := s.clients.ListChromeExtension(ctx)
	if err != nil {
		return 0, apierr.Internal("list chrome extension clients", err)
	}

	removed := 0
	for _, id := range duplicateClientIDs(clients) {
		if err := s.clients.Delete(ctx, id); err != nil {
			s.log.Error("delete duplicate client", "client_id", id, "err", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// duplicateClientIDs groups clients by original IP and returns every id
// except the most recently seen per group.
func duplicateClientIDs(clients []*models.ProxyClient) []string {
	byIP := map[string][]*models.ProxyClient{}
	for _, c := range clients {
		if c.OriginalIP == "" {
			continue
		}
		byIP[c.OriginalIP] = append(byIP[c.OriginalIP], c)
	}

	var remove []string
	for _, group := range byIP {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			return lastSeen(group[i]).After(lastSeen(group[j]))
		})
		for _, c := range group[1:] {
			remove = append(remove, c.ClientID)
		}
	}
	sort.Strings(remove)
	return remove
}

func lastSeen(c *models.ProxyClient) time.Time {
	if c.LastSeen != nil {
		return *c.LastSeen
	}
	return c.CreatedAt
}

// Analytics aggregates the registry for the dashboard.
type Analytics struct {
	TotalClients int               `json:"total_clients"`
	OnlineCount  int               `json:"online_count"`
	ByDeviceType map[string]int    `json:"by_device_type"`
	ByCountry    map[string]int    `json:"by_country"`
	ByQuality    map[string]int    `json:"by_connection_quality"`
	Clients      []AnalyticsClient `json:"clients"`
}

type AnalyticsClient struct {
	ClientID    string `json:"client_id"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country"`
	DeviceType  string `json:"device_type"`
	Online      bool   `json:"online"`
}

func (s *ClientService) Analytics(ctx context.Context) (*Analytics, error) {
	clients, err := s.clients.List(ctx)
	if err != nil {
		return nil, apierr.Internal("list clients", err)
	}
	return buildAnalytics(clients), nil
}

func buildAnalytics(clients []*models.ProxyClient) *Analytics {
	a := &Analytics{
		TotalClients: len(clients),
		ByDeviceType: map[string]int{},
		ByCountry:    map[string]int{},
		ByQuality:    map[string]int{},
	}

	counters := map[string]int{}
	for _, c := range clients {
		if c.Online {
			a.OnlineCount++
		}
		a.ByDeviceType[c.DeviceType]++
		a.ByCountry[c.Country]++
		if c.ConnectionQuality != "" {
			a.ByQuality[c.ConnectionQuality]++
		}

		key := c.Country + "|" + c.DeviceType
		counters[key]++
		a.Clients = append(a.Clients, AnalyticsClient{
			ClientID:    c.ClientID,
			DisplayName: displayName(c.Country, c.DeviceType, counters[key]),
			Country:     c.Country,
			DeviceType:  c.DeviceType,
			Online:      c.Online,
		})
	}
	return a
}

// displayName produces names like "Germany Desktop #2".
func displayName(country, deviceType string, n int) string {
	if country == "" || strings.EqualFold(country, "unknown") {
		country = "Unknown"
	}
	device := "Device"
	if deviceType != "" {
		device = strings.ToUpper(deviceType[:1]) + deviceType[1:]
	}
	return fmt.Sprintf("%s %s #%d", country, device, n)
}

// NetworkInfo resolves the caller's public IP and location.
func (s *ClientService) NetworkInfo(ctx context.Context, callerIP string) (*geoip.Result, error) {
	result, err := s.detector.Lookup(ctx, callerIP)
	if err != nil {
		return nil, apierr.Internal("geolocation lookup failed", err)
	}
	return result, nil
}
