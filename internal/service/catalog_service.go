package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roamjet/backend/internal/airalo"
	"github.com/roamjet/backend/internal/config"
	"github.com/roamjet/backend/internal/dataplans"
	"github.com/roamjet/backend/internal/models"
	"github.com/roamjet/backend/internal/repository"
)

// CatalogService syncs countries, regions and plans from the upstream eSIM
// providers into the local catalog.
type CatalogService struct {
	cfg     config.Config
	log     *slog.Logger
	catalog *repository.CatalogRepository
	configs *repository.ConfigRepository
	airalo  *airalo.Client

	// newDataPlans builds a provider client for a resolved token; swapped in
	// tests for an httptest-backed client.
	newDataPlans func(token string) *dataplans.Client
}

type SyncResult struct {
	Provider        string   `json:"provider"`
	Environment     string   `json:"environment"`
	CountriesSynced int      `json:"countries_synced"`
	RegionsSynced   int      `json:"regions_synced"`
	PlansSynced     int      `json:"plans_synced"`
	Errors          []string `json:"errors,omitempty"`
}

func NewCatalogService(cfg config.Config, log *slog.Logger, catalog *repository.CatalogRepository, configs *repository.ConfigRepository, airaloClient *airalo.Client) *CatalogService {
	return &CatalogService{
		cfg:     cfg,
		log:     log,
		catalog: catalog,
		configs: configs,
		airalo:  airaloClient,
		newDataPlans: func(token string) *dataplans.Client {
			return dataplans.NewClient(token, cfg.DataPlansBaseURL, cfg.RequestTimeout, log)
		},
	}
}

// resolveDataPlansToken prefers the stored provider config over the
// environment so operators can rotate tokens without a redeploy.
func (s *CatalogService) resolveDataPlansToken(ctx context.Context) (string, error) {
	stored, err := s.configs.Find(ctx, "dataplans")
	if err != nil {
		return "", err
	}
	if stored != nil && stored.APIToken != "" {
		return stored.APIToken, nil
	}
	if s.cfg.DataPlansAPIToken != "" {
		return s.cfg.DataPlansAPIToken, nil
	}
	return "", fmt.Errorf("no dataplans api token configured")
}

// SyncCountriesFromDataPlans syncs only the country list.
func (s *CatalogService) SyncCountriesFromDataPlans(ctx context.Context) (*SyncResult, error) {
	return s.syncDataPlans(ctx, false)
}

// SyncAllFromDataPlans syncs countries, regions and plans. A failure in one
// category is recorded and the remaining categories still run.
func (s *CatalogService) SyncAllFromDataPlans(ctx context.Context) (*SyncResult, error) {
	return s.syncDataPlans(ctx, true)
}

func (s *CatalogService) syncDataPlans(ctx context.Context, full bool) (*SyncResult, error) {
	token, err := s.resolveDataPlansToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve dataplans token: %w", err)
	}
	client := s.newDataPlans(token)

	result := &SyncResult{Provider: "dataplans", Environment: s.cfg.DataPlansEnvironment}

	if raw, err := client.Countries(ctx); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("countries: %v", err))
		s.log.Error("sync countries failed", "provider", "dataplans", "err", err)
	} else {
		countries := normalizeCountries(raw, "dataplans")
		n, err := s.catalog.UpsertCountries(ctx, countries)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("countries: %v", err))
		}
		result.CountriesSynced = n
	}

	if full {
		if raw, err := client.Regions(ctx); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("regions: %v", err))
			s.log.Error("sync regions failed", "provider", "dataplans", "err", err)
		} else {
			regions := normalizeRegions(raw, "dataplans")
			n, err := s.catalog.UpsertRegions(ctx, regions)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("regions: %v", err))
			}
			result.RegionsSynced = n
		}

		if raw, err := client.Plans(ctx); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("plans: %v", err))
			s.log.Error("sync plans failed", "provider", "dataplans", "err", err)
		} else {
			plans := normalizePlans(raw, "dataplans")
			n, err := s.catalog.UpsertPlans(ctx, plans)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("plans: %v", err))
			}
			result.PlansSynced = n
		}
	}

	s.recordSync(ctx, result)
	return result, nil
}

// SyncCountriesFromAiralo syncs only the Airalo country list.
func (s *CatalogService) SyncCountriesFromAiralo(ctx context.Context) (*SyncResult, error) {
	return s.syncAiralo(ctx, false)
}

// SyncAllFromAiralo syncs countries, regions and packages from Airalo into
// the same catalog tables, tagged with provider "airalo".
func (s *CatalogService) SyncAllFromAiralo(ctx context.Context) (*SyncResult, error) {
	return s.syncAiralo(ctx, true)
}

func (s *CatalogService) syncAiralo(ctx context.Context, full bool) (*SyncResult, error) {
	result := &SyncResult{Provider: "airalo", Environment: s.cfg.DataPlansEnvironment}

	if raw, err := s.airalo.Countries(ctx); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("countries: %v", err))
		s.log.Error("sync countries failed", "provider", "airalo", "err", err)
	} else {
		countries := normalizeCountries(raw, "airalo")
		n, err := s.catalog.UpsertCountries(ctx, countries)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("countries: %v", err))
		}
		result.CountriesSynced = n
	}

	if full {
		if raw, err := s.airalo.Regions(ctx); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("regions: %v", err))
			s.log.Error("sync regions failed", "provider", "airalo", "err", err)
		} else {
			regions := normalizeRegions(raw, "airalo")
			n, err := s.catalog.UpsertRegions(ctx, regions)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("regions: %v", err))
			}
			result.RegionsSynced = n
		}

		if raw, err := s.airalo.Packages(ctx); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("plans: %v", err))
			s.log.Error("sync packages failed", "provider", "airalo", "err", err)
		} else {
			plans := normalizePlans(raw, "airalo")
			n, err := s.catalog.UpsertPlans(ctx, plans)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("plans: %v", err))
			}
			result.PlansSynced = n
		}
	}

	s.recordSync(ctx, result)
	return result, nil
}

func (s *CatalogService) recordSync(ctx context.Context, result *SyncResult) {
	entry := &models.SyncLog{
		Provider:        result.Provider,
		Environment:     result.Environment,
		CountriesSynced: result.CountriesSynced,
		RegionsSynced:   result.RegionsSynced,
		PlansSynced:     result.PlansSynced,
		Notes:           strings.Join(result.Errors, "; "),
	}
	if err := s.catalog.SaveSyncLog(ctx, entry); err != nil {
		s.log.Error("save sync log", "provider", result.Provider, "err", err)
	}
}

// FetchPlans lists the synced catalog.
func (s *CatalogService) FetchPlans(ctx context.Context) ([]models.Plan, error) {
	return s.catalog.ListPlans(ctx)
}

// SaveAiraloClientSecret stores a rotated secret and applies it to the live
// client without a restart.
func (s *CatalogService) SaveAiraloClientSecret(ctx context.Context, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("client secret is required")
	}
	if err := s.configs.Save(ctx, &models.ProviderConfig{
		Provider:     "airalo",
		ClientSecret: secret,
		Mode:         s.cfg.DataPlansEnvironment,
	}); err != nil {
		return err
	}
	s.airalo.SetClientSecret(secret)
	return nil
}

// normalizeCountries keeps entries with both a code and a name; anything else
// is unusable downstream and skipped.
func normalizeCountries(raw []map[string]any, provider string) []models.Country {
	countries := make([]models.Country, 0, len(raw))
	for _, entry := range raw {
		code := strings.ToUpper(firstString(entry, "countryCode", "country_code", "code"))
		name := firstString(entry, "countryName", "name", "title")
		if code == "" || name == "" {
			continue
		}
		countries = append(countries, models.Country{
			Code:     code,
			Name:     name,
			Status:   "active",
			Provider: provider,
		})
	}
	return countries
}

func normalizeRegions(raw []map[string]any, provider string) []models.Region {
	regions := make([]models.Region, 0, len(raw))
	for _, entry := range raw {
		slug := firstString(entry, "slug", "regionSlug", "region_slug")
		name := firstString(entry, "regionName", "name", "title")
		if slug == "" || name == "" {
			continue
		}
		regions = append(regions, models.Region{
			Slug:     strings.ToLower(slug),
			Name:     name,
			Status:   "active",
			Provider: provider,
		})
	}
	return regions
}

// normalizePlans applies the price/currency extraction chains and converts
// every price to USD, keeping the original amount and currency for audit.
func normalizePlans(raw []map[string]any, provider string) []models.Plan {
	plans := make([]models.Plan, 0, len(raw))
	for _, entry := range raw {
		slug := firstString(entry, "slug", "planSlug", "plan_slug", "id")
		name := firstString(entry, "name", "planName", "title")
		if slug == "" || name == "" {
			continue
		}

		price, ok := dataplans.ExtractPrice(entry)
		if !ok {
			continue
		}
		currency := dataplans.ExtractCurrency(entry)

		plans = append(plans, models.Plan{
			Slug:             slug,
			Name:             name,
			Price:            dataplans.ConvertToUSD(price, currency),
			OriginalPrice:    price,
			OriginalCurrency: currency,
			Capacity:         dataplans.FormatCapacity(entry["capacity"]),
			Period:           firstString(entry, "period", "validity", "day"),
			CountryCodes:     joinCountryCodes(entry),
			Operator:         firstString(entry, "operator", "operatorName"),
			Provider:         provider,
		})
	}
	return plans
}

func joinCountryCodes(entry map[string]any) string {
	for _, field := range []string{"countryCodes", "country_codes", "countries"} {
		list, ok := entry[field].([]any)
		if !ok {
			continue
		}
		codes := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				codes = append(codes, strings.ToUpper(s))
			}
		}
		if len(codes) > 0 {
			return strings.Join(codes, ",")
		}
	}
	return ""
}

func firstString(entry map[string]any, fields ...string) string {
	for _, field := range fields {
		switch v := entry[field].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}
