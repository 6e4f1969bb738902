package models

import "time"

type DeviceType string

const (
	DeviceMobile  DeviceType = "mobile"
	DeviceDesktop DeviceType = "desktop"
)

type OrderStatus string

const (
	OrderInitiated OrderStatus = "initiated"
	OrderCompleted OrderStatus = "completed"
)

type User struct {
	ID                   string
	Email                string
	Name                 string
	WalletBalance        float64
	StripeCustomerIDTest string
	StripeCustomerIDLive string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type ProxyClient struct {
	ClientID          string     `json:"client_id"`
	DeviceType        string     `json:"device_type"`
	ProxyType         string     `json:"proxy_type"`
	Country           string     `json:"country"`
	City              string     `json:"city,omitempty"`
	Platform          string     `json:"platform,omitempty"`
	OriginalIP        string     `json:"original_ip,omitempty"`
	IsChromeExtension bool       `json:"is_chrome_extension"`
	Capabilities      string     `json:"capabilities,omitempty"`
	DeviceFingerprint string     `json:"device_fingerprint,omitempty"`
	ConnectionQuality string     `json:"connection_quality,omitempty"`
	Online            bool       `json:"online"`
	LastSeen          *time.Time `json:"last_seen,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type Country struct {
	Code     string
	Name     string
	Status   string
	Provider string
	SyncedAt time.Time
}

type Region struct {
	Slug     string
	Name     string
	Status   string
	Provider string
	SyncedAt time.Time
}

type Plan struct {
	Slug             string  `json:"slug"`
	Name             string  `json:"name"`
	Price            float64 `json:"price"`
	OriginalPrice    float64 `json:"originalPrice"`
	OriginalCurrency string  `json:"originalCurrency"`
	Capacity         string  `json:"capacity"`
	Period           string  `json:"period,omitempty"`
	CountryCodes     string  `json:"countryCodes,omitempty"`
	Operator         string  `json:"operator,omitempty"`
	Provider         string  `json:"provider"`
	SyncedAt         time.Time
}

type Order struct {
	ID        string
	UserID    string
	PlanSlug  string
	Amount    float64
	Currency  string
	Status    OrderStatus
	EsimData  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Esim struct {
	ID               string
	UserID           string
	OrderID          string
	ICCID            string
	QRCode           string
	QRCodeImage      string
	ActivationCode   string
	SMDPAddress      string
	ConfirmationCode string
	Provider         string
	IsDemo           bool
	Status           string
	ExpiryDate       *time.Time
	CreatedAt        time.Time
}

type WalletTransaction struct {
	ID        int64
	UserID    string
	Type      string
	Amount    float64
	OrderID   string
	Status    string
	CreatedAt time.Time
}

type RegistrationCode struct {
	Code         string
	Email        string
	IsUsed       bool
	ExpiresAt    time.Time
	UsedByUserID string
	UsedByEmail  string
	UsedAt       *time.Time
	CreatedAt    time.Time
}

type SyncLog struct {
	ID              int64
	Provider        string
	Environment     string
	CountriesSynced int
	RegionsSynced   int
	PlansSynced     int
	Notes           string
	CreatedAt       time.Time
}

type ProviderConfig struct {
	Provider     string
	APIToken     string
	ClientSecret string
	Mode         string
	UpdatedAt    time.Time
}
