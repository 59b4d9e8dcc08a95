package config

import "time"

type Config struct {
	Web      Web
	Cors     Cors
	Session  Session
	DB       DB
	Storage  Storage
	Backend  Backend
	Stripe   Stripe
	Paypal   Paypal
	Redis    Redis
	Kafka    Kafka
	Checkout Checkout
	Rate     Rate
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:8000"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:40s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

type Cors struct {
	Origins []string `conf:"default:http://localhost:3000"`
}

type Session struct {
	Lifetime   time.Duration `conf:"default:720h"`
	CookieName string        `conf:"default:checkout_session"`
	Secure     bool          `conf:"default:false"`
}

type DB struct {
	User         string `conf:"default:postgres"`
	Password     string `conf:"default:postgres,mask"`
	Host         string `conf:"default:localhost:5432"`
	Name         string `conf:"default:checkout"`
	MaxIdleConns int    `conf:"default:2"`
	MaxOpenConns int    `conf:"default:10"`
	DisableTLS   bool   `conf:"default:true"`
	Migrate      bool   `conf:"default:true"`
}

// Storage picks where bindings and orders live: memory or postgres.
type Storage struct {
	Mode string `conf:"default:memory"`
}

// Backend picks the commerce backend: memory runs the in-process catalog,
// http talks to URL.
type Backend struct {
	Mode             string        `conf:"default:memory"`
	URL              string        `conf:"default:http://localhost:9000/store"`
	PublishableKey   string        `conf:"mask"`
	Timeout          time.Duration `conf:"default:10s"`
	FailureThreshold uint32        `conf:"default:5"`
	OpenTimeout      time.Duration `conf:"default:30s"`
}

type Stripe struct {
	APISecret     string `conf:"mask"`
	WebhookSecret string `conf:"mask"`
	URL           string
	PaymentMethod string
}

type Paypal struct {
	ClientID  string
	Secret    string `conf:"mask"`
	URL       string `conf:"default:https://api-m.sandbox.paypal.com"`
	ReturnURL string `conf:"default:http://localhost:3000/checkout?step=review"`
	CancelURL string `conf:"default:http://localhost:3000/checkout?step=payment"`
}

// Redis backs the shared lock and the cache invalidation sink when Addr is
// set; otherwise both stay in process.
type Redis struct {
	Addr     string
	Password string `conf:"mask"`
	DB       int    `conf:"default:0"`
	Channel  string `conf:"default:cache-invalidation"`
}

type Kafka struct {
	Brokers []string
	Topic   string `conf:"default:cache-invalidation"`
}

type Checkout struct {
	DefaultProvider     string        `conf:"default:manual"`
	MaxRecreate         int           `conf:"default:3"`
	LockTTL             time.Duration `conf:"default:30s"`
	RemoveRetries       uint64        `conf:"default:4"`
	RemoveInterval      time.Duration `conf:"default:100ms"`
	InvalidationTimeout time.Duration `conf:"default:5s"`
}

type Rate struct {
	Burst    int           `conf:"default:20"`
	Interval time.Duration `conf:"default:100ms"`
	Expiry   time.Duration `conf:"default:10m"`
}
