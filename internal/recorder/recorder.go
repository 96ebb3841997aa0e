package recorder

import (
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"papertrade/internal/broker"
	"papertrade/internal/market"
)

const (
	defaultHost    = "localhost"
	defaultPort    = 5432
	defaultSSLMode = "disable"
)

// Config describes the PostgreSQL connection for session recording.
type Config struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

func (c Config) dsn() string {
	host := c.Host
	if host == "" {
		host = defaultHost
	}
	port := c.Port
	if port == 0 {
		port = defaultPort
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}

	u := &url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", host, port),
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.Database != "" {
		u.Path = "/" + c.Database
	}
	return u.String()
}

// BarRow is one closed bar persisted for later analysis.
type BarRow struct {
	ID         uint            `gorm:"primaryKey"`
	Symbol     string          `gorm:"index:idx_bars_series"`
	Resolution string          `gorm:"index:idx_bars_series"`
	BarTime    time.Time       `gorm:"index:idx_bars_series"`
	Open       decimal.Decimal `gorm:"type:numeric"`
	High       decimal.Decimal `gorm:"type:numeric"`
	Low        decimal.Decimal `gorm:"type:numeric"`
	Close      decimal.Decimal `gorm:"type:numeric"`
	Volume     decimal.Decimal `gorm:"type:numeric"`
}

// FillRow is one execution persisted for later analysis.
type FillRow struct {
	ID          uint   `gorm:"primaryKey"`
	TradeID     string `gorm:"uniqueIndex"`
	OrderID     string `gorm:"index"`
	Symbol      string `gorm:"index"`
	Side        string
	Price       decimal.Decimal `gorm:"type:numeric"`
	Quantity    decimal.Decimal `gorm:"type:numeric"`
	Fee         decimal.Decimal `gorm:"type:numeric"`
	FeeCurrency string
	FilledAt    time.Time
}

// Recorder persists closed bars and fills to PostgreSQL. Write failures are
// logged and skipped so recording never stalls the trading session.
type Recorder struct {
	db *gorm.DB
}

// Open connects and migrates the recording tables.
func Open(cfg Config) (*Recorder, error) {
	db, err := gorm.Open(postgres.Open(cfg.dsn()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open recorder database: %w", err)
	}
	if err := db.AutoMigrate(&BarRow{}, &FillRow{}); err != nil {
		return nil, fmt.Errorf("migrate recorder tables: %w", err)
	}
	return &Recorder{db: db}, nil
}

// Attach subscribes to the bar stream and the engine's event stream. The
// returned func detaches both subscriptions.
func (r *Recorder) Attach(marketBus *market.Bus, subscribeEvents func(func(broker.Event)) func()) func() {
	unsubBars := marketBus.SubscribeBars(r.onBarClosed)
	unsubEvents := subscribeEvents(r.onBrokerEvent)
	return func() {
		unsubBars()
		unsubEvents()
	}
}

// Close releases the connection pool.
func (r *Recorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *Recorder) onBarClosed(e market.BarClosedEvent) {
	row := BarRow{
		Symbol:     e.Symbol,
		Resolution: e.Resolution.String(),
		BarTime:    e.BarTime,
		Open:       e.Bar.Open,
		High:       e.Bar.High,
		Low:        e.Bar.Low,
		Close:      e.Bar.Close,
		Volume:     e.Bar.Volume,
	}
	if err := r.db.Create(&row).Error; err != nil {
		logs.Errorf("record bar %s %s: %v", e.Symbol, e.BarTime.Format(time.RFC3339), err)
	}
}

func (r *Recorder) onBrokerEvent(e broker.Event) {
	fe, ok := e.(broker.FillEvent)
	if !ok {
		return
	}
	row := FillRow{
		TradeID:     fe.Fill.TradeID,
		OrderID:     fe.Fill.OrderID,
		Symbol:      fe.Fill.Symbol,
		Side:        fe.Fill.Side.String(),
		Price:       fe.Fill.Price,
		Quantity:    fe.Fill.Quantity,
		Fee:         fe.Fill.Fee,
		FeeCurrency: fe.Fill.FeeCurrency,
		FilledAt:    fe.Fill.Time,
	}
	if err := r.db.Create(&row).Error; err != nil {
		logs.Errorf("record fill %s: %v", fe.Fill.TradeID, err)
	}
}
