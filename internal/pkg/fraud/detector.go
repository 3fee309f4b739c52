// Package fraud classifies ad events as legitimate, duplicate or abusive.
// It is advisory only and never touches wallets or ads.
package fraud

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PixelMart/app/models"
)

// Score contributions. A verdict at or above HighScore is in the high band.
const (
	DuplicateScore = 10
	RapidScore     = 50
	SessionScore   = 40
	HighScore      = 50
	MaxScore       = 100
)

// Reasons reported in a Verdict.
const (
	ReasonDuplicate      = "duplicate"
	ReasonRapidClicks    = "rapid_clicks"
	ReasonSessionBurst   = "session_burst"
	ReasonAbuseThreshold = "abuse_threshold"
)

// Verdict is the detector's classification of one event.
type Verdict struct {
	IsDuplicate   bool     `json:"is_duplicate"`
	IsFraud       bool     `json:"is_fraud"`
	FraudScore    int      `json:"fraud_score"`
	Reasons       []string `json:"reasons,omitempty"`
	ShouldSuspend bool     `json:"should_suspend"`
}

// Blocked reports whether the event must not be billed.
func (v Verdict) Blocked() bool {
	return v.IsDuplicate || v.IsFraud || v.FraudScore >= HighScore
}

// Config holds the detector thresholds.
type Config struct {
	DuplicateWindow  time.Duration
	RapidWindow      time.Duration
	RapidLimit       int
	SessionWindow    time.Duration
	SessionLimit     int
	SuspendThreshold int
	SuspendWindow    time.Duration
}

// ConfigFromSettings maps the stored tunables onto a Config.
func ConfigFromSettings(s *models.AdSettings) Config {
	return Config{
		DuplicateWindow:  time.Duration(s.FraudDuplicateWindowSeconds) * time.Second,
		RapidWindow:      time.Duration(s.FraudRapidWindowSeconds) * time.Second,
		RapidLimit:       s.FraudRapidClickLimit,
		SessionWindow:    time.Duration(s.FraudSessionWindowSeconds) * time.Second,
		SessionLimit:     s.FraudSessionClickLimit,
		SuspendThreshold: s.FraudSuspendThreshold,
		SuspendWindow:    time.Duration(s.FraudSuspendWindowHours) * time.Hour,
	}
}

// DefaultConfig returns the thresholds of DefaultAdSettings.
func DefaultConfig() Config {
	return ConfigFromSettings(models.DefaultAdSettings())
}

func (c Config) sourceTTL() time.Duration {
	ttl := c.DuplicateWindow
	for _, d := range []time.Duration{c.RapidWindow, c.SessionWindow} {
		if d > ttl {
			ttl = d
		}
	}
	return ttl
}

// Detector evaluates events against sliding windows kept in a WindowStore.
type Detector struct {
	store  WindowStore
	config func() Config
}

// NewDetector creates a detector. config is read on every evaluation so
// updated settings apply without a restart.
func NewDetector(store WindowStore, config func() Config) *Detector {
	if config == nil {
		config = DefaultConfig
	}
	return &Detector{store: store, config: config}
}

// Evaluate records the event and classifies it. Every rule is evaluated
// independently; the verdict combines them. Views only face the duplicate
// and rapid rules and never count toward suspension: a shopper browsing
// several pages sees the same banner many times in one session.
func (d *Detector) Evaluate(ctx context.Context, kind string, adID uint, ip string, now time.Time) (Verdict, error) {
	cfg := d.config()
	var v Verdict

	prior, err := d.store.Observe(ctx, sourceKey(kind, adID, ip), now, cfg.sourceTTL(),
		cfg.DuplicateWindow, cfg.RapidWindow, cfg.SessionWindow)
	if err != nil {
		return v, fmt.Errorf("fraud window: %w", err)
	}
	dup, rapid, session := prior[0], prior[1]+1, prior[2]+1
	click := kind == models.EventKindClick

	if dup > 0 {
		v.IsDuplicate = true
		v.FraudScore += DuplicateScore
		v.Reasons = append(v.Reasons, ReasonDuplicate)
	}
	if rapid > int64(cfg.RapidLimit) {
		v.IsFraud = true
		v.FraudScore += RapidScore
		v.Reasons = append(v.Reasons, ReasonRapidClicks)
	}
	if click && session > int64(cfg.SessionLimit) {
		v.IsFraud = true
		v.FraudScore += SessionScore
		v.Reasons = append(v.Reasons, ReasonSessionBurst)
	}
	if v.FraudScore > MaxScore {
		v.FraudScore = MaxScore
	}
	if v.FraudScore >= HighScore {
		v.IsFraud = true
	}

	if v.IsFraud && click {
		abusive, err := d.store.Observe(ctx, abuseKey(adID), now, cfg.SuspendWindow, cfg.SuspendWindow)
		if err != nil {
			return v, fmt.Errorf("fraud abuse window: %w", err)
		}
		if abusive[0]+1 > int64(cfg.SuspendThreshold) {
			v.ShouldSuspend = true
			v.Reasons = append(v.Reasons, ReasonAbuseThreshold)
			log.Warnf("[Fraud] Ad %d exceeded %d abusive events in %s", adID, cfg.SuspendThreshold, cfg.SuspendWindow)
		}
	}
	return v, nil
}

// Cleanup prunes expired window entries.
func (d *Detector) Cleanup(ctx context.Context, now time.Time) (int, error) {
	n, err := d.store.Prune(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Debugf("[Fraud] Pruned %d idle windows", n)
	}
	return n, nil
}

// SuspendNote renders the auto-generated moderation note for a suspension.
func SuspendNote(v Verdict, cfg Config) string {
	return fmt.Sprintf("more than %d abusive events within %s (%s)",
		cfg.SuspendThreshold, cfg.SuspendWindow, strings.Join(v.Reasons, ", "))
}

// Config returns the thresholds currently in effect.
func (d *Detector) Config() Config {
	return d.config()
}

func sourceKey(kind string, adID uint, ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = "unknown"
	}
	return fmt.Sprintf("src:%s:%d:%s", kind, adID, ip)
}

func abuseKey(adID uint) string {
	return fmt.Sprintf("abuse:%d", adID)
}
