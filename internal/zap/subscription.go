package zap

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"nostr-zapwallet/internal/types"
)

const (
	// SettingsDTag identifies the subscription settings event of an author.
	SettingsDTag = "subscription-settings"
	// SettingsApp is the app tag written on settings events.
	SettingsApp = "crays"
	// ReceiptContent is the fixed content of subscription receipts.
	ReceiptContent = "Subscription payment receipt for access"

	// A subscription month is exactly 30 days.
	secondsPerMonth = 30 * 24 * 60 * 60

	DefaultMonthlyPrice = 10000
	settingsVersion     = "1.0"
)

// BuildSubscriptionReceipt returns an unsigned kind-30079 receipt for a
// subscription to target. paymentHash is optional.
func BuildSubscriptionReceipt(target string, months int, amountSats int64, paymentHash string) *types.Event {
	tags := [][]string{
		{"p", target},
		{"months", strconv.Itoa(months)},
		{"amount", strconv.FormatInt(amountSats, 10)},
	}
	if paymentHash != "" {
		tags = append(tags, []string{"payment_hash", paymentHash})
	}
	return &types.Event{
		Kind:      types.KindSubscriptionReceipt,
		CreatedAt: time.Now().Unix(),
		Tags:      tags,
		Content:   ReceiptContent,
	}
}

// ReceiptMonths reads the months tag, 0 when absent or unparseable. The
// last months tag wins.
func ReceiptMonths(evt *types.Event) int {
	months := 0
	for _, v := range types.TagValues(evt.Tags, "months") {
		n, err := strconv.Atoi(v)
		if err != nil {
			n = 0
		}
		months = n
	}
	return months
}

// SubscriptionExpiry is created_at + months * 30 days, as unix seconds.
func SubscriptionExpiry(receipt *types.Event) int64 {
	return receipt.CreatedAt + int64(ReceiptMonths(receipt))*secondsPerMonth
}

// LatestReceipt returns the newest kind-30079 receipt authored by viewer
// for creator, or nil.
func LatestReceipt(receipts []types.Event, viewer, creator string) *types.Event {
	var latest *types.Event
	for i := range receipts {
		r := &receipts[i]
		if r.Kind != types.KindSubscriptionReceipt || r.PubKey != viewer {
			continue
		}
		if !containsTag(r.Tags, "p", creator) {
			continue
		}
		if latest == nil || r.CreatedAt > latest.CreatedAt {
			latest = r
		}
	}
	return latest
}

// ValidateSubscriptionAccess reports whether viewer's latest receipt for
// creator is unexpired at now. No receipt means no access.
func ValidateSubscriptionAccess(receipts []types.Event, viewer, creator string, now time.Time) bool {
	latest := LatestReceipt(receipts, viewer, creator)
	if latest == nil {
		return false
	}
	return now.Unix() < SubscriptionExpiry(latest)
}

func containsTag(tags [][]string, name, value string) bool {
	for _, v := range types.TagValues(tags, name) {
		if v == value {
			return true
		}
	}
	return false
}

// Bundle is a multi-month subscription offer.
type Bundle struct {
	Months          int   `json:"months"`
	DiscountPercent int   `json:"discountPercent"`
	TotalSats       int64 `json:"totalSats"`
}

// Settings is the content of a creator's kind-30078 settings event.
type Settings struct {
	MonthlyPrice int64    `json:"monthlyPrice"`
	Bundles      []Bundle `json:"bundles"`
	Version      string   `json:"version,omitempty"`
}

// DefaultSettings returns the offer used when a creator has published none.
func DefaultSettings() *Settings {
	s := &Settings{
		MonthlyPrice: DefaultMonthlyPrice,
		Bundles: []Bundle{
			{Months: 3, DiscountPercent: 10},
			{Months: 6, DiscountPercent: 15},
			{Months: 12, DiscountPercent: 25},
		},
		Version: settingsVersion,
	}
	s.Normalize()
	return s
}

// BundleTotal is floor(monthly * months * (1 - discount/100)).
func BundleTotal(monthlyPrice int64, months, discountPercent int) int64 {
	factor := decimal.NewFromInt(100).Sub(decimal.NewFromInt(int64(discountPercent))).Div(decimal.NewFromInt(100))
	return decimal.NewFromInt(monthlyPrice).
		Mul(decimal.NewFromInt(int64(months))).
		Mul(factor).
		Floor().
		IntPart()
}

// Normalize fills bundle totals that were left at zero.
func (s *Settings) Normalize() {
	for i := range s.Bundles {
		b := &s.Bundles[i]
		if b.TotalSats == 0 && b.Months > 0 {
			b.TotalSats = BundleTotal(s.MonthlyPrice, b.Months, b.DiscountPercent)
		}
	}
}

// Recalculate recomputes every bundle total from the monthly price.
func (s *Settings) Recalculate() {
	for i := range s.Bundles {
		b := &s.Bundles[i]
		b.TotalSats = BundleTotal(s.MonthlyPrice, b.Months, b.DiscountPercent)
	}
}

// PriceFor returns the sats price of months, using a matching bundle when
// one exists.
func (s *Settings) PriceFor(months int) int64 {
	for _, b := range s.Bundles {
		if b.Months == months && b.TotalSats > 0 {
			return b.TotalSats
		}
	}
	return s.MonthlyPrice * int64(months)
}

// BuildSettingsEvent returns an unsigned kind-30078 settings event.
func BuildSettingsEvent(s *Settings) (*types.Event, error) {
	cp := *s
	if cp.Version == "" {
		cp.Version = settingsVersion
	}
	content, err := json.Marshal(cp)
	if err != nil {
		return nil, err
	}
	return &types.Event{
		Kind:      types.KindAppSpecificData,
		CreatedAt: time.Now().Unix(),
		Tags: [][]string{
			{"d", SettingsDTag},
			{"app", SettingsApp},
		},
		Content: string(content),
	}, nil
}

// SettingsFilter selects the settings events of author.
func SettingsFilter(author string) types.Filter {
	return types.Filter{
		Kinds:   []int{types.KindAppSpecificData},
		Authors: []string{author},
		DTags:   []string{SettingsDTag},
	}
}

// ReceiptFilter selects viewer's receipts for creator.
func ReceiptFilter(viewer, creator string) types.Filter {
	return types.Filter{
		Kinds:   []int{types.KindSubscriptionReceipt},
		Authors: []string{viewer},
		PTags:   []string{creator},
	}
}

// LatestSettings parses the newest settings event by author. It returns
// nil, nil when there is none.
func LatestSettings(events []types.Event, author string) (*Settings, error) {
	var latest *types.Event
	for i := range events {
		e := &events[i]
		if e.Kind != types.KindAppSpecificData || e.PubKey != author || types.TagValue(e.Tags, "d") != SettingsDTag {
			continue
		}
		if latest == nil || e.CreatedAt > latest.CreatedAt {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	var s Settings
	if err := json.Unmarshal([]byte(latest.Content), &s); err != nil {
		return nil, err
	}
	s.Normalize()
	return &s, nil
}
