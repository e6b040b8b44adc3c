package reminders

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"coaching-fees/internal/eventing"
	"coaching-fees/internal/fees/application/events"
	fees "coaching-fees/internal/fees/domain"
	"coaching-fees/internal/observability/metrics"
)

// ConsumerName identifies the notifier in the processed-events table.
const ConsumerName = "reminders.webhook"

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier delivers ReminderRequested events through a Channel.
type Notifier struct {
	channel        Channel
	template       *Template
	limiter        *rate.Limiter
	clock          fees.Clock
	currency       string
	dedupeWindow   time.Duration
	requestTimeout time.Duration
	logger         *zap.Logger

	mu   sync.Mutex
	sent map[string]sendRecord
}

// Option configures the notifier.
type Option func(*Notifier)

// WithRatePerMinute caps deliveries; bursts up to the same count are allowed.
func WithRatePerMinute(n int) Option {
	return func(r *Notifier) {
		if n > 0 {
			r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
		}
	}
}

// WithDedupeWindow suppresses identical reminders for a record within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(r *Notifier) {
		if window > 0 {
			r.dedupeWindow = window
		}
	}
}

// WithCurrency sets the symbol prefixed to amounts.
func WithCurrency(symbol string) Option {
	return func(r *Notifier) {
		if symbol != "" {
			r.currency = symbol
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock fees.Clock) Option {
	return func(r *Notifier) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithRequestTimeout bounds a single delivery.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(r *Notifier) {
		if timeout > 0 {
			r.requestTimeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Notifier) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewNotifier constructs a reminder notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("reminder notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:        channel,
		template:       template,
		limiter:        rate.NewLimiter(rate.Inf, 0),
		clock:          fees.SystemClock{},
		currency:       "₹",
		dedupeWindow:   24 * time.Hour,
		requestTimeout: 10 * time.Second,
		logger:         zap.NewNop(),
		sent:           make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Register subscribes the notifier to reminder events. A non-nil store makes
// delivery idempotent per event.
func (n *Notifier) Register(bus eventing.Subscriber, store eventing.ProcessedStore) {
	eventing.Subscribe(bus, eventing.EventTypeOf[events.ReminderRequested](), ConsumerName, n.Handle, store)
}

// Handle delivers one reminder. Returning an error leaves the event for retry.
func (n *Notifier) Handle(ctx context.Context, event any) error {
	var reminder events.ReminderRequested
	switch e := event.(type) {
	case events.ReminderRequested:
		reminder = e
	case *events.ReminderRequested:
		if e == nil {
			return nil
		}
		reminder = *e
	default:
		return fmt.Errorf("reminder notifier: unexpected event %T", event)
	}

	content, err := n.template.Render(n.templateData(reminder))
	if err != nil {
		metrics.IncReminder(metrics.ResultError)
		return err
	}
	if !n.shouldSend(reminder.RecordID, content) {
		metrics.IncReminder(metrics.OutcomeSkipped)
		return nil
	}
	if err := n.limiter.Wait(ctx); err != nil {
		metrics.IncReminder(metrics.ResultError)
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, n.requestTimeout)
	defer cancel()
	msg := Message{
		CoachingID: reminder.CoachingID,
		MemberID:   reminder.MemberID,
		Phone:      reminder.Phone,
		RecordID:   reminder.RecordID,
		Text:       content,
	}
	if err := n.channel.Send(sendCtx, msg); err != nil {
		metrics.IncReminder(metrics.ResultError)
		n.logger.Warn("reminder delivery failed",
			zap.String("coaching_id", reminder.CoachingID),
			zap.String("member_id", reminder.MemberID),
			zap.String("record_id", reminder.RecordID),
			zap.Error(err),
		)
		return err
	}
	n.markSent(reminder.RecordID, content)
	metrics.IncReminder(metrics.ResultSuccess)
	return nil
}

func (n *Notifier) templateData(r events.ReminderRequested) TemplateData {
	name := r.MemberName
	if name == "" {
		name = r.MemberID
	}
	return TemplateData{
		CoachingID:  r.CoachingID,
		MemberID:    r.MemberID,
		MemberName:  name,
		Phone:       r.Phone,
		RecordID:    r.RecordID,
		Title:       r.Title,
		Currency:    n.currency,
		Balance:     r.Balance.StringFixed(2),
		DueDate:     r.DueDate.UTC().Format("02 Jan 2006"),
		DaysOverdue: r.DaysOverdue,
	}
}

func (n *Notifier) shouldSend(recordID, content string) bool {
	if n.dedupeWindow <= 0 {
		return true
	}
	n.mu.Lock()
	record, ok := n.sent[recordID]
	n.mu.Unlock()
	if !ok {
		return true
	}
	return record.hash != hashContent(content) || n.clock.Now().Sub(record.at) >= n.dedupeWindow
}

// markSent records a delivery and evicts entries that have aged out of the
// dedupe window.
func (n *Notifier) markSent(recordID, content string) {
	now := n.clock.Now()
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dedupeWindow > 0 {
		for id, record := range n.sent {
			if now.Sub(record.at) >= n.dedupeWindow {
				delete(n.sent, id)
			}
		}
	}
	n.sent[recordID] = sendRecord{at: now, hash: hashContent(content)}
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}
