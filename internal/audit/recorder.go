package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"coaching-fees/internal/auth"
	fees "coaching-fees/internal/fees/domain"
	"coaching-fees/internal/observability/metrics"
)

// Recorder writes audit entries on a best-effort basis: a failed write is logged
// and counted but never fails the mutation that produced it.
type Recorder struct {
	logger Logger
	log    *zap.Logger
	clock  fees.Clock
}

// RecorderOption customizes a Recorder.
type RecorderOption func(*Recorder)

// WithClock sets the clock used for CreatedAt.
func WithClock(clock fees.Clock) RecorderOption {
	return func(r *Recorder) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewRecorder constructs a Recorder. A nil logger makes Record a no-op.
func NewRecorder(logger Logger, log *zap.Logger, opts ...RecorderOption) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Recorder{logger: logger, log: log, clock: fees.SystemClock{}}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Record fills identity and request details from ctx and persists the entry.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if r == nil || r.logger == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.clock.Now().UTC()
	}
	if entry.ActorID == "" {
		entry.ActorID = auth.SubjectFromContext(ctx)
	}
	if entry.ActorType == "" {
		entry.ActorType = ActorUser
		if entry.ActorID == "" || entry.ActorID == fees.SystemActor {
			entry.ActorType = ActorSystem
		}
	}
	if entry.ActorID == "" {
		entry.ActorID = fees.SystemActor
	}
	if entry.ActorRole == "" {
		entry.ActorRole = string(auth.RoleFromContext(ctx))
	}
	if info, ok := RequestInfoFromContext(ctx); ok {
		if entry.IP == "" {
			entry.IP = info.IP
		}
		if entry.UserAgent == "" {
			entry.UserAgent = info.UserAgent
		}
	}
	entry.PayloadDigest = Digest(entry)

	// The mutation is already committed; a cancelled request must not drop its audit entry.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.logger.Log(writeCtx, entry); err != nil {
		metrics.IncAuditWriteFailure()
		r.log.Error("audit write failed",
			zap.String("coaching_id", entry.CoachingID),
			zap.String("member_id", entry.MemberID),
			zap.String("event", string(entry.Event)),
			zap.String("entity_id", entry.EntityID),
			zap.Error(err),
		)
	}
}
