package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	assignmentapp "coaching-fees/internal/assignment/application"
	"coaching-fees/internal/audit"
	"coaching-fees/internal/auth"
	eventingrepo "coaching-fees/internal/eventing/infrastructure/postgres"
	fees "coaching-fees/internal/fees/domain"
	feesrepo "coaching-fees/internal/fees/infrastructure/postgres"
	ledgerapp "coaching-fees/internal/ledger/application"
	"coaching-fees/internal/locks"
	settlementapp "coaching-fees/internal/settlement/application"
)

type options struct {
	dsn        string
	policyFile string
	redisAddr  string
	actor      string
	timeout    time.Duration
	verbose    bool
}

// runtime holds the services one command invocation uses.
type runtime struct {
	db          *sql.DB
	auditLog    audit.Store
	dlq         *eventingrepo.DLQStore
	ledger      *ledgerapp.Service
	preview     *settlementapp.Service
	assignments *assignmentapp.Service
	logger      *zap.Logger
}

func (r *runtime) Close() error {
	_ = r.logger.Sync()
	return r.db.Close()
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "feectl",
		Short:         "Operate the coaching fee ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", os.Getenv("DATABASE_URL"), "Postgres DSN (or set DATABASE_URL)")
	root.PersistentFlags().StringVar(&opts.policyFile, "policy", os.Getenv("FEES_POLICY_FILE"), "orchestration policy YAML")
	root.PersistentFlags().StringVar(&opts.redisAddr, "redis", os.Getenv("REDIS_ADDR"), "Redis address shared with the API server for member locks")
	root.PersistentFlags().StringVar(&opts.actor, "actor", "feectl", "actor recorded in the audit log")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "operation timeout")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		newLedgerCmd(opts),
		newPreviewCmd(opts),
		newBulkAssignCmd(opts),
		newRollForwardCmd(opts),
		newAuditCmd(opts),
		newDLQCmd(opts),
		newTokenCmd(),
	)
	return root
}

// withRuntime opens the database, builds the services and runs fn under the
// admin identity of the coaching.
func withRuntime(cmd *cobra.Command, opts *options, coachingID string, fn func(ctx context.Context, rt *runtime) error) error {
	if opts.dsn == "" {
		return errors.New("--dsn or DATABASE_URL is required")
	}
	logger := zap.NewNop()
	if opts.verbose {
		dev, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		logger = dev
	}
	policy, err := assignmentapp.LoadConfig(opts.policyFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	db, err := sql.Open("pgx", opts.dsn)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	store, err := feesrepo.NewStore(db)
	if err != nil {
		_ = db.Close()
		return err
	}
	auditLog := audit.NewRepository(db)
	clock := fees.SystemClock{}
	recorder := audit.NewRecorder(auditLog, logger.Named("audit"), audit.WithClock(clock))

	rt := &runtime{db: db, auditLog: auditLog, dlq: eventingrepo.NewDLQStore(db), logger: logger}
	defer func() { _ = rt.Close() }()

	if rt.preview, err = settlementapp.NewService(store, store, store, auditLog, logger.Named("settlement")); err != nil {
		return err
	}
	if rt.ledger, err = ledgerapp.NewService(store, store, store, store, clock, logger.Named("ledger")); err != nil {
		return err
	}
	locker, err := newLocker(ctx, opts.redisAddr, policy.LockTTL, logger)
	if err != nil {
		return err
	}
	rt.assignments, err = assignmentapp.NewService(store, rt.preview, locker, recorder, policy,
		assignmentapp.WithClock(clock),
		assignmentapp.WithLogger(logger.Named("assignment")),
	)
	if err != nil {
		return err
	}

	if coachingID != "" {
		ctx = auth.WithIdentity(ctx, coachingID, auth.RoleAdmin, opts.actor)
	}
	return fn(ctx, rt)
}

// newLocker shares member locks with the API server through Redis; without it
// the lock is process-local.
func newLocker(ctx context.Context, addr string, ttl time.Duration, logger *zap.Logger) (locks.Locker, error) {
	if addr == "" {
		return locks.NewKeyedMutex(), nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return locks.NewRedisLocker(client, ttl, logger.Named("locks"))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
