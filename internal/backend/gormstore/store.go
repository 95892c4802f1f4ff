// Package gormstore implements the backend contracts on a SQL database
// through gorm: PostgreSQL in deployments, SQLite for local runs and tests.
package gormstore

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/battlezone/internal/backend"
	"github.com/DoyleJ11/battlezone/internal/backend/realtime"
)

// Publisher receives committed profile changes.
type Publisher interface {
	Publish(backend.Change)
}

type Store struct {
	db              *gorm.DB
	pub             Publisher
	log             *zap.Logger
	startingBalance decimal.Decimal
	procs           map[string]procedure
}

type Options struct {
	// Publisher may be nil when changes reach subscribers another way,
	// e.g. through the PostgreSQL trigger.
	Publisher       Publisher
	Logger          *zap.Logger
	StartingBalance decimal.Decimal
}

func New(db *gorm.DB, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Store{
		db:              db,
		pub:             opts.Publisher,
		log:             opts.Logger,
		startingBalance: opts.StartingBalance,
	}
	s.procs = map[string]procedure{
		backend.ProcJoinTournament:     s.joinTournament,
		backend.ProcRequestDeposit:     s.requestDeposit,
		backend.ProcRequestWithdrawal:  s.requestWithdrawal,
		backend.ProcUpdateProfile:      s.updateProfile,
		backend.ProcApproveTransaction: s.approveTransaction,
		backend.ProcRejectTransaction:  s.rejectTransaction,
	}
	return s
}

func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time, otherwise concurrent procedures hit SQLITE_BUSY
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

const profileTrigger = `
CREATE OR REPLACE FUNCTION notify_profile_change() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('` + realtime.ProfileChannel + `',
		json_build_object('table', TG_TABLE_NAME, 'id', NEW.id, 'record', row_to_json(NEW))::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS profiles_notify ON profiles;
CREATE TRIGGER profiles_notify AFTER INSERT OR UPDATE ON profiles
	FOR EACH ROW EXECUTE FUNCTION notify_profile_change();

CREATE OR REPLACE FUNCTION notify_transaction_status() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('` + realtime.ProfileChannel + `',
		json_build_object('table', 'profiles', 'id', NEW.user_id, 'entry', json_build_object(
			'id', NEW.id, 'type', NEW.type, 'amount', NEW.amount, 'date', NEW.created_at,
			'description', NEW.description, 'status', NEW.status))::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS transactions_notify ON transactions;
CREATE TRIGGER transactions_notify AFTER UPDATE OF status ON transactions
	FOR EACH ROW EXECUTE FUNCTION notify_transaction_status();
`

// Migrate creates the schema. On PostgreSQL it also installs the trigger
// feeding realtime.Listener.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&backend.Profile{},
		&backend.Tournament{},
		&backend.Transaction{},
		&backend.Registration{},
		&account{},
		&authSession{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if s.db.Dialector.Name() == "postgres" {
		if err := s.db.WithContext(ctx).Exec(profileTrigger).Error; err != nil {
			return fmt.Errorf("install profile trigger: %w", err)
		}
	}
	s.log.Info("database migrated", zap.String("dialect", s.db.Dialector.Name()))
	return nil
}

// publishEntry tells the owner's subscribers that a ledger row changed.
func (s *Store) publishEntry(t backend.Transaction) {
	if s.pub == nil {
		return
	}
	e := t.Entry()
	s.pub.Publish(backend.Change{Table: backend.TableProfiles, RowID: t.UserID, Entry: &e})
}

func (s *Store) publishProfiles(ctx context.Context, userIDs ...string) {
	if s.pub == nil {
		return
	}
	for _, id := range userIDs {
		p, err := s.GetProfile(ctx, id)
		if err != nil {
			s.log.Warn("reload profile for realtime", zap.String("user_id", id), zap.Error(err))
			continue
		}
		snap := p.Wallet()
		s.pub.Publish(backend.Change{
			Table:   backend.TableProfiles,
			RowID:   id,
			Profile: ptrSnapshot(snap),
		})
	}
}
