package config

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/spkeasy-social/spkeasy/internal/logger"
	"github.com/spkeasy-social/spkeasy/pkg/lexicon"
	"github.com/spkeasy-social/spkeasy/pkg/models"
	"github.com/spkeasy-social/spkeasy/pkg/queue"
	"github.com/spkeasy-social/spkeasy/pkg/store"
)

// Stores aggregates the queue and every domain store a process serves.
// Disabled services leave their store nil.
type Stores struct {
	Queue *queue.Queue

	Keys            *store.KeyStore
	Trust           *store.TrustStore
	PrivateSessions *store.SessionStore
	PrivateProfiles *store.SessionStore

	// Raw connections, one per section above, kept for health probes.
	QueueDB           *gorm.DB
	KeysDB            *gorm.DB
	TrustDB           *gorm.DB
	PrivateSessionsDB *gorm.DB
	PrivateProfilesDB *gorm.DB

	databases []*gorm.DB
}

// InitializeStores opens every database the configuration enables and
// wires the domain stores to the shared queue.
//
// The queue opens first: every service publishes propagation work to it,
// and its jobs table must be reachable before any service accepts a
// request. Stores for disabled services are not opened; their queue jobs
// are still published and drained by whichever process serves them.
//
// On error every database opened so far is closed.
func InitializeStores(ctx context.Context, cfg *Config, metrics queue.Metrics) (*Stores, error) {
	logger.Debug("Initializing stores from configuration")

	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	if len(EnabledServices(cfg)) == 0 {
		return nil, fmt.Errorf("no services enabled: enable at least one service")
	}

	s := &Stores{}

	queueDB, err := s.open(&cfg.Queue.Database, &queue.Job{})
	if err != nil {
		return nil, s.fail(fmt.Errorf("failed to open queue database: %w", err))
	}
	s.QueueDB = queueDB

	queueCfg := cfg.Queue.Config
	queueCfg.EncryptionKey = cfg.Queue.GetEncryptionKey()
	q, err := queue.New(queueDB, queueCfg, metrics)
	if err != nil {
		return nil, s.fail(fmt.Errorf("failed to initialize queue: %w", err))
	}
	s.Queue = q
	logger.Info("Queue initialized",
		"workers", queueCfg.Workers,
		"encrypted", queueCfg.EncryptionKey != "")

	if cfg.Services.Keys.Enabled {
		db, err := s.open(&cfg.Services.Keys.Database, models.KeystoreModels()...)
		if err != nil {
			return nil, s.fail(fmt.Errorf("failed to open keystore database: %w", err))
		}
		s.KeysDB = db
		s.Keys = store.NewKeyStore(db, q, lexicon.SessionServices(), cfg.Services.Keys.RotateMinAge)
		logger.Info("Key store initialized", logger.Service(lexicon.ServiceKeys))
	}

	if cfg.Services.Trust.Enabled {
		db, err := s.open(&cfg.Services.Trust.Database, models.TrustGraphModels()...)
		if err != nil {
			return nil, s.fail(fmt.Errorf("failed to open trust graph database: %w", err))
		}
		s.TrustDB = db
		quota := store.TrustQuota{
			Limit:  cfg.Services.Trust.Quota,
			Window: cfg.Services.Trust.QuotaWindow,
		}
		s.Trust = store.NewTrustStore(db, q, lexicon.SessionServices(), quota, cfg.Services.Trust.BulkDelay)
		logger.Info("Trust store initialized",
			logger.Service(lexicon.ServiceTrust),
			"quota", quota.Limit)
	}

	if cfg.Services.PrivateSessions.Enabled {
		db, err := s.open(&cfg.Services.PrivateSessions.Database, models.SessionModels()...)
		if err != nil {
			return nil, s.fail(fmt.Errorf("failed to open private sessions database: %w", err))
		}
		s.PrivateSessionsDB = db
		s.PrivateSessions = store.NewSessionStore(db, cfg.Services.PrivateSessions.SessionTTL)
		logger.Info("Session store initialized", logger.Service(lexicon.ServicePrivateSessions))
	}

	if cfg.Services.PrivateProfiles.Enabled {
		db, err := s.open(&cfg.Services.PrivateProfiles.Database, models.SessionModels()...)
		if err != nil {
			return nil, s.fail(fmt.Errorf("failed to open private profiles database: %w", err))
		}
		s.PrivateProfilesDB = db
		s.PrivateProfiles = store.NewSessionStore(db, cfg.Services.PrivateProfiles.SessionTTL)
		logger.Info("Session store initialized", logger.Service(lexicon.ServicePrivateProfiles))
	}

	return s, nil
}

// EnabledServices returns the names of the services this configuration
// enables, in the fixed service order.
func EnabledServices(cfg *Config) []string {
	var names []string
	if cfg.Services.Keys.Enabled {
		names = append(names, lexicon.ServiceKeys)
	}
	if cfg.Services.Trust.Enabled {
		names = append(names, lexicon.ServiceTrust)
	}
	if cfg.Services.PrivateSessions.Enabled {
		names = append(names, lexicon.ServicePrivateSessions)
	}
	if cfg.Services.PrivateProfiles.Enabled {
		names = append(names, lexicon.ServicePrivateProfiles)
	}
	return names
}

// SessionStoreFor returns the session store serving the named service, or
// nil when this process does not serve it.
func (s *Stores) SessionStoreFor(service string) *store.SessionStore {
	switch service {
	case lexicon.ServicePrivateSessions:
		return s.PrivateSessions
	case lexicon.ServicePrivateProfiles:
		return s.PrivateProfiles
	}
	return nil
}

// Ping verifies every open database connection.
func (s *Stores) Ping(ctx context.Context) error {
	for _, db := range s.databases {
		if err := store.Ping(ctx, db); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every database this process opened, in reverse open order.
// The first error wins; later databases are still closed.
func (s *Stores) Close() error {
	var firstErr error
	for i := len(s.databases) - 1; i >= 0; i-- {
		if err := store.Close(s.databases[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.databases = nil
	return firstErr
}

func (s *Stores) open(cfg *store.Config, storeModels ...any) (*gorm.DB, error) {
	db, err := store.Open(cfg, storeModels...)
	if err != nil {
		return nil, err
	}
	s.databases = append(s.databases, db)
	return db, nil
}

func (s *Stores) fail(err error) error {
	_ = s.Close()
	return err
}
