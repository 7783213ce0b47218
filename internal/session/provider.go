package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"
)

const sessionsBucket = "sessions"

// LoginFunc performs a full SIWB login for a bot and returns a fresh
// session. Implemented by the gateway client.
type LoginFunc func(ctx context.Context, bot string) (*Session, error)

// Provider hands out authenticated sessions, serving from the BoltDB
// cache when the stored session is still inside its validity window.
// Callers must not acquire sessions for the same bot concurrently.
type Provider struct {
	db    *bbolt.DB
	login LoginFunc
	log   zerolog.Logger
	now   func() time.Time
}

// NewProvider opens (or creates) the session database at path.
func NewProvider(path string, login LoginFunc, log zerolog.Logger) (*Provider, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions bucket: %w", err)
	}

	return &Provider{db: db, login: login, log: log, now: time.Now}, nil
}

// Close closes the underlying database.
func (p *Provider) Close() error {
	return p.db.Close()
}

// Acquire returns a valid session for the named bot, reusing the cached
// one when possible and falling back to a full login otherwise.
func (p *Provider) Acquire(ctx context.Context, bot string) (*Session, error) {
	if cached := p.cached(bot); cached != nil {
		p.log.Debug().Str("bot", bot).Str("principal", cached.Principal).Msg("using cached session")
		return cached, nil
	}

	p.log.Info().Str("bot", bot).Msg("no valid cached session, performing full SIWB login")
	sess, err := p.login(ctx, bot)
	if err != nil {
		return nil, &AuthError{Bot: bot, Err: err}
	}
	if err := p.store(sess); err != nil {
		// A session that cannot be cached is still usable for this run.
		p.log.Warn().Err(err).Str("bot", bot).Msg("failed to cache session")
	}
	return sess, nil
}

func (p *Provider) cached(bot string) *Session {
	var sess Session
	err := p.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(sessionsBucket)).Get([]byte(bot))
		if raw == nil {
			return fmt.Errorf("no cached session")
		}
		return json.Unmarshal(raw, &sess)
	})
	if err != nil || !sess.Valid(p.now()) {
		return nil
	}
	return &sess
}

func (p *Provider) store(sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return p.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionsBucket)).Put([]byte(sess.Bot), raw)
	})
}
