package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/DoyleJ11/battlezone/internal/backend"
	"github.com/DoyleJ11/battlezone/internal/wallet"
)

// ProfileChannel is the NOTIFY channel the profiles trigger writes to.
const ProfileChannel = "profile_changes"

// Listener forwards PostgreSQL notifications into a Feed. It holds one
// dedicated connection; when that connection fails Run returns and no
// reconnect is attempted.
type Listener struct {
	dsn     string
	channel string
	feed    *Feed
	log     *zap.Logger
}

func NewListener(dsn string, feed *Feed, log *zap.Logger) *Listener {
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{dsn: dsn, channel: ProfileChannel, feed: feed, log: log}
}

func (l *Listener) Run(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("realtime listener connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	l.log.Info("realtime listener started", zap.String("channel", l.channel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		change, err := DecodeNotification([]byte(n.Payload))
		if err != nil {
			l.log.Warn("bad notification payload", zap.Error(err))
			continue
		}
		l.feed.Publish(change)
	}
}

type notification struct {
	Table  string `json:"table"`
	ID     string `json:"id"`
	Record *struct {
		Username    *string          `json:"username"`
		Avatar      *string          `json:"avatar"`
		Balance     *decimal.Decimal `json:"balance"`
		IsAdmin     *bool            `json:"is_admin"`
		GamesPlayed *int             `json:"games_played"`
		Wins        *int             `json:"wins"`
		Kills       *int             `json:"kills"`
	} `json:"record"`
	Entry *wallet.Entry `json:"entry"`
}

// DecodeNotification parses the JSON the triggers emit:
// {"table": ..., "id": ..., "record": <row_to_json(NEW)>} for profile rows,
// or {"table": "profiles", "id": <user id>, "entry": {...}} when a ledger row
// changes status.
func DecodeNotification(payload []byte) (backend.Change, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return backend.Change{}, fmt.Errorf("decode notification: %w", err)
	}
	if n.Table == "" || n.ID == "" {
		return backend.Change{}, errors.New("notification without table or id")
	}

	c := backend.Change{Table: n.Table, RowID: n.ID, Entry: n.Entry}
	if n.Table == backend.TableProfiles && n.Record != nil {
		c.Profile = &wallet.Snapshot{
			Balance:     n.Record.Balance,
			Username:    n.Record.Username,
			Avatar:      n.Record.Avatar,
			IsAdmin:     n.Record.IsAdmin,
			GamesPlayed: n.Record.GamesPlayed,
			Wins:        n.Record.Wins,
			Kills:       n.Record.Kills,
		}
	}
	return c, nil
}
