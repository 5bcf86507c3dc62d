// Package notify announces ocean events to a Discord channel. The announcer
// is optional: without a bot token the worker simply never starts it.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/jackc/pgx/v5/pgxpool"

	"fintank/internal/money"
	"fintank/internal/ocean"
)

type Announcer struct {
	db      *pgxpool.Pool
	log     *slog.Logger
	session *discordgo.Session
	channel string
}

func NewAnnouncer(db *pgxpool.Pool, logger *slog.Logger, botToken, channelID string) (*Announcer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Announcer{
		db:      db,
		log:     logger,
		session: session,
		channel: channelID,
	}, nil
}

func (a *Announcer) Close() error {
	return a.session.Close()
}

type pendingEvent struct {
	id     int64
	kind   string
	detail string
	amount int64
}

// Flush posts every unannounced event and marks it. Failures leave the row
// unannounced for the next pass.
func (a *Announcer) Flush(ctx context.Context) error {
	rows, err := a.db.Query(ctx, `
		SELECT id, kind, detail, amount_nanos
		FROM ocean.events
		WHERE NOT announced
		ORDER BY id
		LIMIT 20
	`)
	if err != nil {
		return err
	}
	events := make([]pendingEvent, 0)
	for rows.Next() {
		var e pendingEvent
		if err := rows.Scan(&e.id, &e.kind, &e.detail, &e.amount); err != nil {
			rows.Close()
			return err
		}
		events = append(events, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, e := range events {
		msg := a.message(e)
		if msg == "" {
			// Not every event kind is channel-worthy; mark and move on.
			if err := a.markAnnounced(ctx, e.id); err != nil {
				return err
			}
			continue
		}
		if _, err := a.session.ChannelMessageSend(a.channel, msg); err != nil {
			a.log.Error("discord send failed", "event_id", e.id, "err", err)
			return err
		}
		if err := a.markAnnounced(ctx, e.id); err != nil {
			return err
		}
	}
	return nil
}

func (a *Announcer) markAnnounced(ctx context.Context, id int64) error {
	_, err := a.db.Exec(ctx, `UPDATE ocean.events SET announced = true WHERE id = $1`, id)
	return err
}

func (a *Announcer) message(e pendingEvent) string {
	switch e.kind {
	case ocean.EventHunted:
		return fmt.Sprintf("🦈 **%s** was hunted for %s pearls!", e.detail, money.FormatPearl(e.amount))
	case ocean.EventExited:
		return fmt.Sprintf("🏝️ **%s** left the ocean with %s pearls.", e.detail, money.FormatPearl(e.amount))
	case ocean.EventStorm:
		return "⛈️ A storm has hit the ocean. Exits are closed until it passes."
	case ocean.EventCalm:
		return "🌊 The storm has passed. The ocean is calm again."
	default:
		return ""
	}
}
