package ocean

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestHuntChecks(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pol := ProductionPolicy()

	newHunter := func() fishRow {
		return fishRow{
			id:           uuid.New(),
			ownerUserID:  "alice",
			status:       StatusAlive,
			version:      3,
			lastFedAt:    now.Add(-time.Hour),
			canHuntAfter: now.Add(-time.Minute),
		}
	}
	newPrey := func() fishRow {
		return fishRow{
			id:          uuid.New(),
			ownerUserID: "bob",
			status:      StatusAlive,
			version:     5,
			share:       1_000_000_000,
			lastFedAt:   now.Add(-pol.HungerAfter - time.Minute),
		}
	}

	cases := []struct {
		name   string
		mutate func(h, p *fishRow, in *HuntInput)
		want   error
	}{
		{"ready hunter, hungry prey", func(h, p *fishRow, in *HuntInput) {}, nil},
		{"caller does not own the hunter", func(h, p *fishRow, in *HuntInput) {
			in.UserID = "mallory"
		}, ErrNotOwner},
		{"dead hunter", func(h, p *fishRow, in *HuntInput) {
			h.status = StatusDead
		}, ErrInvalidState},
		// Retrying the prey you just killed: cooldown must answer before the
		// prey's death does.
		{"cooldown wins over dead prey", func(h, p *fishRow, in *HuntInput) {
			h.canHuntAfter = now.Add(30 * time.Minute)
			p.status = StatusDead
			p.share = 0
		}, ErrHuntNotReady},
		{"stale hunter version", func(h, p *fishRow, in *HuntInput) {
			in.HunterVersion = h.version - 1
		}, ErrVersionConflict},
		{"dead prey, hunter ready", func(h, p *fishRow, in *HuntInput) {
			p.status = StatusDead
			p.share = 0
		}, ErrInvalidState},
		{"stale prey version", func(h, p *fishRow, in *HuntInput) {
			in.PreyVersion = p.version + 1
		}, ErrVersionConflict},
		{"protected prey", func(h, p *fishRow, in *HuntInput) {
			ends := now.Add(10 * time.Minute)
			p.isProtected = true
			p.protectionEnds = &ends
		}, ErrFishProtected},
		{"fed unmarked prey", func(h, p *fishRow, in *HuntInput) {
			p.lastFedAt = now.Add(-time.Minute)
		}, ErrPreyNotHungry},
		{"fed prey marked by the hunter", func(h, p *fishRow, in *HuntInput) {
			exp := now.Add(10 * time.Minute)
			p.lastFedAt = now.Add(-time.Minute)
			p.markedByFishID = &h.id
			p.markExpiresAt = &exp
		}, nil},
		{"fed prey marked by someone else", func(h, p *fishRow, in *HuntInput) {
			other := uuid.New()
			exp := now.Add(10 * time.Minute)
			p.lastFedAt = now.Add(-time.Minute)
			p.markedByFishID = &other
			p.markExpiresAt = &exp
		}, ErrPreyNotHungry},
		{"fed prey with an expired mark", func(h, p *fishRow, in *HuntInput) {
			exp := now.Add(-time.Second)
			p.lastFedAt = now.Add(-time.Minute)
			p.markedByFishID = &h.id
			p.markExpiresAt = &exp
		}, ErrPreyNotHungry},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hunter := newHunter()
			prey := newPrey()
			in := HuntInput{
				UserID:        hunter.ownerUserID,
				HunterFishID:  hunter.id.String(),
				HunterVersion: hunter.version,
				PreyFishID:    prey.id.String(),
				PreyVersion:   prey.version,
			}
			tc.mutate(&hunter, &prey, &in)
			if err := huntChecks(hunter, prey, in, now, pol); err != tc.want {
				t.Fatalf("err=%v want %v", err, tc.want)
			}
		})
	}
}
