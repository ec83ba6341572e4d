// Package store is the durable mirror of the queue. The queue store treats
// it as the source of truth on startup and writes through on every mutation.
package store

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/lol-matchmaking-backend/internal/queue"
)

// QueuePlayer is one durable queue entry.
type QueuePlayer struct {
	ID            uint      `gorm:"primaryKey"`
	PlayerID      string    `gorm:"uniqueIndex;size:128;not null"`
	MMR           int       `gorm:"not null"`
	Region        string    `gorm:"size:16"`
	PrimaryLane   string    `gorm:"size:16"`
	SecondaryLane string    `gorm:"size:16"`
	JoinedAt      time.Time `gorm:"index"`
	Position      int
}

func (QueuePlayer) TableName() string { return "queue_players" }

// Postgres implements queue.Persistence over gorm.
type Postgres struct {
	db  *gorm.DB
	log *zap.Logger
}

func Open(dsn string, log *zap.Logger) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&QueuePlayer{}); err != nil {
		return nil, fmt.Errorf("migrate queue_players: %w", err)
	}
	return &Postgres{db: db, log: log}, nil
}

// AddPlayer upserts on the player identifier so a restore after a partially
// failed removal stays idempotent.
func (p *Postgres) AddPlayer(pl queue.Player) error {
	rec := QueuePlayer{
		PlayerID:      pl.ID,
		MMR:           pl.MMR,
		Region:        pl.Region,
		PrimaryLane:   string(pl.PrimaryLane),
		SecondaryLane: string(pl.SecondaryLane),
		JoinedAt:      pl.JoinedAt,
		Position:      pl.Position,
	}
	err := p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"mmr", "region", "primary_lane", "secondary_lane", "joined_at", "position"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("add player %s: %w", pl.ID, err)
	}
	return nil
}

func (p *Postgres) RemovePlayer(id string) error {
	if err := p.db.Where("player_id = ?", id).Delete(&QueuePlayer{}).Error; err != nil {
		return fmt.Errorf("remove player %s: %w", id, err)
	}
	return nil
}

func (p *Postgres) ListActivePlayers() ([]queue.Player, error) {
	var recs []QueuePlayer
	if err := p.db.Order("joined_at asc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	players := make([]queue.Player, 0, len(recs))
	for _, r := range recs {
		primary, _ := queue.ParseLane(r.PrimaryLane)
		secondary, _ := queue.ParseLane(r.SecondaryLane)
		players = append(players, queue.Player{
			ID:            r.PlayerID,
			MMR:           r.MMR,
			Region:        r.Region,
			PrimaryLane:   primary,
			SecondaryLane: secondary,
			JoinedAt:      r.JoinedAt,
			Position:      r.Position,
		})
	}
	return players, nil
}

func (p *Postgres) UpdatePosition(id string, position int) error {
	err := p.db.Model(&QueuePlayer{}).
		Where("player_id = ?", id).
		Update("position", position).Error
	if err != nil {
		return fmt.Errorf("update position %s: %w", id, err)
	}
	return nil
}
