// Package presence mirrors lobby-channel presence from the chat platform.
// It answers one question for the queue: is this player currently sitting in
// the designated lobby voice channel. The mapping from game identity to
// discord identity arrives through explicit link events.
package presence

import (
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-matchmaking-backend/internal/queue"
)

type Gate struct {
	lobbyChannelID string
	guildID        string

	mu      sync.Mutex
	inLobby map[string]struct{} // discord user id -> present in lobby channel
	links   map[string]string   // canonical player id -> discord user id

	log *zap.Logger
}

// NewGate builds a gate for the given lobby voice channel. An empty channel
// id disables the gate entirely: every player is allowed. A non-empty guild
// id restricts voice tracking to that guild.
func NewGate(lobbyChannelID, guildID string, log *zap.Logger) *Gate {
	return &Gate{
		lobbyChannelID: lobbyChannelID,
		guildID:        guildID,
		inLobby:        make(map[string]struct{}),
		links:          make(map[string]string),
		log:            log,
	}
}

// Register hooks the gate into a discord session.
func (g *Gate) Register(s *discordgo.Session) {
	s.AddHandler(g.handleVoiceState)
	s.Identify.Intents |= discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
}

func (g *Gate) handleVoiceState(_ *discordgo.Session, ev *discordgo.VoiceStateUpdate) {
	if ev == nil || ev.VoiceState == nil {
		return
	}
	vs := ev.VoiceState
	if g.guildID != "" && vs.GuildID != g.guildID {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if vs.ChannelID == g.lobbyChannelID {
		g.inLobby[vs.UserID] = struct{}{}
		g.log.Debug("user entered lobby channel", zap.String("user", vs.UserID))
	} else {
		delete(g.inLobby, vs.UserID)
	}
}

// Link ties a game identity to a discord user.
func (g *Gate) Link(playerID, discordUserID string) {
	id := queue.CanonicalID(playerID)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.links[id] = discordUserID
	g.log.Info("identity linked", zap.String("player", id), zap.String("discord_user", discordUserID))
}

// Allowed reports whether the player may queue through the gated entry
// point. Disabled gates allow everyone.
func (g *Gate) Allowed(playerID string) bool {
	if g.lobbyChannelID == "" {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	userID, linked := g.links[queue.CanonicalID(playerID)]
	if !linked {
		return false
	}
	_, present := g.inLobby[userID]
	return present
}
