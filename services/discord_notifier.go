package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"qteams/logging"
	"qteams/models"

	"github.com/bwmarrin/discordgo"
)

// DiscordSender is the part of *discordgo.Session the notifier needs.
type DiscordSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var phaseColors = map[models.Phase]int{
	models.PhaseQuestion: 0x3498db,
	models.PhaseAnswer:   0xf1c40f,
	models.PhaseScoring:  0xe67e22,
	models.PhaseDone:     0x00ff00,
	models.PhaseArchived: 0x95a5a6,
}

// DiscordNotifier posts phase changes of teams to a Discord channel. Posts
// are queued and sent by Run so a slow Discord API never holds up a
// mutation.
type DiscordNotifier struct {
	sender    DiscordSender
	channelID string
	queue     chan *discordgo.MessageEmbed
	log       *logging.Logger

	mu     sync.Mutex
	phases map[uint]models.Phase
}

func NewDiscordNotifier(sender DiscordSender, channelID string, log *logging.Logger) *DiscordNotifier {
	if log == nil {
		log = logging.Nop()
	}
	return &DiscordNotifier{
		sender:    sender,
		channelID: channelID,
		queue:     make(chan *discordgo.MessageEmbed, 64),
		log:       log.With("channel_id", channelID),
		phases:    make(map[uint]models.Phase),
	}
}

// NewDiscordSession opens a bot session for token.
func NewDiscordSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return session, nil
}

// Run sends queued posts until ctx is cancelled.
func (d *DiscordNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case embed := <-d.queue:
			if _, err := d.sender.ChannelMessageSendEmbed(d.channelID, embed); err != nil {
				d.log.Warn("failed to post to discord", "error", err)
			}
		}
	}
}

// TeamChanged posts when the team entered a new phase.
func (d *DiscordNotifier) TeamChanged(_ context.Context, snapshot *TeamSnapshot) {
	d.mu.Lock()
	previous, seen := d.phases[snapshot.TeamID]
	d.phases[snapshot.TeamID] = snapshot.State
	d.mu.Unlock()

	if previous == snapshot.State || (!seen && snapshot.State == models.PhaseOpen) {
		return
	}
	d.enqueue(snapshot.TeamID, phaseEmbed(snapshot))
}

func (d *DiscordNotifier) TeamDeleted(_ context.Context, teamID uint) {
	d.mu.Lock()
	delete(d.phases, teamID)
	d.mu.Unlock()
}

func (d *DiscordNotifier) enqueue(teamID uint, embed *discordgo.MessageEmbed) {
	select {
	case d.queue <- embed:
	default:
		d.log.WithTeam(teamID).Warn("discord queue full, dropping post")
	}
}

func phaseEmbed(s *TeamSnapshot) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("%s: %s", s.Name, s.State.Label()),
		Color: phaseColors[s.State],
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Round %d, %s mode", s.Round, s.Mode),
		},
	}

	switch s.State {
	case models.PhaseQuestion:
		embed.Description = fmt.Sprintf("Round %d started. Every member submits one question.", s.Round)
	case models.PhaseAnswer:
		if s.CurrentQuestion != nil {
			embed.Description = fmt.Sprintf("Question %d of %d:\n%s", s.QuestionNumber, s.QuestionCount, s.CurrentQuestion.Question)
		}
	case models.PhaseScoring:
		embed.Description = "All answers are in. Waiting for the author to score them."
	case models.PhaseDone:
		embed.Description = "Round complete."
		embed.Fields = []*discordgo.MessageEmbedField{{
			Name:  "Scores",
			Value: scoreboard(s.Members),
		}}
	case models.PhaseArchived:
		embed.Description = "The team has been archived."
	}
	return embed
}

// scoreboard renders members by descending score, ties by name.
func scoreboard(members []MemberScore) string {
	if len(members) == 0 {
		return "no members"
	}
	ranked := make([]MemberScore, len(members))
	copy(ranked, members)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Username < ranked[j].Username
	})

	var b strings.Builder
	for i, m := range ranked {
		fmt.Fprintf(&b, "%d. %s: %d (%d right, %d partial, %d wrong)\n",
			i+1, m.Username, m.Score, m.Right, m.Partial, m.Wrong)
	}
	return strings.TrimRight(b.String(), "\n")
}
