package discordbot

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// channelSession is the part of *discordgo.Session the renamer needs.
type channelSession interface {
	ChannelEdit(channelID string, data *discordgo.ChannelEdit, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// ChannelRenamer implements statuschannel.Renamer on a gateway session.
type ChannelRenamer struct {
	session channelSession
	state   *discordgo.State
}

func NewChannelRenamer(s *discordgo.Session) *ChannelRenamer {
	return &ChannelRenamer{session: s, state: s.State}
}

// RenameChannel skips the REST call when the cached name already matches;
// channel renames are heavily rate limited.
func (r *ChannelRenamer) RenameChannel(ctx context.Context, channelID, name string) error {
	if r.state != nil {
		if ch, err := r.state.Channel(channelID); err == nil && ch.Name == name {
			return nil
		}
	}
	_, err := r.session.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx))
	return err
}
