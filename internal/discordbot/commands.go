package discordbot

import (
	"github.com/bwmarrin/discordgo"

	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/types"
)

var descriptions = map[types.Command]string{
	types.CommandLock:   "Lock all doors by disabling evacuation mode",
	types.CommandUnlock: "Unlock all doors by enabling evacuation mode",
	types.CommandStatus: "Check the current status of all doors",
}

// Commands is the slash-command set registered on Ready.  None take options.
func Commands() []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, 0, len(types.Commands))
	for _, c := range types.Commands {
		out = append(out, &discordgo.ApplicationCommand{
			Name:        string(c),
			Description: descriptions[c],
			Type:        discordgo.ChatApplicationCommand,
		})
	}
	return out
}

// InvocationFromInteraction extracts the invoking user and location.  Guild
// interactions carry the user on Member; DMs carry it on User.
func InvocationFromInteraction(i *discordgo.Interaction) types.Invocation {
	inv := types.Invocation{
		Command:   types.Command(i.ApplicationCommandData().Name),
		ChannelID: i.ChannelID,
		GuildID:   i.GuildID,
	}

	var u *discordgo.User
	if i.Member != nil && i.Member.User != nil {
		u = i.Member.User
	} else if i.User != nil {
		u = i.User
	}
	if u != nil {
		inv.UserID = u.ID
		inv.UserName = u.Username
	}
	return inv
}

func deferResponse(silent bool) *discordgo.InteractionResponse {
	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}
	if silent {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	return resp
}

func followup(reply types.Reply, silent bool) *discordgo.WebhookParams {
	p := &discordgo.WebhookParams{Content: reply.Content}
	if silent {
		p.Flags = discordgo.MessageFlagsEphemeral
	}
	return p
}
