package engine

import (
	"strings"

	"github.com/rayberirondelsol/card-game-engine-sub000/internal/board"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/protocol"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/room"
	"go.uber.org/zap"
)

// PlayerInfos converts room players to their public wire view.
func PlayerInfos(players []room.Player) []protocol.PlayerInfo {
	infos := make([]protocol.PlayerInfo, 0, len(players))
	for _, p := range players {
		infos = append(infos, protocol.PlayerInfo{
			ID:            p.ID,
			Name:          p.Name,
			Color:         p.Color,
			Seat:          p.Seat,
			IsHost:        p.IsHost,
			IsConnected:   p.IsConnected,
			HandCardCount: p.HandCardCount,
		})
	}
	return infos
}

// StartRoom transitions a waiting room to active: the setup layout and zones
// are loaded into the board, the initial hands are dealt from the deck stack,
// and every player receives room_started with the identical post-deal board.
// Dealt cards go out as unicast draw responses, mirroring a regular draw.
func (p *Processor) StartRoom(r *room.Room, playerID string, zones []board.Zone, layout *board.State, handSize int) error {
	if err := r.Start(playerID, zones, layout); err != nil {
		return err
	}

	type dealt struct {
		playerID string
		frame    []byte
	}

	r.Lock()

	var deals []dealt
	if handSize > 0 {
		if deck := deckStack(r.Board); deck != nil {
			deckID := deck.ID
			for _, id := range r.SeatOrder {
				player, ok := r.Players[id]
				if !ok {
					continue
				}
				n := handSize
				if n > len(deck.Cards) {
					n = len(deck.Cards)
				}
				hand := make([]board.Card, 0, n)
				for i := 0; i < n; i++ {
					card, _ := deck.Top()
					deck.Cards = deck.Cards[:len(deck.Cards)-1]
					hand = append(hand, card)
				}
				player.HandCardCount = len(hand)

				frame, err := protocol.Encode(protocol.TypeDrawResponse, protocol.DrawResponse{
					StackID: deckID,
					Cards:   hand,
				})
				if err == nil {
					deals = append(deals, dealt{playerID: id, frame: frame})
				}
			}
			// The deal may have drained the deck below a valid stack size.
			r.Board.Flatten(deckID)
		}
	}

	players := make([]room.Player, 0, len(r.SeatOrder))
	for _, id := range r.SeatOrder {
		if pl, ok := r.Players[id]; ok {
			players = append(players, *pl)
		}
	}

	started, err := protocol.Encode(protocol.TypeRoomStarted, protocol.RoomStarted{
		Zones:   r.Zones,
		Board:   r.Board,
		Players: PlayerInfos(players),
	})
	r.Unlock()

	if err != nil {
		p.logger.Error("failed to encode room_started",
			zap.String("room_code", r.Code),
			zap.Error(err),
		)
		return nil
	}

	r.Broadcast(started, "")
	for _, d := range deals {
		r.SendTo(d.playerID, d.frame)
	}

	p.logger.Info("room started",
		zap.String("room_code", r.Code),
		zap.String("host", playerID),
		zap.Int("players", len(players)),
		zap.Int("hand_size", handSize),
	)
	return nil
}

// deckStack picks the stack hands are dealt from: the one labeled "deck",
// falling back to the first stack in the layout.
func deckStack(st *board.State) *board.Stack {
	for i := range st.Stacks {
		if strings.EqualFold(st.Stacks[i].Label, "deck") {
			return &st.Stacks[i]
		}
	}
	for id, name := range st.StackNames {
		if strings.EqualFold(name, "deck") {
			if s := st.FindStack(id); s != nil {
				return s
			}
		}
	}
	if len(st.Stacks) > 0 {
		return &st.Stacks[0]
	}
	return nil
}
