package engine

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/board"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/protocol"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/room"
	"go.uber.org/zap"
)

// Processor validates and applies client actions against a room's board.
// Every position-changing action is checked against the room's zones before
// any mutation; a denied action produces a unicast error and nothing else.
// Mutations run under the room's lock, all outbound frames are built inside
// the critical section, and sending happens only after the lock is released.
type Processor struct {
	logger *zap.Logger
}

// NewProcessor creates an action processor.
func NewProcessor(logger *zap.Logger) *Processor {
	return &Processor{logger: logger}
}

// outbound collects frames produced by a handler while the room lock is
// held. They are delivered after the lock is released.
type outbound struct {
	broadcast [][]byte // to everyone but the actor
	unicast   [][]byte // to the actor only
	toAll     [][]byte // to everyone including the actor
}

func (o *outbound) addBroadcast(t protocol.MessageType, payload any) {
	if raw, err := protocol.Encode(t, payload); err == nil {
		o.broadcast = append(o.broadcast, raw)
	}
}

func (o *outbound) addUnicast(t protocol.MessageType, payload any) {
	if raw, err := protocol.Encode(t, payload); err == nil {
		o.unicast = append(o.unicast, raw)
	}
}

func (o *outbound) addToAll(t protocol.MessageType, payload any) {
	if raw, err := protocol.Encode(t, payload); err == nil {
		o.toAll = append(o.toAll, raw)
	}
}

func (o *outbound) deliver(r *room.Room, actorID string) {
	for _, msg := range o.toAll {
		r.Broadcast(msg, "")
	}
	for _, msg := range o.broadcast {
		r.Broadcast(msg, actorID)
	}
	for _, msg := range o.unicast {
		r.SendTo(actorID, msg)
	}
}

// Apply dispatches one decoded client frame. Unknown action kinds are
// ignored for forward compatibility with newer clients; malformed payloads
// are dropped without closing the session.
func (p *Processor) Apply(r *room.Room, playerID string, env protocol.Envelope) {
	handler, ok := handlers[env.Type]
	if !ok {
		p.logger.Debug("ignoring unknown action kind",
			zap.String("room_code", r.Code),
			zap.String("type", string(env.Type)),
		)
		return
	}

	out := &outbound{}

	r.Lock()
	actor, exists := r.Players[playerID]
	if !exists {
		// The player left between frame receipt and dispatch; routine race.
		r.Unlock()
		return
	}
	err := handler(p, r, actor, env.Data, out)
	r.Unlock()

	if err != nil {
		p.logger.Debug("dropping malformed action payload",
			zap.String("room_code", r.Code),
			zap.String("player_id", playerID),
			zap.String("type", string(env.Type)),
			zap.Error(err),
		)
		return
	}

	out.deliver(r, playerID)
}

// handlerFunc runs with the room lock held. Returning an error means the
// payload could not be decoded and the frame is dropped; domain-level
// problems (not found, zone denial) are handled inside and return nil.
type handlerFunc func(p *Processor, r *room.Room, actor *room.Player, data json.RawMessage, out *outbound) error

// handlers is the closed action table; the dispatch is exhaustive over the
// protocol's client action kinds.
var handlers = map[protocol.MessageType]handlerFunc{
	protocol.TypeCardMove:      (*Processor).handleCardMove,
	protocol.TypeCardFlip:      (*Processor).handleCardFlip,
	protocol.TypeCardRotate:    (*Processor).handleCardRotate,
	protocol.TypeCardPlay:      (*Processor).handleCardPlay,
	protocol.TypeStackCreate:   (*Processor).handleStackCreate,
	protocol.TypeStackMerge:    (*Processor).handleStackMerge,
	protocol.TypeStackMove:     (*Processor).handleStackMove,
	protocol.TypeStackShuffle:  (*Processor).handleStackShuffle,
	protocol.TypeStackTake:     (*Processor).handleStackTake,
	protocol.TypeStackDraw:     (*Processor).handleStackDraw,
	protocol.TypeStackName:     (*Processor).handleStackName,
	protocol.TypeDiceRoll:      (*Processor).handleDiceRoll,
	protocol.TypeCounterUpdate: (*Processor).handleCounterUpdate,
	protocol.TypeNoteEdit:      (*Processor).handleNoteEdit,
	protocol.TypeTokenMove:     (*Processor).handleTokenMove,
	protocol.TypeCursor:        (*Processor).handleCursor,
	protocol.TypeHandCount:     (*Processor).handleHandCount,
}

// zoneDenied checks zone permissions for a target point and, on denial,
// queues the unicast error. Callers must perform no mutation and queue no
// broadcast when it returns true.
func (p *Processor) zoneDenied(r *room.Room, actor *room.Player, x, y float64, out *outbound) bool {
	if board.Allowed(r.Zones, actor.Color, x, y) {
		return false
	}
	out.addUnicast(protocol.TypeError, protocol.ErrorPayload{
		Message: "that area belongs to another player",
	})
	return true
}

func (p *Processor) handleCardMove(r *room.Room, actor *room.Player, data json.RawMessage, out *outbound) error {
	var msg protocol.CardMove
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	if p.zoneDenied(r, actor, msg.X, msg.Y, out) {
		return nil
	}

	card := r.Board.FindCard(msg.CardID)
	if card == nil {
		// Concurrently removed; skip the broadcast as well.
		return nil
	}

	card.X = msg.X
	card.Y = msg.Y
	card.Z = r.Board.NextZ()

	out.addBroadcast(protocol.TypeCardMove, msg)
	return nil
}

func (p *Processor) handleCardFlip(r *room.Room, actor *room.Player, data json.RawMessage, out *outbound) error {
	var msg protocol.CardFlip
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	card := r.Board.FindCard(msg.CardID)
	if card == nil {
		return nil
	}

	card.FaceDown = msg.FaceDown
	out.addBroadcast(protocol.TypeCardFlip, msg)
	return nil
}

func (p *Processor) handleCardRotate(r *room.Room, actor *room.Player, data json.RawMessage, out *outbound) error {
	var msg protocol.CardRotate
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	card := r.Board.FindCard(msg.CardID)
	if card == nil {
		return nil
	}

	card.Rotation = msg.Rotation
	out.addBroadcast(protocol.TypeCardRotate, msg)
	return nil
}

func (p *Processor) handleCardPlay(r *room.Room, actor *room.Player, data json.RawMessage, out *outbound) error {
	var msg protocol.CardPlay
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	if p.zoneDenied(r, actor, msg.X, msg.Y, out) {
		return nil
	}

	if msg.CardID == "" {
		msg.CardID = uuid.NewString()
	} else if r.Board.FindCard(msg.CardID) != nil {
		// Retry of a play the server already applied; idempotent.
		return nil
	}

	card := board.Card{
		ID:         msg.CardID,
		X:          msg.X,
		Y:          msg.Y,
		Z:          r.Board.NextZ(),
		FaceDown:   msg.FaceDown,
		CategoryID: msg.CategoryID,
		BackID:     msg.BackID,
	}
	r.Board.Cards = append(r.Board.Cards, card)

	if actor.HandCardCount > 0 {
		actor.HandCardCount--
	}

	out.addBroadcast(protocol.TypeCardPlayed, protocol.CardPlayed{PlayerID: actor.ID, Card: card})
	out.addBroadcast(protocol.TypePlayerHandCount, protocol.PlayerHandCount{
		PlayerID: actor.ID,
		Count:    actor.HandCardCount,
	})
	// Echo the assigned id back so the client can reconcile its optimistic card.
	out.addUnicast(protocol.TypeCardPlayed, protocol.CardPlayed{PlayerID: actor.ID, Card: card})
	return nil
}

func (p *Processor) handleStackCreate(r *room.Room, actor *room.Player, data json.RawMessage, out *outbound) error {
	var msg protocol.StackCreate
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	if p.zoneDenied(r, actor, msg.X, msg.Y, out) {
		return nil
	}

	// Gather the named loose cards; ones that vanished are skipped and a
	// repeated id counts once, so a card can never end up in the stack twice.
	gathered := make([]board.Card, 0, len(msg.CardIDs))
	seen := make(map[string]bool, len(msg.CardIDs))
	for _, id := range msg.CardIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if card := r.Board.FindCard(id); card != nil {
			gathered = append(gathered, *card)
		}
	}
	if len(gathered) < 2 {
		// A stack of one is invalid; treat as a stale request.
		return nil
	}

	for i := range gathered {
		r.Board.RemoveCard(gathered[i].ID)
		gathered[i].Z = i
	}

	stack := board.Stack{
		ID:    uuid.NewString(),
		Cards: gathered,
		X:     msg.X,
		Y:     msg.Y,
	}
	r.Board.Stacks = append(r.Board.Stacks, stack)

	out.addToAll(protocol.TypeStackCreated, protocol.StackCreated{Stack: stack})
	return nil
}

func (p *Processor) handleStackMerge(r *room.Room, actor *room.Player, data json.RawMessage, out *outbound) error {
	var msg protocol.StackMerge
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	source := r.Board.FindStack(msg.SourceID)
	target := r.Board.FindStack(msg.TargetID)
	if source == nil || target == nil || msg.SourceID == msg.TargetID {
		return nil
	}

	if p.zoneDenied(r, actor, target.X, target.Y, out) {
		return nil
	}

	base := len(target.Cards)
	for i, card := range source.Cards {
		card.Z = base + i
		target.Cards = append(target.Cards, card)
	}
	merged := *target
	r.Board.RemoveStack(msg.SourceID)

	out.addBroadcast(protocol.TypeStackMerged, protocol.StackMerged{
		SourceID: msg.SourceID,
		Stack:    merged,
	})
	return nil
}

func (p *Processor) handleStackMove(r *room.Room, actor *room.Player, data json.RawMessage, out *outbound) error {
	var msg protocol.StackMove
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	if p.zoneDenied(r, actor, msg.X, msg.Y, out) {
		return nil
	}

	stack := r.Board.FindStack(msg.StackID)
	if stack == nil {
		return nil
	}

	stack.X = msg.X
	stack.Y = msg.Y
	out.addBroadcast(protocol.TypeStackMove, msg)
	return nil
}

func (p *Processor) handleStackShuffle(r *room.Room, actor *room.Player, data json.RawMessage, out *outbound) error {
	var msg protocol.StackShuffle
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	stack := r.Board.FindStack(msg.StackID)
	if stack == nil {
		return nil
	}

	board.ShuffleCards(stack.Cards)
	for i := range stack.Cards {
		stack.Cards[i].Z = i
	}

	// There is no meaningful diff for a shuffle; everyone gets the full
	// new order, including the actor.
	out.addToAll(protocol.TypeStackShuffled, protocol.StackShuffled{
		StackID: stack.ID,
		Cards:   append([]board.Card(nil), stack.Cards...),
	})
	return nil
}

func (p *Processor) handleStackTake(r *room.Room, actor *room.Player, data json.RawMessage, out *outbound) error {
	var msg protocol.StackTake
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	if p.zoneDenied(r, actor, msg.X, msg.Y, out) {
		return nil
	}

	stack := r.Board.FindStack(msg.StackID)
	if stack == nil {
		return nil
	}

	taken, ok := stack.Top()
	if !ok {
		return nil
	}
	stack.Cards = stack.Cards[:len(stack.Cards)-1]

	taken.X = msg.X
	taken.Y = msg.Y
	taken.Z = r.Board.NextZ()
	r.Board.Cards = append(r.Board.Cards, taken)

	remaining := len(stack.Cards)
	stackID := stack.ID

	out.addBroadcast(protocol.TypeStackTaken, protocol.StackTaken{
		StackID:   stackID,
		PlayerID:  actor.ID,
		Card:      taken,
		Remaining: remaining,
	})

	if remaining <= 1 {
		// The size changed qualitatively: the stack ceases to exist, and
		// everyone (actor included) learns it via stack_removed.
		flat, hadCard, _ := r.Board.Flatten(stackID)
		removed := protocol.StackRemoved{StackID: stackID}
		if hadCard {
			removed.Card = &flat
		}
		out.addToAll(protocol.TypeStackRemoved, removed)
	}
	return nil
}

func (p *Processor) handleStackDraw(r *room.Room, actor *room.Player, data json.RawMessage, out *outbound) error {
	var msg protocol.StackDraw
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	stack := r.Board.FindStack(msg.StackID)
	if stack == nil || msg.Count <= 0 {
		// Reply with an empty hand so the asking client's UI never hangs.
		out.addUnicast(protocol.TypeDrawResponse, protocol.DrawResponse{
			StackID: msg.StackID,
			Cards:   []board.Card{},
		})
		return nil
	}

	n := msg.Count
	if n > len(stack.Cards) {
		n = len(stack.Cards)
	}

	// Drawn cards leave the shared board entirely; only the requester ever
	// sees them. Top card first.
	drawn := make([]board.Card, 0, n)
	for i := 0; i < n; i++ {
		card, _ := stack.Top()
		stack.Cards = stack.Cards[:len(stack.Cards)-1]
		drawn = append(drawn, card)
	}

	actor.HandCardCount += len(drawn)
	remaining := len(stack.Cards)
	stackID := stack.ID

	out.addUnicast(protocol.TypeDrawResponse, protocol.DrawResponse{
		StackID: stackID,
		Cards:   drawn,
	})
	out.addToAll(protocol.TypePlayerHandCount, protocol.PlayerHandCount{
		PlayerID: actor.ID,
		Count:    actor.HandCardCount,
	})

	if remaining <= 1 {
		flat, hadCard, _ := r.Board.Flatten(stackID)
		removed := protocol.StackRemoved{StackID: stackID}
		if hadCard {
			removed.Card = &flat
		}
		out.addToAll(protocol.TypeStackRemoved, removed)
	} else {
		// Everyone else only learns the stack's new size.
		out.addToAll(protocol.TypeStackUpdate, protocol.StackUpdate{
			StackID: stackID,
			Size:    remaining,
		})
	}
	return nil
}

func (p *Processor) handleStackName(r *room.Room, actor *room.Player, data json.RawMessage, out *outbound) error {
	var msg protocol.StackName
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	stack := r.Board.FindStack(msg.StackID)
	if stack == nil {
		return nil
	}

	stack.Label = msg.Name
	r.Board.StackNames[msg.StackID] = msg.Name
	out.addBroadcast(protocol.TypeStackName, msg)
	return nil
}

func (p *Processor) handleDiceRoll(r *room.Room, actor *room.Player, data json.RawMessage, out *outbound) error {
	var msg protocol.DiceRoll
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	// A roll may carry a new position; moving a die is zone-checked like any
	// other position change. A roll in place carries no coordinates.
	moved := msg.X != nil && msg.Y != nil
	if moved && p.zoneDenied(r, actor, *msg.X, *msg.Y, out) {
		return nil
	}

	die := findDie(r.Board, msg.DieID)
	if die == nil {
		return nil
	}

	die.Value = msg.Value
	if moved {
		die.X = *msg.X
		die.Y = *msg.Y
	}
	out.addBroadcast(protocol.TypeDiceRoll, msg)
	return nil
}

func (p *Processor) handleCounterUpdate(r *room.Room, actor *room.Player, data json.RawMessage, out *outbound) error {
	var msg protocol.CounterUpdate
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	counter := findCounter(r.Board, msg.CounterID)
	if counter == nil {
		return nil
	}

	counter.Value = msg.Value
	out.addBroadcast(protocol.TypeCounterUpdate, msg)
	return nil
}

func (p *Processor) handleNoteEdit(r *room.Room, actor *room.Player, data json.RawMessage, out *outbound) error {
	var msg protocol.NoteEdit
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	if p.zoneDenied(r, actor, msg.X, msg.Y, out) {
		return nil
	}

	note := findNote(r.Board, msg.NoteID)
	if note == nil || note.Locked {
		return nil
	}

	note.X = msg.X
	note.Y = msg.Y
	note.Text = msg.Text
	out.addBroadcast(protocol.TypeNoteEdit, msg)
	return nil
}

func (p *Processor) handleTokenMove(r *room.Room, actor *room.Player, data json.RawMessage, out *outbound) error {
	var msg protocol.TokenMove
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	if p.zoneDenied(r, actor, msg.X, msg.Y, out) {
		return nil
	}

	token := findToken(r.Board, msg.TokenID)
	if token == nil || token.Locked {
		return nil
	}

	token.X = msg.X
	token.Y = msg.Y
	out.addBroadcast(protocol.TypeTokenMove, msg)
	return nil
}

func (p *Processor) handleCursor(r *room.Room, actor *room.Player, data json.RawMessage, out *outbound) error {
	var msg protocol.Cursor
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	// Never persisted; lost cursor updates are not retried.
	out.addBroadcast(protocol.TypeCursor, protocol.CursorEvent{
		PlayerID: actor.ID,
		X:        msg.X,
		Y:        msg.Y,
	})
	return nil
}

func (p *Processor) handleHandCount(r *room.Room, actor *room.Player, data json.RawMessage, out *outbound) error {
	var msg protocol.HandCount
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	if msg.Count < 0 {
		return nil
	}

	actor.HandCardCount = msg.Count
	out.addBroadcast(protocol.TypePlayerHandCount, protocol.PlayerHandCount{
		PlayerID: actor.ID,
		Count:    msg.Count,
	})
	return nil
}

func findDie(st *board.State, id string) *board.Die {
	for i := range st.Dice {
		if st.Dice[i].ID == id {
			return &st.Dice[i]
		}
	}
	return nil
}

func findCounter(st *board.State, id string) *board.Counter {
	for i := range st.Counters {
		if st.Counters[i].ID == id {
			return &st.Counters[i]
		}
	}
	return nil
}

func findNote(st *board.State, id string) *board.Note {
	for i := range st.Notes {
		if st.Notes[i].ID == id {
			return &st.Notes[i]
		}
	}
	return nil
}

func findToken(st *board.State, id string) *board.Token {
	for i := range st.Tokens {
		if st.Tokens[i].ID == id {
			return &st.Tokens[i]
		}
	}
	return nil
}
