package protocol

import (
	"encoding/json"

	"github.com/rayberirondelsol/card-game-engine-sub000/internal/board"
)

// MessageType tags every frame on the live channel.
type MessageType string

// Client-to-server action kinds.
const (
	TypeCardMove      MessageType = "card_move"
	TypeCardFlip      MessageType = "card_flip"
	TypeCardRotate    MessageType = "card_rotate"
	TypeCardPlay      MessageType = "card_play"
	TypeStackCreate   MessageType = "stack_create"
	TypeStackMerge    MessageType = "stack_merge"
	TypeStackMove     MessageType = "stack_move"
	TypeStackShuffle  MessageType = "stack_shuffle"
	TypeStackTake     MessageType = "stack_take"
	TypeStackDraw     MessageType = "stack_draw"
	TypeStackName     MessageType = "stack_name"
	TypeDiceRoll      MessageType = "dice_roll"
	TypeCounterUpdate MessageType = "counter_update"
	TypeNoteEdit      MessageType = "note_edit"
	TypeTokenMove     MessageType = "token_move"
	TypeCursor        MessageType = "cursor"
	TypeHandCount     MessageType = "hand_count"
)

// Server-to-client event kinds.
const (
	TypeWelcome            MessageType = "welcome"
	TypeError              MessageType = "error"
	TypePlayerJoined       MessageType = "player_joined"
	TypePlayerLeft         MessageType = "player_left"
	TypePlayerConnected    MessageType = "player_connected"
	TypePlayerDisconnected MessageType = "player_disconnected"
	TypeHostChanged        MessageType = "host_changed"
	TypeRoomStarted        MessageType = "room_started"
	TypeCardPlayed         MessageType = "card_played"
	TypeStackCreated       MessageType = "stack_created"
	TypeStackMerged        MessageType = "stack_merged"
	TypeStackShuffled      MessageType = "stack_shuffled"
	TypeStackTaken         MessageType = "stack_taken"
	TypeStackRemoved       MessageType = "stack_removed"
	TypeStackUpdate        MessageType = "stack_update"
	TypeDrawResponse       MessageType = "draw_response"
	TypePlayerHandCount    MessageType = "player_hand_count"
)

// Envelope is the outer frame for every message on the live channel.
// Unrecognized payload fields are ignored during decode.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode parses a raw frame into an envelope.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(raw, &env)
	return env, err
}

// Encode marshals a payload under the given message type.
func Encode(t MessageType, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return json.Marshal(Envelope{Type: t, Data: data})
}

// ==================== Client action payloads ====================

type CardMove struct {
	CardID string  `json:"card_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type CardFlip struct {
	CardID   string `json:"card_id"`
	FaceDown bool   `json:"face_down"`
}

type CardRotate struct {
	CardID   string  `json:"card_id"`
	Rotation float64 `json:"rotation"`
}

// CardPlay places a card from the acting player's hand onto the table.
// CardID is optional; the server assigns one when absent so retries are
// idempotent on the client's side.
type CardPlay struct {
	CardID     string  `json:"card_id,omitempty"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	FaceDown   bool    `json:"face_down"`
	CategoryID string  `json:"category_id,omitempty"`
	BackID     string  `json:"back_id,omitempty"`
}

type StackCreate struct {
	StackID string   `json:"stack_id,omitempty"`
	CardIDs []string `json:"card_ids"`
	X       float64  `json:"x"`
	Y       float64  `json:"y"`
}

type StackMerge struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

type StackMove struct {
	StackID string  `json:"stack_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

type StackShuffle struct {
	StackID string `json:"stack_id"`
}

// StackTake pops the top card off a stack and drops it at (x, y).
type StackTake struct {
	StackID string  `json:"stack_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

type StackDraw struct {
	StackID string `json:"stack_id"`
	Count   int    `json:"count"`
}

type StackName struct {
	StackID string `json:"stack_id"`
	Name    string `json:"name"`
}

// DiceRoll reports a client-side roll. X/Y are present only when the roll
// also moved the die; a nil pair means the die rolled in place.
type DiceRoll struct {
	DieID string   `json:"die_id"`
	X     *float64 `json:"x,omitempty"`
	Y     *float64 `json:"y,omitempty"`
	Value int      `json:"value"`
}

type CounterUpdate struct {
	CounterID string `json:"counter_id"`
	Value     int    `json:"value"`
}

type NoteEdit struct {
	NoteID string  `json:"note_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Text   string  `json:"text"`
}

type TokenMove struct {
	TokenID string  `json:"token_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type HandCount struct {
	Count int `json:"count"`
}

// ==================== Server event payloads ====================

// PlayerInfo is the public view of a player. Hand contents are never part
// of it, only the count.
type PlayerInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Color         string `json:"color"`
	Seat          int    `json:"seat"`
	IsHost        bool   `json:"is_host"`
	IsConnected   bool   `json:"is_connected"`
	HandCardCount int    `json:"hand_card_count"`
}

// Welcome is the full snapshot sent to a connection right after it binds.
// It is the sole reconciliation mechanism after a disconnect.
type Welcome struct {
	RoomCode     string       `json:"room_code"`
	GameID       string       `json:"game_id"`
	Status       string       `json:"status"`
	HostPlayerID string       `json:"host_player_id"`
	Players      []PlayerInfo `json:"players"`
	Zones        []board.Zone `json:"zones"`
	Board        *board.State `json:"board"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type PlayerEvent struct {
	Player PlayerInfo `json:"player"`
}

type HostChanged struct {
	PlayerID string `json:"player_id"`
}

type RoomStarted struct {
	Zones   []board.Zone `json:"zones"`
	Board   *board.State `json:"board"`
	Players []PlayerInfo `json:"players"`
}

type CardPlayed struct {
	PlayerID string     `json:"player_id"`
	Card     board.Card `json:"card"`
}

type StackCreated struct {
	Stack board.Stack `json:"stack"`
}

type StackMerged struct {
	SourceID string      `json:"source_id"`
	Stack    board.Stack `json:"stack"`
}

// StackShuffled carries the full new order; a shuffle has no meaningful diff.
type StackShuffled struct {
	StackID string       `json:"stack_id"`
	Cards   []board.Card `json:"cards"`
}

// StackTaken announces that the top card left a stack and became loose.
type StackTaken struct {
	StackID   string     `json:"stack_id"`
	PlayerID  string     `json:"player_id"`
	Card      board.Card `json:"card"`
	Remaining int        `json:"remaining"`
}

// StackRemoved announces that a stack ceased to exist, either emptied or
// flattened. Card is the loose card left behind by a flatten, if any.
type StackRemoved struct {
	StackID string      `json:"stack_id"`
	Card    *board.Card `json:"card,omitempty"`
}

type StackUpdate struct {
	StackID string `json:"stack_id"`
	Size    int    `json:"size"`
}

// DrawResponse is unicast to the drawing player only; drawn cards never
// enter the shared board state.
type DrawResponse struct {
	StackID string       `json:"stack_id"`
	Cards   []board.Card `json:"cards"`
}

type CursorEvent struct {
	PlayerID string  `json:"player_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type PlayerHandCount struct {
	PlayerID string `json:"player_id"`
	Count    int    `json:"count"`
}
