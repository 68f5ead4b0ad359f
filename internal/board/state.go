package board

// Card is a loose card lying on the table.
type Card struct {
	ID         string  `json:"id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          int     `json:"z"`
	FaceDown   bool    `json:"face_down"`
	Rotation   float64 `json:"rotation"`
	CategoryID string  `json:"category_id,omitempty"`
	BackID     string  `json:"back_id,omitempty"`
}

// Stack is an ordered group of cards moved as a single unit.
// Cards are ordered bottom to top; the top card is the last element.
type Stack struct {
	ID    string  `json:"id"`
	Cards []Card  `json:"cards"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label,omitempty"`
}

// Top returns the top card of the stack. The second return value is false
// for an empty stack.
func (s *Stack) Top() (Card, bool) {
	if len(s.Cards) == 0 {
		return Card{}, false
	}
	return s.Cards[len(s.Cards)-1], true
}

// Counter is a numeric counter on the table.
type Counter struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Value  int     `json:"value"`
	Locked bool    `json:"locked,omitempty"`
}

// Die is a single die with its last rolled value.
type Die struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Sides int     `json:"sides"`
	Value int     `json:"value"`
}

// Token is a generic movable marker.
type Token struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Color  string  `json:"color,omitempty"`
	Locked bool    `json:"locked,omitempty"`
}

// Note is a free-text note placed on the table.
type Note struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Text   string  `json:"text"`
	Locked bool    `json:"locked,omitempty"`
}

// State is the shared mutable document for one room. It carries no behavior
// beyond lookup helpers; all mutation policy lives in the action processor,
// which holds the owning room's lock while touching it.
type State struct {
	Cards      []Card            `json:"cards"`
	Stacks     []Stack           `json:"stacks"`
	Counters   []Counter         `json:"counters"`
	Dice       []Die             `json:"dice"`
	Tokens     []Token           `json:"tokens"`
	Notes      []Note            `json:"notes"`
	StackNames map[string]string `json:"stack_names"`
}

// NewState returns an empty board.
func NewState() *State {
	return &State{
		Cards:      make([]Card, 0),
		Stacks:     make([]Stack, 0),
		Counters:   make([]Counter, 0),
		Dice:       make([]Die, 0),
		Tokens:     make([]Token, 0),
		Notes:      make([]Note, 0),
		StackNames: make(map[string]string),
	}
}

// FindCard returns a pointer into the loose-card slice, or nil.
func (st *State) FindCard(id string) *Card {
	for i := range st.Cards {
		if st.Cards[i].ID == id {
			return &st.Cards[i]
		}
	}
	return nil
}

// RemoveCard deletes a loose card by id and reports whether it existed.
func (st *State) RemoveCard(id string) (Card, bool) {
	for i := range st.Cards {
		if st.Cards[i].ID == id {
			card := st.Cards[i]
			st.Cards = append(st.Cards[:i], st.Cards[i+1:]...)
			return card, true
		}
	}
	return Card{}, false
}

// FindStack returns a pointer into the stack slice, or nil.
func (st *State) FindStack(id string) *Stack {
	for i := range st.Stacks {
		if st.Stacks[i].ID == id {
			return &st.Stacks[i]
		}
	}
	return nil
}

// RemoveStack deletes a stack by id along with its stack-name entry.
func (st *State) RemoveStack(id string) bool {
	for i := range st.Stacks {
		if st.Stacks[i].ID == id {
			st.Stacks = append(st.Stacks[:i], st.Stacks[i+1:]...)
			delete(st.StackNames, id)
			return true
		}
	}
	return false
}

// NextZ returns a z value above every loose card currently on the table.
func (st *State) NextZ() int {
	max := 0
	for i := range st.Cards {
		if st.Cards[i].Z > max {
			max = st.Cards[i].Z
		}
	}
	return max + 1
}

// Clone returns a deep copy of the board, safe to read after the owning
// room's lock is released.
func (st *State) Clone() *State {
	out := &State{
		Cards:      append([]Card(nil), st.Cards...),
		Stacks:     make([]Stack, len(st.Stacks)),
		Counters:   append([]Counter(nil), st.Counters...),
		Dice:       append([]Die(nil), st.Dice...),
		Tokens:     append([]Token(nil), st.Tokens...),
		Notes:      append([]Note(nil), st.Notes...),
		StackNames: make(map[string]string, len(st.StackNames)),
	}
	for i := range st.Stacks {
		out.Stacks[i] = st.Stacks[i]
		out.Stacks[i].Cards = append([]Card(nil), st.Stacks[i].Cards...)
	}
	for k, v := range st.StackNames {
		out.StackNames[k] = v
	}
	return out
}

// Flatten dissolves a stack that has been reduced to one or zero cards.
// A remaining card becomes a loose card at the stack's position. Returns the
// flattened card (if any) and whether the stack existed and was dissolved.
// Stacks with two or more cards are left alone.
func (st *State) Flatten(stackID string) (Card, bool, bool) {
	stack := st.FindStack(stackID)
	if stack == nil || len(stack.Cards) > 1 {
		return Card{}, false, false
	}

	var card Card
	hadCard := false
	if len(stack.Cards) == 1 {
		card = stack.Cards[0]
		card.X = stack.X
		card.Y = stack.Y
		card.Z = st.NextZ()
		hadCard = true
	}

	st.RemoveStack(stackID)
	if hadCard {
		st.Cards = append(st.Cards, card)
	}
	return card, hadCard, true
}
