package board

import "math/rand/v2"

// ShuffleCards permutes the slice in place with a Fisher-Yates shuffle,
// giving every ordering equal probability.
func ShuffleCards(cards []Card) {
	for i := len(cards) - 1; i > 0; i-- {
		j := rand.IntN(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}
