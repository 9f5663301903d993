package game

import (
	"therapyroom/internal/model"

	"github.com/cespare/xxhash/v2"
)

// Deck is a fixed list of challenges. The challenge for a round depends only
// on the session id and the round number, so a resynchronizing client and the
// server always agree on it.
type Deck struct {
	cards []model.Challenge
}

// NewDeck creates a deck from cards. An empty list falls back to the built-in vocabulary.
func NewDeck(cards []model.Challenge) *Deck {
	if len(cards) == 0 {
		cards = DefaultVocabulary()
	}
	return &Deck{cards: append([]model.Challenge(nil), cards...)}
}

// Len returns the number of cards.
func (d *Deck) Len() int {
	return len(d.cards)
}

// Next implements ChallengeSource.
func (d *Deck) Next(sessionID string, round int) model.Challenge {
	if round < 1 {
		round = 1
	}
	offset := xxhash.Sum64String(sessionID) % uint64(len(d.cards))
	idx := (offset + uint64(round-1)) % uint64(len(d.cards))

	c := d.cards[idx]
	c.Options = append([]string(nil), c.Options...)
	return c
}

// DefaultVocabulary is the built-in word list
func DefaultVocabulary() []model.Challenge {
	return []model.Challenge{
		{ID: "v01", Word: "enormous", Prompt: "Which word means very big?", Options: []string{"tiny", "enormous", "quiet", "early"}, Answer: "enormous"},
		{ID: "v02", Word: "whisper", Prompt: "Which word means to speak very softly?", Options: []string{"shout", "sing", "whisper", "laugh"}, Answer: "whisper"},
		{ID: "v03", Word: "brave", Prompt: "Which word describes someone who is not afraid?", Options: []string{"brave", "sleepy", "hungry", "shy"}, Answer: "brave"},
		{ID: "v04", Word: "fragile", Prompt: "Which word describes something that breaks easily?", Options: []string{"heavy", "fragile", "sticky", "loud"}, Answer: "fragile"},
		{ID: "v05", Word: "ancient", Prompt: "Which word means very old?", Options: []string{"ancient", "shiny", "modern", "soft"}, Answer: "ancient"},
		{ID: "v06", Word: "swift", Prompt: "Which word means fast?", Options: []string{"slow", "round", "swift", "empty"}, Answer: "swift"},
		{ID: "v07", Word: "damp", Prompt: "Which word means a little wet?", Options: []string{"dry", "damp", "warm", "bright"}, Answer: "damp"},
		{ID: "v08", Word: "gloomy", Prompt: "Which word describes a dark, sad day?", Options: []string{"sunny", "gloomy", "busy", "tidy"}, Answer: "gloomy"},
		{ID: "v09", Word: "generous", Prompt: "Which word describes someone who likes to share?", Options: []string{"greedy", "grumpy", "generous", "silly"}, Answer: "generous"},
		{ID: "v10", Word: "peculiar", Prompt: "Which word means strange or unusual?", Options: []string{"normal", "peculiar", "simple", "plain"}, Answer: "peculiar"},
		{ID: "v11", Word: "exhausted", Prompt: "Which word means very tired?", Options: []string{"exhausted", "excited", "awake", "ready"}, Answer: "exhausted"},
		{ID: "v12", Word: "delicate", Prompt: "Which word means soft and easy to hurt?", Options: []string{"rough", "delicate", "strong", "hard"}, Answer: "delicate"},
	}
}
