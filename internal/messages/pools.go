package messages

import "hydrobot/internal/domain"

// Fallback is sent when a pool has no entries.
const Fallback = "⚠️ No reminder text is configured for this interval, but please drink some water 💧"

var shortPool = []string{
	"💧 Time to drink a little water! 💧",
	"💧 Time for a glass of water, half full 💧",
	"💧 Time for a glass of water, half empty 💧",
	"💧 Time to drink some water, and nothing else 👀 💧",
	"🐟 : bl.oupb.loup.upb bloup.b.upblo\n🤖 : The fish is asking you to drink some water",
	"💧 It's tiiime, time to drink some waaateeer 💧",
	"💧 Time to drink some water. No, your tears do not count 💧",
	"💧 Time to drink some water. Careful not to spill it, water is wet 💧",
	"💧 Time to drink some water. No, eating an ice cube does not count 💧",
	"💧 Time to drink some water. 💧",
}

var mediumPool = []string{
	"💧 Time for a glass of water! 💧",
	"Hi. I have a gift for you: 🎁\n\nIt's a glass of water 🥤 that you have to drink, because...\n💧 It's time for a glass of water! 💧",
	"💧 Time for a glass of water! 💧\nMake sure there is no fish in your glass before drinking.\nIf there is, fill another glass and put the fish in it. Then enjoy your water.",
	"iT'z tyme 2 dRinK a glasss ov watr",
	"*Now is the moment, I leave the noise behind,\nThe quiet hour when body eases mind.\nWith both my hands I lift the jug of stone,\nAnd drinking turns to prayer of its own.*\n\nIn short: drink a glass of water.",
	"Meet Sushi the fish: 🐟\n\nDo you know what you and Sushi have in common?\n\nYou both drink water. Speaking of which...\n💧 It's time for a glass of water! 💧",
}

var longPool = []string{
	"💧 Time to drink a good amount of water! 💧",
	"Long ago there lived a king everyone called the Water King.\n" +
		"He gave his people free and unlimited water, yet many still died of thirst: they never drank because they never felt thirsty.\n" +
		"So the king created a squad called 'the Drinkers', tasked with finding the unthirsty and making them drink.\n" +
		"Nobody knew how the squad did it. What was certain is that those taken drank much better afterwards.\n\n" +
		"💧 In short, time to drink a good amount of water! And watch out for anyone following you 💧",
	"🐟 🐠 🐟 🐠 🐟 🐠 🐟 🐠 🐟 🐠 🐟 🐠 🐟\n\nOh no, it's the Fish Squad, a gang of very dangerous fish.\nQuick! Drink a good amount of water to save yourself.",
	"💧 Time to drink a good amount of water! No need to drink a whole lake though. 💧",
}

// Pools maps each message type to its default texts.
type Pools map[domain.MessageType][]string

// DefaultPools returns a fresh copy of the built-in pools.
func DefaultPools() Pools {
	return Pools{
		domain.MessageShort:  append([]string(nil), shortPool...),
		domain.MessageMedium: append([]string(nil), mediumPool...),
		domain.MessageLong:   append([]string(nil), longPool...),
	}
}

// Contains reports whether text is one of the pool entries for t.
func (p Pools) Contains(t domain.MessageType, text string) bool {
	for _, s := range p[t] {
		if s == text {
			return true
		}
	}
	return false
}
