// Package search ranks persistence-layer search hits for the conversational
// search directive. The top results are cached by the session so follow-up
// references like "open the first one" resolve deterministically.
package search

import (
	"sort"
	"strings"
	"time"

	"github.com/smartlife/capture/internal/domain"
)

type scored struct {
	event domain.PersistedEvent
	score float64
}

// Rank orders candidate events by textual match strength, breaking ties in
// favor of events closer to now. Returns at most topK results.
func Rank(candidates []domain.PersistedEvent, query string, now time.Time, topK int) []domain.PersistedEvent {
	if topK <= 0 {
		topK = 5
	}
	terms := strings.Fields(strings.ToLower(query))

	ranked := make([]scored, 0, len(candidates))
	for _, ev := range candidates {
		ranked = append(ranked, scored{event: ev, score: score(ev, terms, now)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	out := make([]domain.PersistedEvent, len(ranked))
	for i, r := range ranked {
		out[i] = r.event
	}
	return out
}

func score(ev domain.PersistedEvent, terms []string, now time.Time) float64 {
	title := strings.ToLower(ev.Title)
	desc := strings.ToLower(ev.Description)

	var s float64
	for _, term := range terms {
		if strings.Contains(title, term) {
			s += 2.0
		}
		if strings.Contains(desc, term) {
			s += 1.0
		}
	}

	// Nearer events edge out equally matching distant ones.
	distance := ev.Start.Sub(now)
	if distance < 0 {
		distance = -distance
	}
	days := distance.Hours() / 24
	s += 1.0 / (1.0 + days)

	return s
}
