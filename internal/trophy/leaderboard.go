// Package trophy ranks users by their qualifying test drives.
package trophy

import (
	"slices"
	"sort"
	"strings"

	"github.com/raine/carhunt/internal/storage"
)

type Tier string

const (
	TierElite  Tier = "Elite Hunter"
	TierBest   Tier = "Best Hunter"
	TierHunter Tier = "Hunter"
)

const (
	eliteMinCount = 3
	bestCount     = 2
)

// Qualifying are the test drive statuses that earn a trophy.
var Qualifying = []string{storage.DriveConfirmed, storage.DriveClaimed, storage.DriveCompleted}

// Entry is one user on the leaderboard.
type Entry struct {
	User     storage.UserSummary       `json:"user"`
	Count    int                       `json:"count"`
	Tier     Tier                      `json:"tier"`
	Trophies []storage.TestDriveDetail `json:"trophies"`
}

// Leaderboard lists ranked users per tier.
type Leaderboard struct {
	Elite   []Entry `json:"eliteHunters"`
	Best    []Entry `json:"bestHunters"`
	Hunters []Entry `json:"hunters"`
}

func tierFor(count int) Tier {
	switch {
	case count >= eliteMinCount:
		return TierElite
	case count == bestCount:
		return TierBest
	default:
		return TierHunter
	}
}

// Build groups qualifying drives by user, keeps users whose name or email
// contains search and ranks them by trophy count.
func Build(drives []storage.TestDriveDetail, search string) Leaderboard {
	byUser := make(map[string]*Entry)
	for _, d := range drives {
		if d.User.ID == "" || !slices.Contains(Qualifying, d.Status) {
			continue
		}
		e, ok := byUser[d.User.ID]
		if !ok {
			e = &Entry{User: d.User}
			byUser[d.User.ID] = e
		}
		e.Trophies = append(e.Trophies, d)
	}

	search = strings.ToLower(strings.TrimSpace(search))
	var entries []Entry
	for _, e := range byUser {
		if search != "" &&
			!strings.Contains(strings.ToLower(e.User.Name), search) &&
			!strings.Contains(strings.ToLower(e.User.Email), search) {
			continue
		}
		e.Count = len(e.Trophies)
		e.Tier = tierFor(e.Count)
		entries = append(entries, *e)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.User.Name != b.User.Name {
			return a.User.Name < b.User.Name
		}
		return a.User.ID < b.User.ID
	})

	board := Leaderboard{Elite: []Entry{}, Best: []Entry{}, Hunters: []Entry{}}
	for _, e := range entries {
		switch e.Tier {
		case TierElite:
			board.Elite = append(board.Elite, e)
		case TierBest:
			board.Best = append(board.Best, e)
		default:
			board.Hunters = append(board.Hunters, e)
		}
	}
	return board
}
