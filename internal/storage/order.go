package storage

import (
	"sort"

	"github.com/mcoot/typeroom/internal/model"
)

// SortParticipants orders participants by join time, then user ID
func SortParticipants(ps []model.Participant) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].JoinedAt.Equal(ps[j].JoinedAt) {
			return ps[i].JoinedAt.Before(ps[j].JoinedAt)
		}
		return ps[i].UserID < ps[j].UserID
	})
}

// SortResults orders results by user ID. Results are not ranked.
func SortResults(rs []model.Result) {
	sort.Slice(rs, func(i, j int) bool {
		return rs[i].UserID < rs[j].UserID
	})
}
