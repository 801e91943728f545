package conflictlog

import "time"

// Stats aggregates the conflict log.
type Stats struct {
	Total        int            `json:"total"`
	AutoResolved int            `json:"auto_resolved"`
	Escalated    int            `json:"escalated"`
	Unreviewed   int            `json:"unreviewed"`
	ByTable      map[string]int `json:"by_table"`
	ByEscalation map[string]int `json:"by_escalation"`
	Last24h      int            `json:"last_24h"`
	Last7d       int            `json:"last_7d"`
}

// Stats summarizes the retained entries.
func (l *Log) Stats() (Stats, error) {
	entries, err := l.all()
	if err != nil {
		return Stats{}, err
	}

	now := l.clock.Now()
	dayAgo := now.Add(-24 * time.Hour).UnixMilli()
	weekAgo := now.Add(-7 * 24 * time.Hour).UnixMilli()

	stats := Stats{
		Total:        len(entries),
		ByTable:      make(map[string]int),
		ByEscalation: make(map[string]int),
	}
	for i := range entries {
		e := &entries[i]
		stats.ByTable[e.TableName]++
		if e.AutoResolved {
			stats.AutoResolved++
		} else {
			stats.Escalated++
			if e.Review == nil {
				stats.Unreviewed++
			}
		}
		for _, name := range e.Escalations {
			stats.ByEscalation[name]++
		}
		if e.Timestamp >= dayAgo {
			stats.Last24h++
		}
		if e.Timestamp >= weekAgo {
			stats.Last7d++
		}
	}
	return stats, nil
}
