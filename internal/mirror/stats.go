package mirror

import "time"

// Stats summarizes what one orchestrator run wrote.
type Stats struct {
	Items       int
	RankRecords int
}

func (s Stats) add(o Stats) Stats {
	return Stats{
		Items:       s.Items + o.Items,
		RankRecords: s.RankRecords + o.RankRecords,
	}
}

func utcNow() time.Time { return time.Now().UTC() }
