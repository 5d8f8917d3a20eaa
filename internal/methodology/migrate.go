package methodology

import "taskboard/internal/models"

// Bucket groups statuses of equivalent intent across methodologies.
type Bucket struct {
	Name    string   `yaml:"name" json:"name"`
	Members []string `yaml:"members" json:"members"`
}

// Buckets is the ordered migration table. A status belongs to the first
// bucket that lists it.
type Buckets []Bucket

// Lookup finds the bucket a status belongs to.
func (b Buckets) Lookup(status string) (Bucket, bool) {
	for _, bucket := range b {
		for _, member := range bucket.Members {
			if member == status {
				return bucket, true
			}
		}
	}
	return Bucket{}, false
}

// Migrate returns the stage of target that best matches oldStatus.
// Identity wins, then the first bucket member present in target, then the
// index-0 stage. The result is always a stage id of target.
func Migrate(oldStatus string, target []models.Stage, buckets Buckets) string {
	if _, ok := FindStage(target, oldStatus); ok {
		return oldStatus
	}
	if id, ok := bucketMatch(oldStatus, target, buckets); ok {
		return id
	}
	return target[0].ID
}

func bucketMatch(status string, target []models.Stage, buckets Buckets) (string, bool) {
	bucket, ok := buckets.Lookup(status)
	if !ok {
		return "", false
	}
	for _, member := range bucket.Members {
		if _, ok := FindStage(target, member); ok {
			return member, true
		}
	}
	return "", false
}

// Gap is a stage whose migration falls through to the target's first stage.
type Gap struct {
	Status   string `json:"status"`
	Fallback string `json:"fallback"`
}

// CoverageGaps lists the stages of from that neither exist in to nor have a
// bucket equivalent there.
func CoverageGaps(from, to models.Methodology, buckets Buckets) []Gap {
	var gaps []Gap
	for _, s := range from.Stages {
		if _, ok := FindStage(to.Stages, s.ID); ok {
			continue
		}
		if _, ok := bucketMatch(s.ID, to.Stages, buckets); ok {
			continue
		}
		gaps = append(gaps, Gap{Status: s.ID, Fallback: to.Stages[0].ID})
	}
	return gaps
}
