package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// ScoreInsight is the score_insights tool's response shape.
type ScoreInsight struct {
	pkg            string
	overallScore   float64
	popularity     float64
	likes          int
	pubPoints      int
	componentNotes map[string]string
	fetchedAt      time.Time
}

// NewScoreInsight validates and constructs a ScoreInsight.
func NewScoreInsight(pkg string, overallScore, popularity float64, likes, pubPoints int, componentNotes map[string]string, fetchedAt time.Time) (ScoreInsight, error) {
	if pkg == "" {
		return ScoreInsight{}, Invalid("score insight: package must not be empty")
	}
	if overallScore < 0 {
		return ScoreInsight{}, Invalid("score insight %q: overallScore must be >= 0, got %v", pkg, overallScore)
	}
	if popularity < 0 || popularity > 1 {
		return ScoreInsight{}, Invalid("score insight %q: popularity must be in [0,1], got %v", pkg, popularity)
	}
	if likes < 0 {
		return ScoreInsight{}, Invalid("score insight %q: likes must be >= 0, got %d", pkg, likes)
	}
	if pubPoints < 0 {
		return ScoreInsight{}, Invalid("score insight %q: pubPoints must be >= 0, got %d", pkg, pubPoints)
	}
	if fetchedAt.IsZero() {
		return ScoreInsight{}, Invalid("score insight %q: fetchedAt must be a non-zero instant", pkg)
	}
	notes := make(map[string]string, len(componentNotes))
	for k, v := range componentNotes {
		notes[strings.ToLower(k)] = v
	}
	return ScoreInsight{
		pkg:            pkg,
		overallScore:   overallScore,
		popularity:     popularity,
		likes:          likes,
		pubPoints:      pubPoints,
		componentNotes: notes,
		fetchedAt:      fetchedAt.UTC(),
	}, nil
}

func (s ScoreInsight) Package() string               { return s.pkg }
func (s ScoreInsight) OverallScore() float64         { return s.overallScore }
func (s ScoreInsight) Popularity() float64           { return s.popularity }
func (s ScoreInsight) Likes() int                    { return s.likes }
func (s ScoreInsight) PubPoints() int                { return s.pubPoints }
func (s ScoreInsight) FetchedAt() time.Time          { return s.fetchedAt }
func (s ScoreInsight) ComponentNotes() map[string]string {
	out := make(map[string]string, len(s.componentNotes))
	for k, v := range s.componentNotes {
		out[k] = v
	}
	return out
}

type scoreInsightJSON struct {
	Package        string            `json:"package"`
	OverallScore   float64           `json:"overallScore"`
	Popularity     float64           `json:"popularity"`
	Likes          int               `json:"likes"`
	PubPoints      int               `json:"pubPoints"`
	ComponentNotes map[string]string `json:"componentNotes"`
	FetchedAt      time.Time         `json:"fetchedAt"`
}

func (s ScoreInsight) MarshalJSON() ([]byte, error) {
	notes := s.componentNotes
	if notes == nil {
		notes = map[string]string{}
	}
	return json.Marshal(scoreInsightJSON{
		Package:        s.pkg,
		OverallScore:   s.overallScore,
		Popularity:     s.popularity,
		Likes:          s.likes,
		PubPoints:      s.pubPoints,
		ComponentNotes: notes,
		FetchedAt:      s.fetchedAt,
	})
}

func (s *ScoreInsight) UnmarshalJSON(data []byte) error {
	var raw scoreInsightJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := NewScoreInsight(raw.Package, raw.OverallScore, raw.Popularity, raw.Likes, raw.PubPoints, raw.ComponentNotes, raw.FetchedAt)
	if err != nil {
		return err
	}
	*s = built
	return nil
}
