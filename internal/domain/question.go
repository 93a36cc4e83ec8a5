package domain

const (
	MinLevel = 1
	MaxLevel = 5
)

// Question is an immutable entry from the external question bank. Sessions
// reference questions by id and never own them.
type Question struct {
	ID              string   `json:"id" yaml:"id"`
	BloomLevel      int      `json:"bloom_level" yaml:"bloom_level"`
	Difficulty      int      `json:"difficulty" yaml:"difficulty"`
	Prompt          string   `json:"prompt" yaml:"prompt"`
	ReferenceAnswer string   `json:"-" yaml:"reference_answer"`
	Misconceptions  []string `json:"-" yaml:"misconceptions"`
}

// TargetsAny reports whether the question is tagged with any of the given
// misconceptions.
func (q Question) TargetsAny(misconceptions map[string]struct{}) bool {
	for _, m := range q.Misconceptions {
		if _, ok := misconceptions[m]; ok {
			return true
		}
	}
	return false
}
