package domain

type SweepTypeOutcome struct {
	ResourceType ResourceType
	Observed     int
	Skipped      int
	Error        string
}

type SweepResult struct {
	ClientID  string
	AccountID string
	Observed  int
	Skipped   int
	Types     []SweepTypeOutcome
}

func (r SweepResult) Failed() int {
	n := 0
	for _, t := range r.Types {
		if t.Error != "" {
			n++
		}
	}
	return n
}
