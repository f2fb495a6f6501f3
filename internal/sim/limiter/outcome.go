package limiter

// Trigger names the occurrence that caused an evaluation.
type Trigger string

const (
	TriggerSpawn       Trigger = "SPAWN"
	TriggerChunkLoad   Trigger = "CHUNK_LOAD"
	TriggerChunkUnload Trigger = "CHUNK_UNLOAD"
	TriggerInspection  Trigger = "INSPECTION"
)

func (t Trigger) Valid() bool {
	switch t {
	case TriggerSpawn, TriggerChunkLoad, TriggerChunkUnload, TriggerInspection:
		return true
	}
	return false
}

// Outcome is reported to recorders after a decision has been applied.
type Outcome struct {
	World    string
	X        int
	Z        int
	Trigger  Trigger
	Decision Decision

	// Applied counts removals the entity owner confirmed.
	Applied int
}

type Recorder interface {
	Record(o Outcome)
}

type Recorders []Recorder

func (rs Recorders) Record(o Outcome) {
	for _, r := range rs {
		if r != nil {
			r.Record(o)
		}
	}
}
