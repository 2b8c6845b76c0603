package types

import "fmt"

// FullPipeline is the complete stage sequence in execution order.
var FullPipeline = []Stage{StageIngest, StageBronze, StageSilver}

// ParseStages maps stage names from a task payload or CLI to typed
// stages. "full_etl" expands to the complete pipeline; an empty list
// defaults to it.
func ParseStages(names []string) ([]Stage, error) {
	if len(names) == 0 {
		return FullPipeline, nil
	}
	var stages []Stage
	for _, name := range names {
		switch Stage(name) {
		case StageIngest, StageBronze, StageSilver:
			stages = append(stages, Stage(name))
		case "full_etl":
			return FullPipeline, nil
		default:
			return nil, fmt.Errorf("unknown stage: %s", name)
		}
	}
	return stages, nil
}
