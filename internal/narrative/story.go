package narrative

import (
	"fmt"
	"sort"
	"strings"

	"autodash-backend/internal/models"
)

// storyStage groups chart types by the role they play in a dashboard
// narrative, from broad context down to row-level detail.
var storyStage = map[string]int{
	models.ChartDonut:     0,
	models.ChartTreemap:   0,
	models.ChartSunburst:  0,
	models.ChartFunnel:    0,
	models.ChartLine:      1,
	models.ChartArea:      1,
	models.ChartGantt:     1,
	models.ChartBar:       2,
	models.ChartScatter:   3,
	models.ChartScatter3D: 3,
	models.ChartBubble:    3,
	models.ChartHeatmap:   3,
	models.ChartHistogram: 4,
	models.ChartBox:       4,
	models.ChartViolin:    4,
	models.ChartTable:     5,
}

var stageNames = []string{
	"composition overview",
	"trends over time",
	"category comparisons",
	"relationships between measures",
	"distributions",
	"row-level detail",
}

// MinStoryCharts is the number of charts required before an ordering
// suggestion is meaningful.
const MinStoryCharts = 4

// StorySuggestion is a suggested presentation order for the dashboard.
type StorySuggestion struct {
	OrderedIDs []string `json:"ordered_ids"`
	Text       string   `json:"text"`
}

// SuggestStory orders charts for storytelling: composition first, then
// trends, comparisons, relationships, distributions, and detail last. The
// sort is stable, so charts within a stage keep their user-given order, and
// the result is deterministic for a given chart list.
func SuggestStory(charts []models.ChartSpec) (StorySuggestion, error) {
	if len(charts) < MinStoryCharts {
		return StorySuggestion{}, fmt.Errorf("need at least %d charts for a story suggestion, have %d", MinStoryCharts, len(charts))
	}

	ordered := append([]models.ChartSpec(nil), charts...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return stageOf(ordered[i]) < stageOf(ordered[j])
	})

	ids := make([]string, len(ordered))
	titles := make([]string, len(ordered))
	stagesSeen := map[int]bool{}
	var stages []string
	for i, c := range ordered {
		ids[i] = c.ID
		titles[i] = c.Title
		st := stageOf(c)
		if !stagesSeen[st] {
			stagesSeen[st] = true
			stages = append(stages, stageNames[st])
		}
	}

	text := fmt.Sprintf("Suggested order: %s.", strings.Join(titles, " > "))
	if len(stages) > 1 {
		text = fmt.Sprintf("%s This walks the audience from %s to %s.",
			text, stages[0], stages[len(stages)-1])
	}
	return StorySuggestion{OrderedIDs: ids, Text: text}, nil
}

func stageOf(c models.ChartSpec) int {
	if stage, ok := storyStage[c.Type]; ok {
		return stage
	}
	return len(stageNames) - 1
}
