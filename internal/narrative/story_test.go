package narrative

import (
	"reflect"
	"strings"
	"testing"

	"autodash-backend/internal/models"
)

func TestSuggestStory_OrdersByStage(t *testing.T) {
	charts := []models.ChartSpec{
		{ID: "detail", Title: "Raw rows", Type: models.ChartTable},
		{ID: "trend", Title: "Sales over time", Type: models.ChartLine},
		{ID: "share", Title: "Sales by region", Type: models.ChartDonut},
		{ID: "rel", Title: "Price vs volume", Type: models.ChartScatter},
		{ID: "comp", Title: "Sales by product", Type: models.ChartBar},
	}

	suggestion, err := SuggestStory(charts)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"share", "trend", "comp", "rel", "detail"}
	if !reflect.DeepEqual(suggestion.OrderedIDs, want) {
		t.Errorf("order = %v, want %v", suggestion.OrderedIDs, want)
	}
	if !strings.HasPrefix(suggestion.Text, "Suggested order: Sales by region > ") {
		t.Errorf("text = %q", suggestion.Text)
	}
	if !strings.Contains(suggestion.Text, "composition overview") {
		t.Errorf("text missing opening stage: %q", suggestion.Text)
	}
}

func TestSuggestStory_StableWithinStage(t *testing.T) {
	// Two charts of the same stage keep their user-given order.
	charts := []models.ChartSpec{
		{ID: "line1", Type: models.ChartLine},
		{ID: "line2", Type: models.ChartLine},
		{ID: "donut", Type: models.ChartDonut},
		{ID: "bar", Type: models.ChartBar},
	}

	suggestion, err := SuggestStory(charts)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"donut", "line1", "line2", "bar"}
	if !reflect.DeepEqual(suggestion.OrderedIDs, want) {
		t.Errorf("order = %v, want %v", suggestion.OrderedIDs, want)
	}
}

func TestSuggestStory_TooFewCharts(t *testing.T) {
	charts := []models.ChartSpec{
		{ID: "a", Type: models.ChartBar},
		{ID: "b", Type: models.ChartLine},
		{ID: "c", Type: models.ChartDonut},
	}
	if _, err := SuggestStory(charts); err == nil {
		t.Error("expected error below the chart minimum")
	}
}

func TestSuggestStory_Deterministic(t *testing.T) {
	charts := []models.ChartSpec{
		{ID: "a", Title: "A", Type: models.ChartTable},
		{ID: "b", Title: "B", Type: models.ChartLine},
		{ID: "c", Title: "C", Type: models.ChartDonut},
		{ID: "d", Title: "D", Type: models.ChartScatter},
	}

	first, err := SuggestStory(charts)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, _ := SuggestStory(charts)
		if !reflect.DeepEqual(again, first) {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
}
