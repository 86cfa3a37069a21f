package overlap

import (
	"reflect"
	"testing"
	"time"

	"github.com/jharlow/foreman/pkg/models"
)

func leaf(id string, created time.Time, footprint ...string) *models.WorkItem {
	return &models.WorkItem{
		ID:        id,
		Kind:      models.KindTask,
		Status:    models.StatusPending,
		Footprint: footprint,
		CreatedAt: created,
	}
}

func TestComputeGroupsAllIndependent(t *testing.T) {
	base := time.Now()
	result := ComputeGroups([]*models.WorkItem{
		leaf("t-1", base, "a.go"),
		leaf("t-2", base, "b.go"),
		leaf("t-3", base, "c.go"),
	})

	want := []string{"t-1", "t-2", "t-3"}
	if !reflect.DeepEqual(result.Independent, want) {
		t.Errorf("expected independent %v, got %v", want, result.Independent)
	}
	if len(result.Groups) != 0 {
		t.Errorf("expected no groups, got %d", len(result.Groups))
	}
}

func TestComputeGroupsSharedFootprint(t *testing.T) {
	base := time.Now()
	result := ComputeGroups([]*models.WorkItem{
		leaf("t-2", base.Add(time.Minute), "a.txt"),
		leaf("t-1", base, "a.txt"),
	})

	if len(result.Independent) != 0 {
		t.Errorf("expected no independent tasks, got %v", result.Independent)
	}
	if len(result.Groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(result.Groups))
	}
	want := []string{"t-1", "t-2"}
	if !reflect.DeepEqual(result.Groups[0].Members, want) {
		t.Errorf("expected merge order %v, got %v", want, result.Groups[0].Members)
	}
}

func TestComputeGroupsTransitiveConflict(t *testing.T) {
	// t-1 and t-2 share a.go; t-2 and t-3 share b.go. All three are one
	// component even though t-1 and t-3 never touch the same file.
	base := time.Now()
	result := ComputeGroups([]*models.WorkItem{
		leaf("t-1", base, "a.go"),
		leaf("t-2", base.Add(time.Second), "a.go", "b.go"),
		leaf("t-3", base.Add(2*time.Second), "b.go"),
		leaf("t-4", base, "other.go"),
	})

	if !reflect.DeepEqual(result.Independent, []string{"t-4"}) {
		t.Errorf("expected independent [t-4], got %v", result.Independent)
	}
	if len(result.Groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(result.Groups))
	}
	want := []string{"t-1", "t-2", "t-3"}
	if !reflect.DeepEqual(result.Groups[0].Members, want) {
		t.Errorf("expected members %v, got %v", want, result.Groups[0].Members)
	}
}

func TestComputeGroupsEmptyFootprintAlwaysIndependent(t *testing.T) {
	base := time.Now()
	result := ComputeGroups([]*models.WorkItem{
		leaf("t-1", base, "a.go"),
		leaf("t-2", base, "a.go"),
		leaf("t-3", base),
	})

	if !reflect.DeepEqual(result.Independent, []string{"t-3"}) {
		t.Errorf("expected independent [t-3], got %v", result.Independent)
	}
}

func TestComputeGroupsMergeOrderByCreationTime(t *testing.T) {
	// t-9 was created first, so it leads the merge order despite sorting
	// after t-1 lexically.
	base := time.Now()
	result := ComputeGroups([]*models.WorkItem{
		leaf("t-1", base.Add(time.Hour), "shared.go"),
		leaf("t-9", base, "shared.go"),
	})

	if len(result.Groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(result.Groups))
	}
	want := []string{"t-9", "t-1"}
	if !reflect.DeepEqual(result.Groups[0].Members, want) {
		t.Errorf("expected merge order %v, got %v", want, result.Groups[0].Members)
	}
}

func TestComputeGroupsNoPathNormalization(t *testing.T) {
	// "./a.go" and "a.go" are different keys by design.
	base := time.Now()
	result := ComputeGroups([]*models.WorkItem{
		leaf("t-1", base, "./a.go"),
		leaf("t-2", base, "a.go"),
	})

	want := []string{"t-1", "t-2"}
	if !reflect.DeepEqual(result.Independent, want) {
		t.Errorf("expected independent %v, got %v", want, result.Independent)
	}
}

func TestComputeGroupsDeterministic(t *testing.T) {
	base := time.Now()
	input := func() []*models.WorkItem {
		return []*models.WorkItem{
			leaf("t-3", base.Add(3*time.Second), "x.go", "y.go"),
			leaf("t-1", base.Add(time.Second), "x.go"),
			leaf("t-5", base, "z.go"),
			leaf("t-2", base.Add(2*time.Second), "y.go"),
			leaf("t-4", base, "w.go"),
		}
	}

	first := ComputeGroups(input())
	second := ComputeGroups(input())

	if !reflect.DeepEqual(first.Independent, second.Independent) {
		t.Errorf("independent sets differ: %v vs %v", first.Independent, second.Independent)
	}
	if len(first.Groups) != len(second.Groups) {
		t.Fatalf("group counts differ: %d vs %d", len(first.Groups), len(second.Groups))
	}
	for i := range first.Groups {
		if !reflect.DeepEqual(first.Groups[i].Members, second.Groups[i].Members) {
			t.Errorf("group %d merge order differs: %v vs %v", i, first.Groups[i].Members, second.Groups[i].Members)
		}
	}
}

func TestGroupFor(t *testing.T) {
	base := time.Now()
	result := ComputeGroups([]*models.WorkItem{
		leaf("t-1", base, "a.go"),
		leaf("t-2", base.Add(time.Second), "a.go"),
		leaf("t-3", base, "b.go"),
	})

	if g := result.GroupFor("t-2"); g == nil {
		t.Error("expected t-2 to belong to a group")
	}
	if g := result.GroupFor("t-3"); g != nil {
		t.Errorf("expected t-3 to belong to no group, got %v", g.Members)
	}
}
