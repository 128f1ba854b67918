package milestone_test

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/easyops/contextengine-go/pkg/milestone"

	cerrors "github.com/easyops/contextengine-go/pkg/core/errors"
)

func testRegistry() *milestone.Registry {
	return milestone.NewRegistry(
		milestone.Milestone{ID: "m-intro", DomainKeys: []string{"basics"}},
		milestone.Milestone{ID: "m-setup", Prerequisites: []string{"m-intro"}, DomainKeys: []string{"install"}},
		milestone.Milestone{ID: "m-payments", Prerequisites: []string{"m-setup"}, DomainKeys: []string{"refund-policy", "billing"}},
		milestone.Milestone{ID: "m-advanced", Prerequisites: []string{"m-payments", "m-setup"}},
	)
}

func TestRegistry_Prerequisites(t *testing.T) {
	r := testRegistry()
	ctx := context.Background()

	prereqs, err := r.Prerequisites(ctx, "m-payments")
	if err != nil {
		t.Fatalf("Prerequisites() error = %v", err)
	}
	if !reflect.DeepEqual(prereqs, []string{"m-setup"}) {
		t.Errorf("Prerequisites() = %v, want [m-setup]", prereqs)
	}

	_, err = r.Prerequisites(ctx, "m-unknown")
	if !errors.Is(err, cerrors.ErrMilestoneNotFound) {
		t.Errorf("Prerequisites(unknown) error = %v, want ErrMilestoneNotFound", err)
	}
}

func TestRegistry_DomainKeys(t *testing.T) {
	r := testRegistry()
	ctx := context.Background()

	keys, err := r.DomainKeys(ctx, "m-payments")
	if err != nil {
		t.Fatalf("DomainKeys() error = %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"refund-policy", "billing"}) {
		t.Errorf("DomainKeys() = %v, want [refund-policy billing]", keys)
	}

	// 无领域键的里程碑返回空列表而非错误
	keys, err = r.DomainKeys(ctx, "m-advanced")
	if err != nil {
		t.Fatalf("DomainKeys() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("DomainKeys() = %v, want empty", keys)
	}
}

func TestRegistry_TransitivePrerequisites(t *testing.T) {
	r := testRegistry()
	ctx := context.Background()

	prereqs, err := r.TransitivePrerequisites(ctx, "m-advanced")
	if err != nil {
		t.Fatalf("TransitivePrerequisites() error = %v", err)
	}

	sort.Strings(prereqs)
	want := []string{"m-intro", "m-payments", "m-setup"}
	if !reflect.DeepEqual(prereqs, want) {
		t.Errorf("TransitivePrerequisites() = %v, want %v", prereqs, want)
	}
}

func TestRegistry_ReturnedSlicesAreCopies(t *testing.T) {
	r := testRegistry()
	ctx := context.Background()

	first, err := r.Prerequisites(ctx, "m-advanced")
	if err != nil {
		t.Fatalf("Prerequisites() error = %v", err)
	}
	first[0] = "tampered"

	second, err := r.Prerequisites(ctx, "m-advanced")
	if err != nil {
		t.Fatalf("Prerequisites() error = %v", err)
	}
	if second[0] == "tampered" {
		t.Error("registry state leaked through returned slice")
	}
}
