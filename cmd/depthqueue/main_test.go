package main

import "testing"

func TestNodeSetReusesInstances(t *testing.T) {
	set := nodeSet{}
	first, err := set.get("MarigoldDepthEstimation")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second, err := set.get("MarigoldDepthEstimation")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// One instance per type for the whole drain, or the depth node's model
	// cache is thrown away between jobs.
	if first != second {
		t.Error("nodeSet constructed a second instance for the same type")
	}
	if len(set) != 1 {
		t.Errorf("nodeSet holds %d instances, want 1", len(set))
	}
}

func TestNodeSetUnknownType(t *testing.T) {
	set := nodeSet{}
	if _, err := set.get("NoSuchNode"); err == nil {
		t.Fatal("expected error for unregistered node type")
	}
}
