package policyopa

import (
	"testing"
	"testing/fstest"
)

func TestBundleHashStableAcrossOrdering(t *testing.T) {
	a := fstest.MapFS{
		"gating.rego": {Data: []byte("package aci.gating\n")},
		"data.json":   {Data: []byte(`{"k":1}`)},
	}
	b := fstest.MapFS{
		"data.json":   {Data: []byte(`{"k":1}`)},
		"gating.rego": {Data: []byte("package aci.gating\n")},
	}

	hashA, err := ComputeBundleHashFromFS(a, ".")
	if err != nil {
		t.Fatalf("hash a: %v", err)
	}
	hashB, err := ComputeBundleHashFromFS(b, ".")
	if err != nil {
		t.Fatalf("hash b: %v", err)
	}
	if hashA != hashB {
		t.Fatalf("hash depends on map ordering: %s vs %s", hashA, hashB)
	}
}

func TestBundleHashIgnoresNonNormativeFiles(t *testing.T) {
	base := fstest.MapFS{
		"gating.rego": {Data: []byte("package aci.gating\n")},
	}
	noisy := fstest.MapFS{
		"gating.rego": {Data: []byte("package aci.gating\n")},
		"README.md":   {Data: []byte("docs")},
		".DS_Store":   {Data: []byte("junk")},
	}

	baseHash, err := ComputeBundleHashFromFS(base, ".")
	if err != nil {
		t.Fatalf("hash base: %v", err)
	}
	noisyHash, err := ComputeBundleHashFromFS(noisy, ".")
	if err != nil {
		t.Fatalf("hash noisy: %v", err)
	}
	if baseHash != noisyHash {
		t.Fatal("non-normative files changed the bundle hash")
	}
}

func TestBundleHashChangesWithContent(t *testing.T) {
	a := fstest.MapFS{"gating.rego": {Data: []byte("package aci.gating\n")}}
	b := fstest.MapFS{"gating.rego": {Data: []byte("package aci.gating\n# changed\n")}}

	hashA, err := ComputeBundleHashFromFS(a, ".")
	if err != nil {
		t.Fatalf("hash a: %v", err)
	}
	hashB, err := ComputeBundleHashFromFS(b, ".")
	if err != nil {
		t.Fatalf("hash b: %v", err)
	}
	if hashA == hashB {
		t.Fatal("content change did not change bundle hash")
	}
}
