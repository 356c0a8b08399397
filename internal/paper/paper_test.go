package paper

import "testing"

func TestIdentityPrefersID(t *testing.T) {
	withID := Paper{ID: "abc123", Title: "Some Paper"}
	titleOnly := Paper{Title: "Some Paper"}

	if withID.Identity() == titleOnly.Identity() {
		t.Error("an ID-bearing paper must not collide with a title-only paper")
	}
	renamed := Paper{ID: "abc123", Title: "Different Title"}
	if withID.Identity() != renamed.Identity() {
		t.Error("identity must follow the ID when present, not the title")
	}
	sameTitle := Paper{Title: "Some Paper"}
	if titleOnly.Identity() != sameTitle.Identity() {
		t.Error("title-only papers with equal titles must share identity")
	}
}

func TestKeysReachIDLessTwin(t *testing.T) {
	full := Paper{ID: "abc123", Title: "Some Paper"}
	keys := full.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected an id key and a title key, got %v", keys)
	}

	titleOnly := Paper{Title: "Some Paper"}
	found := false
	for _, k := range keys {
		if k == titleOnly.Identity() {
			found = true
		}
	}
	if !found {
		t.Error("an id-less record of the same work must share a key with the full record")
	}

	if got := titleOnly.Keys(); len(got) != 1 || got[0] != titleOnly.Identity() {
		t.Errorf("title-only paper keys = %v", got)
	}
}

func TestSame(t *testing.T) {
	a := Paper{ID: "abc123", Title: "A"}
	b := Paper{ID: "abc123", Title: "B"}
	if !a.Same(b) {
		t.Error("papers with equal IDs are the same paper")
	}
	c := Paper{Title: "Exact Title"}
	d := Paper{Title: "Exact Title"}
	if !c.Same(d) {
		t.Error("title-only papers match on exact title")
	}
	if c.Same(Paper{Title: "exact title"}) {
		t.Error("title matching is exact, not case-folded")
	}
}

func TestThreadAppendAndFrontier(t *testing.T) {
	spawn := Paper{ID: "abc", Title: "Spawn", Year: 2017}
	th := NewThread("some theme", spawn)

	if th.Frontier().Title != "Spawn" {
		t.Errorf("frontier of a fresh thread = %q", th.Frontier().Title)
	}
	if th.SpawnYear != 2017 {
		t.Errorf("spawnYear = %d", th.SpawnYear)
	}
	if th.Grew() {
		t.Error("a fresh thread has not grown")
	}

	th.Append(Paper{ID: "def", Title: "Next", Year: 2018}, "follows directly")
	if th.Frontier().Title != "Next" {
		t.Errorf("frontier after append = %q", th.Frontier().Title)
	}
	if th.Frontier().SelectionReason != "follows directly" {
		t.Error("append must record the selection reason")
	}
	if !th.Grew() {
		t.Error("thread with two papers has grown")
	}
	if th.PapersInYear(2018) != 1 || th.PapersInYear(2019) != 0 {
		t.Error("PapersInYear miscounts")
	}
}

func TestSummarizeIncludesSubThreads(t *testing.T) {
	th := NewThread("parent", Paper{ID: "a", Title: "Root", Year: 2017})
	sub := NewThread("child", Paper{ID: "b", Title: "Fork", Year: 2019})
	th.SubThreads = append(th.SubThreads, sub)

	s := th.Summarize()
	if s.SpawnTitle != "Root" || len(s.SubThreads) != 1 {
		t.Fatalf("summary = %+v", s)
	}
	if s.SubThreads[0].Theme != "child" {
		t.Errorf("sub summary theme = %q", s.SubThreads[0].Theme)
	}
}
