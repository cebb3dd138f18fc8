package definition

import (
	"sync"
	"testing"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

func testDefs() []model.DefinitionFile {
	return []model.DefinitionFile{
		{
			Version:  "1.0.0",
			Checksum: "abc123",
			Pages: []model.PageDefinition{
				{ID: "students", Title: "Students", Entity: "Student", Route: "/students", Icon: "school"},
				{ID: "teachers", Title: "Teachers", Entity: "Teacher", Route: "/teachers"},
			},
		},
		{
			Version:  "1.0.0",
			Checksum: "def456",
			Pages: []model.PageDefinition{
				{ID: "classes", Title: "Classes", Entity: "Class", Route: "/classes"},
			},
		},
	}
}

func TestRegistry_GetPage(t *testing.T) {
	r := NewRegistry(testDefs())

	p, ok := r.GetPage("teachers")
	if !ok {
		t.Fatal("GetPage(teachers) not found")
	}
	if p.Title != "Teachers" {
		t.Errorf("Title = %q, want Teachers", p.Title)
	}

	if _, ok := r.GetPage("unknown"); ok {
		t.Error("GetPage(unknown) should not be found")
	}
}

func TestRegistry_AllPages_load_order(t *testing.T) {
	r := NewRegistry(testDefs())
	pages := r.AllPages()
	if len(pages) != 3 {
		t.Fatalf("AllPages() = %d, want 3", len(pages))
	}
	want := []string{"students", "teachers", "classes"}
	for i, p := range pages {
		if p.ID != want[i] {
			t.Errorf("AllPages()[%d] = %q, want %q", i, p.ID, want[i])
		}
	}
	if r.Count() != 3 {
		t.Errorf("Count() = %d, want 3", r.Count())
	}
}

func TestRegistry_Summaries(t *testing.T) {
	r := NewRegistry(testDefs())
	s := r.Summaries()
	if len(s) != 3 {
		t.Fatalf("Summaries() = %d, want 3", len(s))
	}
	want := model.PageSummary{ID: "students", Title: "Students", Entity: "Student", Route: "/students", Icon: "school"}
	if s[0] != want {
		t.Errorf("Summaries()[0] = %+v, want %+v", s[0], want)
	}
}

func TestRegistry_Checksum(t *testing.T) {
	r := NewRegistry(testDefs())
	if r.Checksum() == "" {
		t.Fatal("Checksum() should not be empty")
	}

	defs := testDefs()
	defs[0], defs[1] = defs[1], defs[0]
	if NewRegistry(defs).Checksum() != r.Checksum() {
		t.Error("Checksum() should not depend on file order")
	}
}

func TestRegistry_Replace(t *testing.T) {
	r := NewRegistry(testDefs())
	old := r.Checksum()

	r.Replace([]model.DefinitionFile{{
		Version:  "2.0.0",
		Checksum: "new",
		Pages:    []model.PageDefinition{{ID: "parents", Title: "Parents"}},
	}})

	if _, ok := r.GetPage("students"); ok {
		t.Error("students should be gone after Replace")
	}
	if _, ok := r.GetPage("parents"); !ok {
		t.Error("parents should exist after Replace")
	}
	if r.Checksum() == old {
		t.Error("Checksum() should change after Replace")
	}
}

func TestRegistry_empty(t *testing.T) {
	r := NewRegistry(nil)
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
	if len(r.AllPages()) != 0 {
		t.Error("AllPages() should be empty")
	}
}

func TestRegistry_concurrent_reads(t *testing.T) {
	r := NewRegistry(testDefs())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.GetPage("students")
			r.Summaries()
		}()
		go func() {
			defer wg.Done()
			r.Replace(testDefs())
		}()
	}
	wg.Wait()
	if _, ok := r.GetPage("students"); !ok {
		t.Error("GetPage(students) not found after concurrent replace")
	}
}
