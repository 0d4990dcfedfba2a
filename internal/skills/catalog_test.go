package skills

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "skills.json")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoad_ResolveAndDefaults(t *testing.T) {
	p := writeCatalog(t, `[
	  {"id": 1040, "name": "Shield", "max_level": 3, "mana_cost": 20},
	  {"id": 4554, "name": "Beast Shield", "max_level": 2, "mana_cost": 22, "target": "COMPANION"}
	]`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	if c.Digest == "" {
		t.Fatalf("digest not set")
	}

	d, ok := c.Resolve(1040, 3)
	if !ok {
		t.Fatalf("resolve 1040/3 failed")
	}
	if d.Target != TargetAny {
		t.Fatalf("target defaulted to %q, want ANY", d.Target)
	}

	if _, ok := c.Resolve(1040, 4); ok {
		t.Fatalf("level above max_level resolved")
	}
	if _, ok := c.Resolve(1040, 0); ok {
		t.Fatalf("level 0 resolved")
	}
	if _, ok := c.Resolve(9999, 1); ok {
		t.Fatalf("unknown skill resolved")
	}

	d, ok = c.Resolve(4554, 2)
	if !ok || d.Target != TargetCompanion {
		t.Fatalf("resolve 4554/2 = %+v, %v", d, ok)
	}
}

func TestLoad_Rejections(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"duplicate id", `[{"id":1,"name":"a","max_level":1,"mana_cost":1},{"id":1,"name":"b","max_level":1,"mana_cost":1}]`},
		{"bad id", `[{"id":0,"name":"a","max_level":1,"mana_cost":1}]`},
		{"not json", `{`},
	}
	for _, tc := range cases {
		p := writeCatalog(t, tc.body)
		if _, err := Load(p); err == nil {
			t.Fatalf("%s: load succeeded", tc.name)
		}
	}
}

func TestLoad_DigestChangesWithContent(t *testing.T) {
	a, err := Load(writeCatalog(t, `[{"id":1,"name":"a","max_level":1,"mana_cost":1}]`))
	if err != nil {
		t.Fatalf("load a: %v", err)
	}
	b, err := Load(writeCatalog(t, `[{"id":2,"name":"b","max_level":1,"mana_cost":1}]`))
	if err != nil {
		t.Fatalf("load b: %v", err)
	}
	if a.Digest == b.Digest {
		t.Fatalf("digests equal for different catalogs")
	}
}
