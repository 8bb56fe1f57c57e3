package profile_test

import (
	"context"
	"testing"

	"judgehost/internal/judge/sandbox/profile"
	appErr "judgehost/pkg/errors"
)

func TestDefaultRepository(t *testing.T) {
	repo, err := profile.NewStaticRepository(nil)
	if err != nil {
		t.Fatalf("default table rejected: %v", err)
	}
	ctx := context.Background()

	cases := []struct {
		metaID  int
		id      string
		compile bool
		ext     string
	}{
		{0, "c11", true, ".c"},
		{1, "cpp17", true, ".cpp"},
		{2, "python3", false, ".py"},
	}
	for _, tc := range cases {
		l, err := repo.GetByMetaID(ctx, tc.metaID)
		if err != nil {
			t.Fatalf("meta id %d: %v", tc.metaID, err)
		}
		if l.ID != tc.id || l.CompileEnabled != tc.compile || l.SourceExt() != tc.ext {
			t.Fatalf("meta id %d: unexpected spec %+v", tc.metaID, l)
		}
		byID, err := repo.GetLanguageSpec(ctx, tc.id)
		if err != nil || byID.MetaID != tc.metaID {
			t.Fatalf("lookup %s: %v %+v", tc.id, err, byID)
		}
	}

	if _, err := repo.GetByMetaID(ctx, 9); !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
	if got := repo.IDs(); len(got) != 3 || got[0] != "c11" {
		t.Fatalf("unexpected ids %v", got)
	}
}

func TestRepositoryRejectsBadTables(t *testing.T) {
	base := profile.DefaultLanguages()[0]

	noImage := base
	noImage.Image = ""
	noCompile := base
	noCompile.CompileCmdTpl = ""
	dupMeta := profile.DefaultLanguages()[1]
	dupMeta.MetaID = base.MetaID

	cases := map[string][]profile.LanguageSpec{
		"missing image":           {noImage},
		"missing compile command": {noCompile},
		"duplicate id":            {base, base},
		"duplicate meta id":       {base, dupMeta},
	}
	for name, specs := range cases {
		if _, err := profile.NewStaticRepository(specs); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
