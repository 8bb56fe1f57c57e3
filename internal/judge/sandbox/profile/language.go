// Package profile defines language and task profiles used by the sandbox.
package profile

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	appErr "judgehost/pkg/errors"
)

// LanguageSpec defines how to compile and run a language.
type LanguageSpec struct {
	ID string `yaml:"id"`
	// MetaID is the integer used for the language in submission metadata.
	MetaID         int      `yaml:"metaId"`
	Name           string   `yaml:"name"`
	Image          string   `yaml:"image"`
	SourceFile     string   `yaml:"sourceFile"`
	BinaryFile     string   `yaml:"binaryFile"`
	CompileEnabled bool     `yaml:"compileEnabled"`
	CompileCmdTpl  string   `yaml:"compileCmd"`
	RunCmdTpl      string   `yaml:"runCmd"`
	Env            []string `yaml:"env"`
}

// SourceExt is the extension a submitted main file must carry.
func (l LanguageSpec) SourceExt() string {
	return filepath.Ext(l.SourceFile)
}

const limiterTail = " /result/stdout /result/stderr {time} {memory} 1 {output} {procs} /result/result"

// DefaultLanguages returns the built-in language table.
func DefaultLanguages() []LanguageSpec {
	return []LanguageSpec{
		{
			ID:             "c11",
			MetaID:         0,
			Name:           "C",
			Image:          "noj-c-cpp",
			SourceFile:     "main.c",
			BinaryFile:     "main",
			CompileEnabled: true,
			CompileCmdTpl:  "sandbox {lang} 1 /dev/null" + limiterTail,
			RunCmdTpl:      "sandbox {lang} 0 {stdin}" + limiterTail,
		},
		{
			ID:             "cpp17",
			MetaID:         1,
			Name:           "C++",
			Image:          "noj-c-cpp",
			SourceFile:     "main.cpp",
			BinaryFile:     "main",
			CompileEnabled: true,
			CompileCmdTpl:  "sandbox {lang} 1 /dev/null" + limiterTail,
			RunCmdTpl:      "sandbox {lang} 0 {stdin}" + limiterTail,
		},
		{
			ID:         "python3",
			MetaID:     2,
			Name:       "Python3",
			Image:      "noj-py3",
			SourceFile: "main.py",
			RunCmdTpl:  "sandbox {lang} 0 {stdin}" + limiterTail,
		},
	}
}

// LanguageSpecRepository loads language specifications.
type LanguageSpecRepository interface {
	GetLanguageSpec(ctx context.Context, id string) (LanguageSpec, error)
	GetByMetaID(ctx context.Context, metaID int) (LanguageSpec, error)
}

// StaticRepository serves a fixed language table.
type StaticRepository struct {
	byID     map[string]LanguageSpec
	byMetaID map[int]LanguageSpec
}

// NewStaticRepository validates specs; an empty list falls back to DefaultLanguages.
func NewStaticRepository(specs []LanguageSpec) (*StaticRepository, error) {
	if len(specs) == 0 {
		specs = DefaultLanguages()
	}
	repo := &StaticRepository{
		byID:     make(map[string]LanguageSpec, len(specs)),
		byMetaID: make(map[int]LanguageSpec, len(specs)),
	}
	for _, l := range specs {
		if err := validateLanguage(l); err != nil {
			return nil, err
		}
		if _, ok := repo.byID[l.ID]; ok {
			return nil, fmt.Errorf("duplicate language id %q", l.ID)
		}
		if _, ok := repo.byMetaID[l.MetaID]; ok {
			return nil, fmt.Errorf("duplicate language meta id %d", l.MetaID)
		}
		repo.byID[l.ID] = l
		repo.byMetaID[l.MetaID] = l
	}
	return repo, nil
}

// GetLanguageSpec looks a language up by its string id.
func (r *StaticRepository) GetLanguageSpec(ctx context.Context, id string) (LanguageSpec, error) {
	l, ok := r.byID[id]
	if !ok {
		return LanguageSpec{}, appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", id)
	}
	return l, nil
}

// GetByMetaID looks a language up by its metadata integer.
func (r *StaticRepository) GetByMetaID(ctx context.Context, metaID int) (LanguageSpec, error) {
	l, ok := r.byMetaID[metaID]
	if !ok {
		return LanguageSpec{}, appErr.Newf(appErr.LanguageNotSupported, "language id %d is not supported", metaID)
	}
	return l, nil
}

// IDs lists the configured language ids in sorted order.
func (r *StaticRepository) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func validateLanguage(l LanguageSpec) error {
	switch {
	case l.ID == "":
		return fmt.Errorf("language id is required")
	case l.Image == "":
		return fmt.Errorf("language %s: image is required", l.ID)
	case l.SourceFile == "":
		return fmt.Errorf("language %s: source file is required", l.ID)
	case l.RunCmdTpl == "":
		return fmt.Errorf("language %s: run command is required", l.ID)
	case l.CompileEnabled && l.CompileCmdTpl == "":
		return fmt.Errorf("language %s: compile command is required", l.ID)
	case l.MetaID < 0:
		return fmt.Errorf("language %s: meta id must be non-negative", l.ID)
	}
	return nil
}
