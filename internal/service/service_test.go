package service

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpshade/pocket-kb/internal/errors"
	"github.com/dpshade/pocket-kb/internal/index"
	"github.com/dpshade/pocket-kb/internal/models"
	"github.com/dpshade/pocket-kb/internal/storage"
	"github.com/dpshade/pocket-kb/internal/validation"
)

const collectionYAML = `
name: kb
records:
  - id: a
    entry_type: template
    name: Hague letter
    full_text: "Dear [NAME], your hearing is on [DATE]."
    tags: [Hague, Legal]
  - id: b
    entry_type: guidance
    name: Police report
    full_text: "Call [AGENCY]."
    tags: [Police]
  - id: untagged
    entry_type: resource
    name: Orphan
    full_text: "text"
    tags: []
`

func writeContent(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newService(t *testing.T, path string, policy validation.Policy) *Service {
	t.Helper()
	svc, err := NewService(Options{ContentPath: path, Policy: policy, LoadConcurrency: 2})
	require.NoError(t, err)
	return svc
}

func TestReadsBeforeBuildReportIndexNotBuilt(t *testing.T) {
	svc := newService(t, writeContent(t, collectionYAML), "")

	_, err := svc.Query(models.Query{})
	assert.True(t, stderrors.Is(err, ErrIndexNotBuilt))
	assert.True(t, errors.HasCode(err, errors.ErrCodeIndexNotBuilt))

	_, _, err = svc.GetRecord("a")
	assert.ErrorIs(t, err, ErrIndexNotBuilt)

	_, ok := svc.LastReport()
	assert.False(t, ok)
}

func TestReloadExcludesInvalidRecords(t *testing.T) {
	svc := newService(t, writeContent(t, collectionYAML), validation.PolicyExclude)

	report, err := svc.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Loaded)
	assert.Equal(t, 2, report.Indexed)
	require.Len(t, report.Validation.Invalid, 1)
	assert.Equal(t, "untagged", report.Validation.Invalid[0].ID)

	ids, err := svc.Query(models.Query{Filter: models.Filter{Tags: []string{"Legal"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)

	ids, err = svc.Query(models.Query{Filter: models.Filter{Tags: []string{"Nothing"}}})
	require.NoError(t, err, "no results is not an error")
	assert.Empty(t, ids)

	_, ok, err := svc.GetRecord("untagged")
	require.NoError(t, err)
	assert.False(t, ok)

	last, ok := svc.LastReport()
	require.True(t, ok)
	assert.Equal(t, 2, last.Indexed)
}

func TestReloadAbortPolicyKeepsPreviousIndex(t *testing.T) {
	path := writeContent(t, collectionYAML)
	_, err := newService(t, path, validation.PolicyAbort).Reload(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))

	svc := newService(t, path, validation.PolicyExclude)
	_, err = svc.Reload(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("- id: a\n  entry_type: template\n  name: A\n  full_text: x\n  tags: [X]\n- id: a\n  entry_type: template\n  name: A\n  full_text: x\n  tags: [X]\n"), 0644))
	_, err = svc.Reload(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDuplicateID))

	idx, err := svc.Index()
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len(), "failed reload keeps serving the previous index")
}

func TestFillAndTokens(t *testing.T) {
	svc := newService(t, writeContent(t, collectionYAML), "")
	_, err := svc.Reload(context.Background())
	require.NoError(t, err)

	result, err := svc.Fill("a", map[string]string{"[NAME]": "Jane"})
	require.NoError(t, err)
	assert.Equal(t, "Dear Jane, your hearing is on [DATE].", result.Text)
	assert.Equal(t, []string{"[DATE]"}, result.Unresolved)

	tokens, err := svc.Tokens("a")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "[NAME]", tokens[0].Literal)

	_, err = svc.Fill("missing", nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestFacetsAndSuggest(t *testing.T) {
	svc := newService(t, writeContent(t, collectionYAML), "")
	_, err := svc.Reload(context.Background())
	require.NoError(t, err)

	facets, err := svc.Facets()
	require.NoError(t, err)
	assert.Equal(t, []index.FacetCount{{Value: "Hague", Count: 1}, {Value: "Legal", Count: 1}, {Value: "Police", Count: 1}}, facets.Tags)

	suggestions, err := svc.Suggest(index.FacetTag, "Polic", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"Police"}, suggestions)
}

func TestCheckReportsInvalidAndDuplicates(t *testing.T) {
	svc := newService(t, writeContent(t, collectionYAML+`
  - id: a
    entry_type: template
    name: Copy
    full_text: "x"
    tags: [X]
`), "")

	report, err := svc.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Clean())
	assert.Equal(t, []string{"a"}, report.DuplicateIDs)
	require.Len(t, report.Validation.Invalid, 1)

	_, err = svc.Index()
	assert.ErrorIs(t, err, ErrIndexNotBuilt, "check does not build")
}

func TestExportThenDiffIsClean(t *testing.T) {
	path := writeContent(t, collectionYAML)
	svc := newService(t, path, "")

	out := filepath.Join(t.TempDir(), "export.json")
	n, err := svc.Export(context.Background(), out, storage.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	report, err := svc.Diff(context.Background(), path, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"untagged"}, report.OnlyInA)
	assert.Empty(t, report.Mismatches)
	assert.Equal(t, 2, report.Summary.Identical)
}

func TestConcurrentReadsDuringReload(t *testing.T) {
	svc := newService(t, writeContent(t, collectionYAML), "")
	_, err := svc.Reload(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ids, err := svc.Query(models.Query{FreeText: "hague"})
				assert.NoError(t, err)
				assert.Equal(t, []string{"a"}, ids)
			}
		}()
	}
	for i := 0; i < 5; i++ {
		_, err := svc.Reload(context.Background())
		require.NoError(t, err)
	}
	wg.Wait()
}

func TestNewServiceRequiresContentPath(t *testing.T) {
	_, err := NewService(Options{})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}
