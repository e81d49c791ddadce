package index

import (
	stderrors "errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpshade/pocket-kb/internal/errors"
	"github.com/dpshade/pocket-kb/internal/models"
)

func rec(id string, tags ...string) models.TemplateRecord {
	return models.TemplateRecord{
		ID:        id,
		EntryType: models.EntryTemplate,
		Name:      id,
		FullText:  "text of " + id,
		Tags:      tags,
	}
}

func mustBuild(t *testing.T, records []models.TemplateRecord) *Index {
	t.Helper()
	idx, err := Build(records)
	require.NoError(t, err)
	return idx
}

func TestQueryByTag(t *testing.T) {
	idx := mustBuild(t, []models.TemplateRecord{
		rec("a", "Hague", "Legal"),
		rec("b", "Police"),
	})

	got := idx.Query(models.Query{Filter: models.Filter{Tags: []string{"Legal"}}})
	assert.Equal(t, []string{"a"}, got)
}

func TestBuildRejectsEveryDuplicateID(t *testing.T) {
	records := []models.TemplateRecord{
		rec("b", "X"), rec("a", "X"), rec("b", "Y"), rec("c", "X"), rec("a", "Z"), rec("b", "X"),
	}

	idx, err := Build(records)
	require.Error(t, err)
	assert.Nil(t, idx)

	var dupErr *errors.DuplicateIDError
	require.True(t, stderrors.As(err, &dupErr))
	assert.Equal(t, []string{"a", "b"}, dupErr.IDs)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDuplicateID))
}

func TestBuildSucceedsForUniqueIDs(t *testing.T) {
	idx := mustBuild(t, []models.TemplateRecord{rec("z", "X"), rec("a", "Y")})
	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, []string{"a", "z"}, idx.IDs())

	empty := mustBuild(t, nil)
	assert.Equal(t, 0, empty.Len())
	assert.Empty(t, empty.Query(models.Query{}))
}

func facetFixture() []models.TemplateRecord {
	mk := func(id, country, rtype string, et models.EntryType, tags ...string) models.TemplateRecord {
		r := rec(id, tags...)
		r.CountryPair = country
		r.ResourceType = rtype
		r.EntryType = et
		return r
	}
	return []models.TemplateRecord{
		mk("r1", "US-Mexico", "letter", models.EntryTemplate, "Hague", "Legal"),
		mk("r2", "US-Mexico", "", models.EntryGuidance, "Police"),
		mk("r3", "US-Japan", "statute", models.EntryResource, "Legal", " Hague "),
		mk("r4", "", "letter", models.EntryTemplate, "Prevention"),
		mk("r5", "US-Japan", "statute", models.EntryCountryMatrix, "Police", "Legal", "Legal"),
		mk("r6", "us-mexico", "letter", models.EntryProcedure, "hague"),
	}
}

func subsets(values []string) [][]string {
	var out [][]string
	for mask := 0; mask < 1<<len(values); mask++ {
		var set []string
		for i, v := range values {
			if mask&(1<<i) != 0 {
				set = append(set, v)
			}
		}
		out = append(out, set)
	}
	return out
}

func TestFacetFilterCorrectnessExhaustive(t *testing.T) {
	records := facetFixture()
	idx := mustBuild(t, records)

	tagSets := subsets([]string{"Hague", "Legal", "Police", "Unknown"})
	countries := []string{"", "US-Mexico", "US-Japan", "us-mexico", "Nowhere"}
	rtypes := []string{"", "letter", "statute", "video"}
	entries := []models.EntryType{"", models.EntryTemplate, models.EntryGuidance, models.EntryPrevention}

	checked := 0
	for _, tags := range tagSets {
		for _, country := range countries {
			for _, rtype := range rtypes {
				for _, et := range entries {
					f := models.Filter{Tags: tags, CountryPair: country, ResourceType: rtype, EntryType: et}

					want := []string{}
					for _, r := range records {
						if f.Matches(r) {
							want = append(want, r.ID)
						}
					}
					sort.Strings(want)

					got := idx.Query(models.Query{Filter: f})
					if diff := cmp.Diff(want, got); diff != "" {
						t.Fatalf("filter %+v mismatch (-want +got):\n%s", f, diff)
					}
					checked++
				}
			}
		}
	}
	assert.Equal(t, len(tagSets)*len(countries)*len(rtypes)*len(entries), checked)
}

func TestFacetValuesAreExact(t *testing.T) {
	idx := mustBuild(t, facetFixture())

	assert.Equal(t, []string{"r1", "r2"}, idx.Query(models.Query{Filter: models.Filter{CountryPair: "US-Mexico"}}))
	assert.Equal(t, []string{"r6"}, idx.Query(models.Query{Filter: models.Filter{CountryPair: "us-mexico"}}))
	assert.Equal(t, []string{"r1", "r3"}, idx.Query(models.Query{Filter: models.Filter{Tags: []string{"Hague"}}}))
}

func TestUnknownFacetValueIsEmptyNotError(t *testing.T) {
	idx := mustBuild(t, facetFixture())

	got := idx.Query(models.Query{Filter: models.Filter{Tags: []string{"Nope"}}})
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, idx.Query(models.Query{Filter: models.Filter{EntryType: "letter"}}))
	assert.Empty(t, idx.Values("colour"))
}

func TestQueryWithTagExpression(t *testing.T) {
	idx := mustBuild(t, facetFixture())

	expr, err := models.ParseTagExpression("Legal AND NOT Police")
	require.NoError(t, err)

	got := idx.Query(models.Query{Filter: models.Filter{Expression: expr}})
	assert.Equal(t, []string{"r1", "r3"}, got)

	got = idx.Query(models.Query{Filter: models.Filter{Expression: expr, CountryPair: "US-Japan"}})
	assert.Equal(t, []string{"r3"}, got)
}

func textFixture() []models.TemplateRecord {
	mk := func(id, name, summary string, tags ...string) models.TemplateRecord {
		r := rec(id, tags...)
		r.Name = name
		r.Summary = summary
		return r
	}
	return []models.TemplateRecord{
		mk("hague-letter", "Hague application letter", "Letter to the central authority", "Hague", "Legal"),
		mk("police-guide", "Police report guide", "How to file a Hague report with police", "Police"),
		mk("custody", "Custody order", "Hague custody", "Legal"),
		mk("passport", "Child's passport", "Stop a passport being issued", "Prevention"),
		mk("x-return", "Return", "", "Other"),
		mk("a-other", "Other", "return", "Misc"),
	}
}

func TestFreeTextRanking(t *testing.T) {
	idx := mustBuild(t, textFixture())

	hits := idx.Search(models.Query{FreeText: "hague"})
	assert.Equal(t, []Hit{
		{ID: "hague-letter", Score: 1, NameMatch: true},
		{ID: "custody", Score: 1},
		{ID: "police-guide", Score: 1},
	}, hits)
}

func TestFreeTextRequiresEveryTerm(t *testing.T) {
	idx := mustBuild(t, textFixture())

	assert.Equal(t, []string{"hague-letter"}, idx.Query(models.Query{FreeText: "Hague, LETTER!"}))
	assert.Empty(t, idx.Query(models.Query{FreeText: "hague passport"}))
	assert.Empty(t, idx.Query(models.Query{FreeText: "text"}), "full text is not indexed")
}

func TestFreeTextNameMatchBreaksTies(t *testing.T) {
	idx := mustBuild(t, textFixture())
	assert.Equal(t, []string{"x-return", "a-other"}, idx.Query(models.Query{FreeText: "return"}))
}

func TestFreeTextNameMatchOutranksRepeatedTerms(t *testing.T) {
	summary := rec("a-summary", "Hague", "Hague Convention")
	summary.Name = "Letter"
	summary.Summary = "Hague hague hague"
	name := rec("z-name")
	name.Name = "Hague"
	idx := mustBuild(t, []models.TemplateRecord{summary, name})

	assert.Equal(t, []Hit{
		{ID: "z-name", Score: 1, NameMatch: true},
		{ID: "a-summary", Score: 1},
	}, idx.Search(models.Query{FreeText: "hague"}))

	assert.Equal(t, []Hit{
		{ID: "z-name", Score: 1, NameMatch: true},
		{ID: "a-summary", Score: 1},
	}, idx.Search(models.Query{FreeText: "hague HAGUE hague"}), "repeated query words count once")
}

func TestFreeTextNormalizesPunctuation(t *testing.T) {
	idx := mustBuild(t, textFixture())

	assert.Equal(t, []string{"passport"}, idx.Query(models.Query{FreeText: "CHILD'S"}))
	assert.Equal(t, []string{"passport"}, idx.Query(models.Query{FreeText: "childs"}))
	assert.Equal(t, []string{"us", "mexico", "usmexico", "café"}, Normalize("  US  Mexico\tUS-Mexico CAFÉ."))
}

func TestFreeTextCombinedWithFacetsAndLimit(t *testing.T) {
	idx := mustBuild(t, textFixture())

	got := idx.Query(models.Query{FreeText: "hague", Filter: models.Filter{Tags: []string{"Legal"}}})
	assert.Equal(t, []string{"hague-letter", "custody"}, got)

	got = idx.Query(models.Query{FreeText: "hague", Limit: 1})
	assert.Equal(t, []string{"hague-letter"}, got)
}

func TestQueryIsDeterministic(t *testing.T) {
	idx := mustBuild(t, textFixture())
	for _, q := range []models.Query{
		{FreeText: "hague"},
		{FreeText: "report police"},
		{Filter: models.Filter{Tags: []string{"Legal", "Police", "Other"}}},
		{},
	} {
		first := idx.Query(q)
		for i := 0; i < 20; i++ {
			assert.Equal(t, first, idx.Query(q))
		}
	}
}

func TestGetReturnsCopy(t *testing.T) {
	idx := mustBuild(t, []models.TemplateRecord{rec("a", "X", "Y")})

	r, ok := idx.Get("a")
	require.True(t, ok)
	r.Tags[0] = "mutated"
	r.Name = "mutated"

	again, ok := idx.Get("a")
	require.True(t, ok)
	assert.Equal(t, []string{"X", "Y"}, again.Tags)
	assert.Equal(t, "a", again.Name)

	_, ok = idx.Get("missing")
	assert.False(t, ok)
}

func TestBuildCopiesInput(t *testing.T) {
	records := []models.TemplateRecord{rec("a", "X")}
	idx := mustBuild(t, records)
	records[0].Tags[0] = "changed"

	assert.Equal(t, []string{"a"}, idx.Query(models.Query{Filter: models.Filter{Tags: []string{"X"}}}))
	r, _ := idx.Get("a")
	assert.Equal(t, []string{"X"}, r.Tags)
}

func TestFacetListings(t *testing.T) {
	idx := mustBuild(t, facetFixture())

	assert.Equal(t, []FacetCount{
		{Value: "Hague", Count: 2},
		{Value: "Legal", Count: 3},
		{Value: "Police", Count: 2},
		{Value: "Prevention", Count: 1},
		{Value: "hague", Count: 1},
	}, idx.Tags())
	assert.Equal(t, []FacetCount{
		{Value: "US-Japan", Count: 2},
		{Value: "US-Mexico", Count: 2},
		{Value: "us-mexico", Count: 1},
	}, idx.CountryPairs())
	assert.Equal(t, []FacetCount{
		{Value: "letter", Count: 3},
		{Value: "statute", Count: 2},
	}, idx.ResourceTypes())
	assert.Len(t, idx.EntryTypes(), 5)
}

func TestSuggest(t *testing.T) {
	idx := mustBuild(t, textFixture())

	assert.Equal(t, []string{"hague-letter"}, idx.Suggest("", "hagueletr", 3))
	assert.Equal(t, []string{"Police"}, idx.Suggest(FacetTag, "Polce", 3))
	assert.Empty(t, idx.Suggest("", "", 3))
	assert.Len(t, idx.Suggest("id", "e", 2), 2)
}
