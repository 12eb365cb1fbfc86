package prune

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/keywordwei/graphql-loader/internal/fieldpath"
	language "github.com/keywordwei/graphql-loader/internal/language"
	walk "github.com/keywordwei/graphql-loader/internal/walk"
	"github.com/stretchr/testify/require"
)

const alarmSchema = `
query AlarmRuleList($limit: Int64, $offset: Int64, $filter: AstNode) {
  alarm_rule_list(limit: $limit, offset: $offset, filter: $filter) {
    count
    relation_entitys {
      key { id }
      meta {
        email { switch }
        level
        name
        status
        staff { meta { real_name } }
      }
    }
  }
}
`

func operation(t *testing.T, src string) *language.OperationDefinition {
	t.Helper()
	doc, err := language.ParseQuery("alarm-schema.gql", src)
	require.NoError(t, err)
	require.Len(t, doc.Operations, 1)
	return doc.Operations[0]
}

func prunedLeaves(t *testing.T, op *language.OperationDefinition, required ...string) []string {
	t.Helper()
	out, err := Operation(op, required)
	require.NoError(t, err)
	return walk.Leaves(out.SelectionSet)
}

func TestOperationKeepsRequiredFieldsAndAncestors(t *testing.T) {
	op := operation(t, alarmSchema)

	got := prunedLeaves(t, op, "alarm_rule_list.relation_entitys.meta.name", "alarm_rule_list.count")
	want := []string{"alarm_rule_list.count", "alarm_rule_list.relation_entitys.meta.name"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("pruned leaves mismatch (-want +got):\n%s", diff)
	}

	got = prunedLeaves(t, op, "alarm_rule_list.count")
	require.Equal(t, []string{"alarm_rule_list.count"}, got)
}

func TestOperationKeepsArgumentsAndVariables(t *testing.T) {
	op := operation(t, alarmSchema)
	out, err := Operation(op, []string{"alarm_rule_list.count"})
	require.NoError(t, err)

	require.Equal(t, "AlarmRuleList", out.Name)
	require.Len(t, out.VariableDefinitions, 3)
	root := out.SelectionSet[0].(*language.Field)
	require.Len(t, root.Arguments, 3)

	printed := language.PrintOperation(out)
	require.True(t, strings.Contains(printed, "$filter"), printed)
	require.False(t, strings.Contains(printed, "relation_entitys"), printed)
}

func TestOperationRequiredSubtreeIsKeptWhole(t *testing.T) {
	op := operation(t, alarmSchema)
	got := prunedLeaves(t, op, "alarm_rule_list.relation_entitys.meta.staff")
	require.Equal(t, []string{"alarm_rule_list.relation_entitys.meta.staff.meta.real_name"}, got)

	out, err := Operation(op, []string{"alarm_rule_list.relation_entitys.meta.staff"})
	require.NoError(t, err)
	entities := out.SelectionSet[0].(*language.Field).SelectionSet[0].(*language.Field)
	require.Equal(t, "relation_entitys", entities.Name)
	meta := entities.SelectionSet[0].(*language.Field)
	// The required field is the input node itself.
	require.Same(t, op.SelectionSet[0].(*language.Field).SelectionSet[1].(*language.Field).SelectionSet[1].(*language.Field).SelectionSet[4], meta.SelectionSet[0])
}

func TestOperationPrefixClosure(t *testing.T) {
	op := operation(t, alarmSchema)
	required := []string{
		"alarm_rule_list.relation_entitys.key.id",
		"alarm_rule_list.relation_entitys.meta.email.switch",
	}
	out, err := Operation(op, required)
	require.NoError(t, err)

	kept := map[string]bool{}
	var visit func(prefix string, set language.SelectionSet)
	visit = func(prefix string, set language.SelectionSet) {
		for _, sel := range set {
			f := sel.(*language.Field)
			p := fieldpath.Join(prefix, f.Name)
			kept[p] = true
			visit(p, f.SelectionSet)
		}
	}
	visit("", out.SelectionSet)

	for _, r := range required {
		segs := strings.Split(r, ".")
		for i := 1; i <= len(segs); i++ {
			require.True(t, kept[strings.Join(segs[:i], ".")], "missing ancestor %s of %s", strings.Join(segs[:i], "."), r)
		}
	}
}

func TestOperationSubsetMonotonicity(t *testing.T) {
	op := operation(t, alarmSchema)
	a := []string{"alarm_rule_list.relation_entitys.meta.level"}
	ab := append(a, "alarm_rule_list.relation_entitys.key.id")

	small := prunedLeaves(t, op, a...)
	large := prunedLeaves(t, op, ab...)
	for _, leaf := range small {
		require.Contains(t, large, leaf)
	}
	require.Contains(t, large, "alarm_rule_list.relation_entitys.key.id")
	require.Len(t, large, 2)
}

func TestOperationDoesNotModifyInput(t *testing.T) {
	op := operation(t, alarmSchema)
	before := walk.Leaves(op.SelectionSet)
	_, err := Operation(op, []string{"alarm_rule_list.count"})
	require.NoError(t, err)
	require.Equal(t, before, walk.Leaves(op.SelectionSet))
}

func TestOperationInlineFragments(t *testing.T) {
	op := operation(t, `
		query Q($full: Boolean!) {
			item {
				id
				... @include(if: $full) { description }
				... on Extra { score }
			}
		}
	`)
	out, err := Operation(op, []string{"item.description"})
	require.NoError(t, err)
	require.Equal(t, []string{"item.description"}, walk.Leaves(out.SelectionSet))

	item := out.SelectionSet[0].(*language.Field)
	require.Len(t, item.SelectionSet, 1)
	inline := item.SelectionSet[0].(*language.InlineFragment)
	require.Equal(t, "include", inline.Directives[0].Name)
}

func TestOperationNothingRequired(t *testing.T) {
	op := operation(t, alarmSchema)
	for _, required := range [][]string{nil, {"alarm_rule_list.nope"}, {""}} {
		_, err := Operation(op, required)
		require.ErrorIs(t, err, ErrEmptySelection)
	}
}

func TestOperationRejectsSpreads(t *testing.T) {
	doc, err := language.ParseQuery("q.gql", `{ a { ...f } } fragment f on A { b }`)
	require.NoError(t, err)
	_, err = Operation(doc.Operations[0], []string{"a.b"})
	var serr *SpreadError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "f", serr.Name)
}
