package imports

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	eventbus "github.com/keywordwei/graphql-loader/internal/eventbus"
	events "github.com/keywordwei/graphql-loader/internal/events"
	source "github.com/keywordwei/graphql-loader/internal/source"
	"github.com/stretchr/testify/require"
)

func TestDirectives(t *testing.T) {
	for _, tc := range []struct {
		name string
		text string
		want []string
	}{
		{
			name: "double and single quotes",
			text: "#import \"./a.gql\"\r\n#import './b.gql'\n\nquery { a }",
			want: []string{"./a.gql", "./b.gql"},
		},
		{
			name: "other comments are skipped",
			text: "# list query\n#import \"a.gql\"\n#importer \"x.gql\"\n{ a }",
			want: []string{"a.gql"},
		},
		{
			name: "scan stops at the first statement",
			text: "{ a }\n#import \"late.gql\"",
			want: nil,
		},
		{
			name: "directive must start at column zero",
			text: "  #import \"indented.gql\"\n{ a }",
			want: nil,
		},
		{
			name: "space after hash is not a directive",
			text: "# import \"spaced.gql\"\n{ a }",
			want: nil,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Directives("doc.gql", tc.text)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("directives mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDirectiveWithoutPath(t *testing.T) {
	_, err := Directives("doc.gql", "\n#import\n{ a }")
	var derr *DirectiveError
	require.ErrorAs(t, err, &derr)
	require.Equal(t, 2, derr.Line)
	require.Equal(t, "doc.gql:2: #import directive without a path", err.Error())
}

func fixture() *source.InMemory {
	return source.NewInMemory(map[string]string{
		"/gql/list.gql": `#import "./fragments/meta.gql"
#import "./fragments/staff.gql"

query List { list { total items { ...meta } } }
`,
		"/gql/fragments/meta.gql": `#import "./staff.gql"
fragment meta on Item { name owner { ...staff } }
`,
		"/gql/fragments/staff.gql": `fragment staff on Staff { real_name }
`,
	})
}

func TestResolveMergesImportsDepthFirst(t *testing.T) {
	src := fixture()
	ctx := context.Background()
	bus := eventbus.New()
	eventbus.Use(bus)
	defer eventbus.Use(nil)
	var skipped []events.ImportSkipped
	eventbus.On(bus, func(_ context.Context, e events.ImportSkipped) { skipped = append(skipped, e) })

	root, err := source.Load(ctx, src, "/gql/list.gql")
	require.NoError(t, err)
	res, err := Resolve(ctx, src, root)
	require.NoError(t, err)

	require.Equal(t, []string{"/gql/fragments/meta.gql", "/gql/fragments/staff.gql"}, res.Files)
	require.Equal(t, []string{"/gql/fragments/staff.gql"}, res.Skipped)
	require.Len(t, res.Document.Operations, 1)

	var names []string
	for _, f := range res.Document.Fragments {
		names = append(names, f.Name)
	}
	require.Equal(t, []string{"meta", "staff"}, names)

	// The staff file is read once even though two files import it.
	require.Equal(t, 1, src.Reads("/gql/fragments/staff.gql"))
	require.Equal(t, []events.ImportSkipped{{Path: "/gql/fragments/staff.gql", From: "/gql/list.gql"}}, skipped)
}

func TestResolveMissingImport(t *testing.T) {
	src := source.NewInMemory(map[string]string{
		"/gql/list.gql": "#import \"./fragments/gone.gql\"\n{ a }",
	})
	root, err := source.Load(context.Background(), src, "/gql/list.gql")
	require.NoError(t, err)

	_, err = Resolve(context.Background(), src, root)
	var missing *source.MissingFileError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, "/gql/fragments/gone.gql", missing.Path)
}

func TestResolveReportsSyntaxErrorsWithFileName(t *testing.T) {
	src := source.NewInMemory(map[string]string{
		"/gql/list.gql": "#import \"bad.gql\"\n{ a }",
		"/gql/bad.gql":  "fragment broken on T {",
	})
	root, err := source.Load(context.Background(), src, "/gql/list.gql")
	require.NoError(t, err)

	_, err = Resolve(context.Background(), src, root)
	require.Error(t, err)
	require.Contains(t, err.Error(), "/gql/bad.gql")
}

func TestResolveAbsoluteImport(t *testing.T) {
	src := source.NewInMemory(map[string]string{
		"/gql/list.gql":      "#import \"/shared/common.gql\"\n{ a { ...common } }",
		"/shared/common.gql": "fragment common on A { id }",
	})
	root, err := source.Load(context.Background(), src, "/gql/list.gql")
	require.NoError(t, err)

	res, err := Resolve(context.Background(), src, root)
	require.NoError(t, err)
	require.Equal(t, []string{"/shared/common.gql"}, res.Files)
	require.NotNil(t, res.Document.Fragments.ForName("common"))
}
