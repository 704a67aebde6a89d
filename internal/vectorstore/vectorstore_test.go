package vectorstore

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/knowledged/internal/auth"
)

func TestPartitionName(t *testing.T) {
	tests := []struct {
		name     string
		tenantID string
		want     string
		wantErr  bool
	}{
		{name: "simple", tenantID: "acme", want: "tenant_acme"},
		{name: "uuid", tenantID: "550e8400-e29b-41d4-a716-446655440000", want: "tenant_550e8400_e29b_41d4_a716_446655440000"},
		{name: "uppercase lowered", tenantID: "Acme", want: "tenant_acme"},
		{name: "dots replaced", tenantID: "a.b", want: "tenant_a_b"},
		{name: "slashes replaced", tenantID: "../etc", want: "tenant____etc"},
		{name: "empty", tenantID: "", wantErr: true},
		{name: "too long", tenantID: string(make([]byte, 80)), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PartitionName(tt.tenantID)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidPartition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPartitionNameStable(t *testing.T) {
	a, err := PartitionName("tenant-42")
	require.NoError(t, err)
	b, err := PartitionName("tenant-42")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFilterMatches(t *testing.T) {
	point := Point{
		Scope: auth.AccessScope{
			Department:    "engineering",
			Subdepartment: "platform",
			Tags:          []string{"project-x", "internal"},
		},
		Metadata: PointMetadata{
			DocumentID:        "doc-1",
			DocumentVersionID: "ver-1",
		},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "empty filter matches all", filter: Filter{}, want: true},
		{name: "department match", filter: Filter{Departments: []string{"engineering"}}, want: true},
		{name: "department any of", filter: Filter{Departments: []string{"sales", "engineering"}}, want: true},
		{name: "department mismatch", filter: Filter{Departments: []string{"sales"}}, want: false},
		{name: "subdepartment match", filter: Filter{Subdepartments: []string{"platform"}}, want: true},
		{name: "tag overlap", filter: Filter{Tags: []string{"project-x"}}, want: true},
		{name: "tag no overlap", filter: Filter{Tags: []string{"project-y"}}, want: false},
		{name: "document version", filter: Filter{DocumentVersionIDs: []string{"ver-1"}}, want: true},
		{name: "all fields AND", filter: Filter{Departments: []string{"engineering"}, Tags: []string{"project-y"}}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(point))
		})
	}
}

func TestTranslateFilterEmpty(t *testing.T) {
	assert.Nil(t, translateFilter(Filter{}))
}

func TestTranslateFilterConditions(t *testing.T) {
	filter := Filter{
		Departments: []string{"engineering", "research"},
		Tags:        []string{"project-x"},
		DocumentIDs: []string{"doc-1"},
	}

	qf := translateFilter(filter)
	require.NotNil(t, qf)
	require.Len(t, qf.Must, 3)

	byKey := map[string][]string{}
	for _, cond := range qf.Must {
		field := cond.GetField()
		require.NotNil(t, field)
		keywords := field.GetMatch().GetKeywords()
		require.NotNil(t, keywords, "every condition is an any-of keyword match")
		byKey[field.GetKey()] = keywords.GetStrings()
	}

	assert.Equal(t, []string{"engineering", "research"}, byKey["accessScope.department"])
	assert.Equal(t, []string{"project-x"}, byKey["accessScope.tags"])
	assert.Equal(t, []string{"doc-1"}, byKey["metadata.documentId"])
}

func TestPayloadRoundTrip(t *testing.T) {
	p := Point{
		ID:      "7b8ddc05-5df2-4c31-8296-77fb0a0d1b9a",
		Content: "chunk text",
		Scope: auth.AccessScope{
			Department:    "engineering",
			Subdepartment: "platform",
			Tags:          []string{"project-x"},
			Roles:         []string{"engineer"},
		},
		Metadata: PointMetadata{
			DocumentID:        "doc-1",
			DocumentVersionID: "ver-1",
			DocumentName:      "handbook",
			Position:          4,
			Format:            "md",
			Degraded:          true,
		},
	}

	payload := pointPayload(p)
	assert.Equal(t, "chunk text", payload["content"].GetStringValue())

	scope := payload["accessScope"].GetStructValue().GetFields()
	assert.Equal(t, "engineering", scope["department"].GetStringValue())

	meta := payload["metadata"].GetStructValue().GetFields()
	assert.Equal(t, "handbook", meta["documentName"].GetStringValue())
	assert.Equal(t, int64(4), meta["position"].GetIntegerValue())
	assert.True(t, meta["degraded"].GetBoolValue())

	hit := hitFromScored(&qdrant.ScoredPoint{
		Id:      qdrant.NewIDUUID(p.ID),
		Score:   0.9,
		Payload: payload,
	})
	assert.Equal(t, p.ID, hit.ID)
	assert.Equal(t, p.Content, hit.Content)
	assert.Equal(t, p.Scope, hit.Scope)
	assert.Equal(t, p.Metadata, hit.Metadata)
}
