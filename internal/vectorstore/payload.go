package vectorstore

import (
	"github.com/qdrant/go-client/qdrant"

	"github.com/fyrsmithlabs/knowledged/internal/auth"
)

// Payload layout: points carry their chunk text under "content", the
// resource access scope under "accessScope" and provenance under
// "metadata". Filters address nested fields with dot notation, e.g.
// "accessScope.department".

func pointPayload(p Point) map[string]*qdrant.Value {
	scope := map[string]*qdrant.Value{
		"department":    stringValue(p.Scope.Department),
		"subdepartment": stringValue(p.Scope.Subdepartment),
		"tags":          stringListValue(p.Scope.Tags),
		"roles":         stringListValue(p.Scope.Roles),
	}
	metadata := map[string]*qdrant.Value{
		"documentId":        stringValue(p.Metadata.DocumentID),
		"documentVersionId": stringValue(p.Metadata.DocumentVersionID),
		"documentName":      stringValue(p.Metadata.DocumentName),
		"position":          intValue(int64(p.Metadata.Position)),
		"format":            stringValue(p.Metadata.Format),
		"degraded":          boolValue(p.Metadata.Degraded),
	}
	return map[string]*qdrant.Value{
		"content":     stringValue(p.Content),
		"accessScope": structValue(scope),
		"metadata":    structValue(metadata),
	}
}

func hitFromScored(point *qdrant.ScoredPoint) Hit {
	hit := Hit{Score: point.Score}
	if id := point.GetId(); id != nil {
		hit.ID = id.GetUuid()
	}
	payload := point.GetPayload()
	if payload == nil {
		return hit
	}

	hit.Content = payload["content"].GetStringValue()

	if scope := payload["accessScope"].GetStructValue(); scope != nil {
		fields := scope.GetFields()
		hit.Scope = auth.AccessScope{
			Department:    fields["department"].GetStringValue(),
			Subdepartment: fields["subdepartment"].GetStringValue(),
			Tags:          stringSlice(fields["tags"]),
			Roles:         stringSlice(fields["roles"]),
		}
	}

	if meta := payload["metadata"].GetStructValue(); meta != nil {
		fields := meta.GetFields()
		hit.Metadata = PointMetadata{
			DocumentID:        fields["documentId"].GetStringValue(),
			DocumentVersionID: fields["documentVersionId"].GetStringValue(),
			DocumentName:      fields["documentName"].GetStringValue(),
			Position:          int(fields["position"].GetIntegerValue()),
			Format:            fields["format"].GetStringValue(),
			Degraded:          fields["degraded"].GetBoolValue(),
		}
	}

	return hit
}

// translateFilter converts a Filter into Qdrant must-conditions. Each
// populated field becomes an "any of" keyword match on its payload key;
// an empty filter yields nil so the query scans the whole partition.
func translateFilter(f Filter) *qdrant.Filter {
	if f.IsEmpty() {
		return nil
	}

	conditions := make([]*qdrant.Condition, 0, 5)
	add := func(key string, values []string) {
		if len(values) == 0 {
			return
		}
		conditions = append(conditions, anyOfCondition(key, values))
	}

	add("accessScope.department", f.Departments)
	add("accessScope.subdepartment", f.Subdepartments)
	add("accessScope.tags", f.Tags)
	add("metadata.documentId", f.DocumentIDs)
	add("metadata.documentVersionId", f.DocumentVersionIDs)

	return &qdrant.Filter{Must: conditions}
}

func anyOfCondition(key string, values []string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keywords{
						Keywords: &qdrant.RepeatedStrings{Strings: values},
					},
				},
			},
		},
	}
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func intValue(i int64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: i}}
}

func boolValue(b bool) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: b}}
}

func structValue(fields map[string]*qdrant.Value) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}}}
}

func stringListValue(values []string) *qdrant.Value {
	items := make([]*qdrant.Value, len(values))
	for i, v := range values {
		items[i] = stringValue(v)
	}
	return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: items}}}
}

func stringSlice(v *qdrant.Value) []string {
	list := v.GetListValue()
	if list == nil || len(list.GetValues()) == 0 {
		return nil
	}
	out := make([]string, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		out = append(out, item.GetStringValue())
	}
	return out
}
