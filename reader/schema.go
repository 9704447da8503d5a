package reader

import (
	"fmt"

	"github.com/segmentio/parquet-go/format"
)

// SchemaInfo represents metadata about a single leaf column of a Parquet file.
type SchemaInfo struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	PhysicalType string `json:"physical_type"`
	LogicalType  string `json:"logical_type"`
	Required     bool   `json:"required"`
	Optional     bool   `json:"optional"`
	Repeated     bool   `json:"repeated"`
}

// SchemaFromMetadata lists the leaf columns described by a decoded footer.
//
// The footer stores the schema tree flattened depth first; each group
// element is followed by its NumChildren children. For nested types, field
// names use dot notation (e.g., "address.street"), matching the column
// names of the layout. A leaf is repeated when it or any ancestor is.
func SchemaFromMetadata(meta *format.FileMetaData) ([]SchemaInfo, error) {
	if meta == nil || len(meta.Schema) == 0 {
		return nil, fmt.Errorf("footer has no schema")
	}

	var infos []SchemaInfo
	root := meta.Schema[0]
	next := 1
	for c := 0; c < int(root.NumChildren); c++ {
		var err error
		next, err = walkSchema(meta.Schema, next, "", false, &infos)
		if err != nil {
			return nil, err
		}
	}
	return infos, nil
}

// walkSchema appends the leaves below elems[i] and returns the index of the
// element following its subtree.
func walkSchema(elems []format.SchemaElement, i int, prefix string, parentRepeated bool, out *[]SchemaInfo) (int, error) {
	if i >= len(elems) {
		return i, fmt.Errorf("schema element %d out of range: footer lists %d elements", i, len(elems))
	}
	el := elems[i]

	name := el.Name
	if prefix != "" {
		name = prefix + "." + name
	}
	repeated := parentRepeated || repetition(el) == format.Repeated

	if el.NumChildren > 0 {
		next := i + 1
		for c := 0; c < int(el.NumChildren); c++ {
			var err error
			if next, err = walkSchema(elems, next, name, repeated, out); err != nil {
				return next, err
			}
		}
		return next, nil
	}

	*out = append(*out, SchemaInfo{
		Name:         name,
		Type:         userFriendlyType(el),
		PhysicalType: physicalType(el),
		LogicalType:  logicalType(el),
		Required:     repetition(el) == format.Required,
		Optional:     repetition(el) == format.Optional,
		Repeated:     repeated,
	})
	return i + 1, nil
}

func repetition(el format.SchemaElement) format.FieldRepetitionType {
	if el.RepetitionType == nil {
		return format.Required
	}
	return *el.RepetitionType
}

// physicalType returns the physical type name of a leaf.
func physicalType(el format.SchemaElement) string {
	if el.Type == nil {
		return "GROUP"
	}
	return el.Type.String()
}

// logicalType returns the logical type annotation of a leaf, if any.
func logicalType(el format.SchemaElement) string {
	lt := el.LogicalType
	if lt == nil {
		return ""
	}

	switch {
	case lt.UTF8 != nil:
		return "STRING"
	case lt.Map != nil:
		return "MAP"
	case lt.List != nil:
		return "LIST"
	case lt.Enum != nil:
		return "ENUM"
	case lt.Decimal != nil:
		return "DECIMAL"
	case lt.Date != nil:
		return "DATE"
	case lt.Time != nil:
		return "TIME"
	case lt.Timestamp != nil:
		return "TIMESTAMP"
	case lt.Integer != nil:
		return "INT"
	case lt.Json != nil:
		return "JSON"
	case lt.Bson != nil:
		return "BSON"
	case lt.UUID != nil:
		return "UUID"
	default:
		return ""
	}
}

// userFriendlyType converts the physical and logical types of a leaf into
// simpler, more recognizable type names for end users.
func userFriendlyType(el format.SchemaElement) string {
	if el.Type == nil {
		return "GROUP"
	}

	// logical type first for more specific typing
	switch lt := logicalType(el); lt {
	case "STRING", "ENUM", "UUID", "DATE", "TIME", "TIMESTAMP", "DECIMAL", "JSON", "BSON":
		return lt
	}

	switch *el.Type {
	case format.Float:
		return "FLOAT32"
	case format.Double:
		return "FLOAT64"
	case format.ByteArray:
		return "BINARY"
	default:
		return el.Type.String()
	}
}
