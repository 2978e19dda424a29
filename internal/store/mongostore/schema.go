package mongostore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type collectionInfo struct {
	Name   string
	Fields []fieldInfo
}

type fieldInfo struct {
	Name     string
	Type     string
	Nullable bool
}

// describeSample derives top-level fields from sampled documents. A field
// missing from some documents or holding null is reported as nullable.
func describeSample(name string, docs []bson.Raw) collectionInfo {
	info := collectionInfo{Name: name}
	index := make(map[string]int)
	counts := make(map[string]int)

	for _, doc := range docs {
		elems, err := doc.Elements()
		if err != nil {
			continue
		}
		for _, e := range elems {
			key := e.Key()
			t := e.Value().Type
			i, ok := index[key]
			if !ok {
				i = len(info.Fields)
				index[key] = i
				info.Fields = append(info.Fields, fieldInfo{Name: key})
			}
			counts[key]++
			f := &info.Fields[i]
			if t == bsontype.Null || t == bsontype.Undefined {
				f.Nullable = true
				continue
			}
			if f.Type == "" {
				f.Type = t.String()
			} else if f.Type != t.String() && !strings.HasPrefix(f.Type, "mixed") {
				f.Type = "mixed: " + f.Type + "/" + t.String()
			}
		}
	}

	for i := range info.Fields {
		f := &info.Fields[i]
		if f.Type == "" {
			f.Type = "null"
		}
		if counts[f.Name] < len(docs) {
			f.Nullable = true
		}
	}
	return info
}

// renderSchema renders collections as
//
//	Collection: movies
//	- _id (objectID, primary key)
//	- title (string, nullable)
func renderSchema(collections []collectionInfo) string {
	var sb strings.Builder
	for _, c := range collections {
		fmt.Fprintf(&sb, "Collection: %s\n", c.Name)
		for _, f := range c.Fields {
			attrs := []string{f.Type}
			if f.Name == "_id" {
				attrs = append(attrs, "primary key")
			}
			if f.Nullable {
				attrs = append(attrs, "nullable")
			}
			fmt.Fprintf(&sb, "- %s (%s)\n", f.Name, strings.Join(attrs, ", "))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// normalize converts driver values into plain values suitable for the
// result table. Nested documents and arrays are rendered inline.
func normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC()
	case primitive.Decimal128:
		return t.String()
	case primitive.Binary:
		return fmt.Sprintf("<binary %d bytes>", len(t.Data))
	case primitive.Null, primitive.Undefined:
		return nil
	case bson.D, bson.A, bson.M, []any:
		return render(t)
	default:
		return v
	}
}

// render produces a compact JSON-like rendering of nested values
func render(v any) string {
	switch t := v.(type) {
	case bson.D:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = strconv.Quote(e.Key) + ": " + render(e.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case bson.M:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := make(bson.D, 0, len(t))
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: t[k]})
		}
		return render(d)
	case bson.A:
		return render([]any(t))
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = render(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return strconv.Quote(t)
	default:
		n := normalize(v)
		if s, ok := n.(string); ok {
			return strconv.Quote(s)
		}
		if tm, ok := n.(time.Time); ok {
			return strconv.Quote(tm.Format(time.RFC3339))
		}
		if n == nil {
			return "null"
		}
		return fmt.Sprintf("%v", n)
	}
}
