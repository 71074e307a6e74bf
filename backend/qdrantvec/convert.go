package qdrantvec

import (
	"encoding/json"
	"math"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/errcode"
)

// Reserved payload keys. User metadata lives under metadataKey so filters
// never collide with the bookkeeping fields.
const (
	idKey        = "_vectra_id"
	namespaceKey = "_vectra_ns"
	metadataKey  = "metadata"
)

// pointSpace seeds the name-based point ids
var pointSpace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("vectra.qdrantvec"))

// pointID derives a stable UUID point id from namespace and vector id;
// Qdrant only accepts unsigned integers and UUIDs as ids.
func pointID(namespace, id string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(pointSpace, []byte(namespace+"\x00"+id)).String())
}

func pointIDs(namespace string, ids []string) []*qdrant.PointId {
	out := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		out[i] = pointID(namespace, id)
	}
	return out
}

func toDistance(m backend.Metric) qdrant.Distance {
	switch m {
	case backend.MetricDotProduct:
		return qdrant.Distance_Dot
	case backend.MetricEuclidean:
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

func fromDistance(d qdrant.Distance) backend.Metric {
	switch d {
	case qdrant.Distance_Dot:
		return backend.MetricDotProduct
	case qdrant.Distance_Euclid:
		return backend.MetricEuclidean
	default:
		return backend.MetricCosine
	}
}

// score keeps higher-is-closer across metrics; Qdrant reports euclid as distance
func score(metric backend.Metric, s float32) float32 {
	if metric == backend.MetricEuclidean {
		return -s
	}
	return s
}

// normalize round-trips metadata through JSON so only types
// qdrant.NewValueMap accepts remain
func normalize(metadata map[string]any) (map[string]any, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, errcode.ErrValidation.Wrapf(err, "metadata is not JSON encodable")
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errcode.ErrValidation.Wrapf(err, "metadata is not JSON encodable")
	}
	return out, nil
}

func toPoint(namespace string, v backend.Vector) (*qdrant.PointStruct, error) {
	metadata, err := normalize(v.Metadata)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{idKey: v.ID, namespaceKey: namespace}
	if metadata != nil {
		payload[metadataKey] = metadata
	}
	return &qdrant.PointStruct{
		Id:      pointID(namespace, v.ID),
		Vectors: qdrant.NewVectors(v.Values...),
		Payload: qdrant.NewValueMap(payload),
	}, nil
}

// namespaceFilter scopes a request to namespace and adds the metadata
// equality conditions of filter
func namespaceFilter(namespace string, filter map[string]any) (*qdrant.Filter, error) {
	must := []*qdrant.Condition{qdrant.NewMatch(namespaceKey, namespace)}
	for key, value := range filter {
		cond, err := matchCondition(metadataKey+"."+key, value)
		if err != nil {
			return nil, err
		}
		must = append(must, cond)
	}
	return &qdrant.Filter{Must: must}, nil
}

func matchCondition(key string, value any) (*qdrant.Condition, error) {
	switch v := value.(type) {
	case string:
		return qdrant.NewMatch(key, v), nil
	case bool:
		return qdrant.NewMatchBool(key, v), nil
	case int:
		return qdrant.NewMatchInt(key, int64(v)), nil
	case int32:
		return qdrant.NewMatchInt(key, int64(v)), nil
	case int64:
		return qdrant.NewMatchInt(key, v), nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return qdrant.NewMatchInt(key, int64(v)), nil
		}
	}
	return nil, errcode.ErrValidation.
		WithMsgf("filter on %q: only string, bool and integer values are supported", key).
		WithData("field", key)
}

// fromPayload splits a stored payload into vector id and metadata
func fromPayload(payload map[string]*qdrant.Value) (string, map[string]any) {
	id := payload[idKey].GetStringValue()
	meta, ok := fromValue(payload[metadataKey]).(map[string]any)
	if !ok || len(meta) == 0 {
		return id, nil
	}
	return id, meta
}

func fromValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		out := make(map[string]any, len(kind.StructValue.GetFields()))
		for k, f := range kind.StructValue.GetFields() {
			out[k] = fromValue(f)
		}
		return out
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		out := make([]any, len(values))
		for i, item := range values {
			out[i] = fromValue(item)
		}
		return out
	default:
		return nil
	}
}

func vectorValues(v *qdrant.VectorsOutput) []float32 {
	return v.GetVector().GetData()
}
